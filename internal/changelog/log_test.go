package changelog

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/effects/fake"
	"passthru/internal/errdefs"
)

const logPath = "/var/lib/passthru/changes.json"

func allChanges() []Change {
	return []Change{
		FileModified{Path: "/etc/default/grub", BackupPath: "/etc/default/grub.backup_20240517_103000"},
		KernelParamAdded{Parameter: "iommu=pt", Bootloader: "kernelstub"},
		KernelParamRemoved{Parameter: "iommu", Bootloader: "kernelstub", OriginalValue: "iommu=on"},
		ModuleLoaded{Name: "vfio-pci", ConfigPath: "/etc/modprobe.d/vfio.conf"},
		DriverBound{DeviceBDF: "0000:01:00.0", NewDriver: "vfio-pci", OriginalDriver: "nvidia"},
		DriverUnbound{DeviceBDF: "0000:01:00.1"},
	}
}

func TestOpen_Missing(t *testing.T) {
	l, err := Open(fake.NewHost(), logPath)
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, l.State())
	assert.Zero(t, l.Len())
	assert.Equal(t, logPath, l.Path())
}

func TestRecord_RoundTrip(t *testing.T) {
	h := fake.NewHost()
	l, err := Open(h, logPath)
	require.NoError(t, err)

	for _, c := range allChanges() {
		require.NoError(t, l.Record(c))
	}
	assert.Equal(t, StateRecording, l.State())

	reopened, err := Open(h, logPath)
	require.NoError(t, err)
	assert.Equal(t, StateRecording, reopened.State())

	want := l.Changes()
	got := reopened.Changes()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.True(t, want[i].RecordedAt.Equal(got[i].RecordedAt))
		assert.Equal(t, want[i].Change, got[i].Change)
	}
}

func TestRecord_Envelope(t *testing.T) {
	h := fake.NewHost()
	l, err := Open(h, logPath)
	require.NoError(t, err)
	require.NoError(t, l.Record(DriverUnbound{DeviceBDF: "0000:01:00.1"}))

	content, ok := h.File(logPath)
	require.True(t, ok)
	assert.Equal(t, os.FileMode(0o600), h.Perm(logPath))

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(content), &raw))
	require.Len(t, raw, 1)
	assert.JSONEq(t, `"driver_unbound"`, string(raw[0]["kind"]))
	assert.JSONEq(t, `{"device_bdf":"0000:01:00.1"}`, string(raw[0]["change"]))
	assert.JSONEq(t, `"2024-05-17T10:30:00Z"`, string(raw[0]["recorded_at"]))
	assert.Contains(t, raw[0], "id")
}

func TestOpen_CorruptStartsFresh(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed json", content: "{not json"},
		{name: "unknown kind", content: `[{"id":"1","kind":"service_started","recorded_at":"2024-05-17T10:30:00Z","change":{}}]`},
		{name: "missing payload", content: `[{"id":"1","kind":"file_modified","recorded_at":"2024-05-17T10:30:00Z"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := fake.NewHost().AddFile(logPath, tt.content)

			l, err := Open(h, logPath)
			require.NoError(t, err)
			assert.Zero(t, l.Len())
			assert.Equal(t, StateEmpty, l.State())

			aside, ok := h.File(logPath + ".corrupt-20240517_103000")
			require.True(t, ok, "unreadable log is kept aside")
			assert.Equal(t, tt.content, aside)
		})
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	l, err := Open(fake.NewHost().AddFile(logPath, "\n"), logPath)
	require.NoError(t, err)
	assert.Zero(t, l.Len())
}

func TestOpen_UnreadableFile(t *testing.T) {
	h := fake.NewHost().AddFile(logPath, "[]").FailReads(logPath, os.ErrPermission)
	_, err := Open(h, logPath)
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestRecord_PersistFailure(t *testing.T) {
	h := fake.NewHost().FailWrites(logPath, os.ErrPermission)
	l, err := Open(h, logPath)
	require.NoError(t, err)

	err = l.Record(FileModified{Path: "/etc/default/grub", BackupPath: "/b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Equal(t, 1, l.Len(), "the change stays recorded in memory")
}

func TestRecord_Nil(t *testing.T) {
	l, err := Open(fake.NewHost(), logPath)
	require.NoError(t, err)
	assert.Error(t, l.Record(nil))
}

func TestClear(t *testing.T) {
	h := fake.NewHost()
	l, err := Open(h, logPath)
	require.NoError(t, err)
	require.NoError(t, l.Record(ModuleLoaded{Name: "vfio-pci", ConfigPath: "/etc/modprobe.d/vfio.conf"}))

	require.NoError(t, l.Clear())
	assert.Equal(t, StateEmpty, l.State())

	content, _ := h.File(logPath)
	assert.JSONEq(t, "[]", content)
}

func TestDecodeChange_InvalidData(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"kind":"driver_bound","change":{"device_bdf":42}}`), &rec)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidData))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "recording", StateRecording.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "partially-failed", StatePartiallyFailed.String())
}
