package formatting

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/modules"
	"passthru/internal/sysinfo"
)

var recordedAt = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

func sampleRecords() []changelog.Record {
	return []changelog.Record{
		{
			ID:         "2f1c6f3e-8d0a-4a43-9a57-2b1d1f0c9e11",
			RecordedAt: recordedAt,
			Change:     changelog.FileModified{Path: "/etc/default/grub", BackupPath: "/etc/default/grub.backup_20240517_103000"},
		},
		{
			ID:         "9a0d0c9b-5d3e-4f0a-8a3c-0d7b0e5c1a22",
			RecordedAt: recordedAt,
			Change:     changelog.DriverBound{DeviceBDF: "0000:01:00.0", NewDriver: "vfio-pci", OriginalDriver: "nvidia"},
		},
	}
}

func newFormatter(format OutputFormat) (Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewFactory().CreateFormatter(Options{Format: format, Writer: &buf}), &buf
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"table", "json", "yaml"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, OutputFormat(name), f)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   interface{}
	}{
		{FormatJSON, &JSONFormatter{}},
		{FormatYAML, &YAMLFormatter{}},
		{FormatTable, &TableFormatter{}},
		{"", &TableFormatter{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f := NewFactory().CreateFormatter(Options{Format: tt.format})
			assert.IsType(t, tt.want, f)
			assert.NotNil(t, f.GetOptions().Writer, "writer defaults to stdout")
		})
	}
}

func TestJSONFormatter_Changes(t *testing.T) {
	f, buf := newFormatter(FormatJSON)
	require.NoError(t, f.FormatChanges(sampleRecords()))

	var view struct {
		Count   int `json:"count"`
		Changes []struct {
			ID      string                 `json:"id"`
			Kind    string                 `json:"kind"`
			Target  string                 `json:"target"`
			Details map[string]interface{} `json:"details"`
		} `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, 2, view.Count)
	require.Len(t, view.Changes, 2)
	assert.Equal(t, "file_modified", view.Changes[0].Kind)
	assert.Equal(t, "/etc/default/grub", view.Changes[0].Target)
	assert.Equal(t, "driver_bound", view.Changes[1].Kind)
	assert.Equal(t, "nvidia", view.Changes[1].Details["original_driver"])
}

func TestJSONFormatter_QuietIsCompact(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(Options{Format: FormatJSON, Quiet: true, Writer: &buf})
	require.NoError(t, f.FormatParameters("grub", nil))
	assert.Equal(t, `{"bootloader":"grub","parameters":[]}`+"\n", buf.String())
}

func TestJSONFormatter_ParameterResultIsFlat(t *testing.T) {
	f, buf := newFormatter(FormatJSON)
	require.NoError(t, f.FormatParameterResult(bootloader.Result{Changed: true, Added: []string{"iommu=pt"}}, true))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["dry_run"])
	assert.Equal(t, true, out["changed"])
	assert.Equal(t, []interface{}{"iommu=pt"}, out["added"])
}

func TestYAMLFormatter_Rollback(t *testing.T) {
	f, buf := newFormatter(FormatYAML)
	report := changelog.Report{
		Undone:      sampleRecords()[:1],
		ManualSteps: []string{"Regenerate the boot configuration: passthru activate"},
	}
	require.NoError(t, f.FormatRollback(report, false))

	var out map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["dry_run"])
	assert.Len(t, out["undone"], 1)
	assert.Equal(t, []interface{}{"Regenerate the boot configuration: passthru activate"}, out["manual_steps"])
	assert.NotContains(t, out, "failed")
}

func TestYAMLFormatter_ModulesInline(t *testing.T) {
	f, buf := newFormatter(FormatYAML)
	res := modules.Result{
		Changed: true,
		IDs:     []string{"10de:1b80"},
		Files:   []modules.FileChange{{Path: "/etc/modprobe.d/vfio.conf", Created: true}},
	}
	require.NoError(t, f.FormatModules(res, false))
	assert.Contains(t, buf.String(), "changed: true\n")
	assert.Contains(t, buf.String(), "- 10de:1b80\n")
	assert.Contains(t, buf.String(), "path: /etc/modprobe.d/vfio.conf\n")
}

func TestTableFormatter_Changes(t *testing.T) {
	f, buf := newFormatter(FormatTable)
	require.NoError(t, f.FormatChanges(sampleRecords()))

	out := buf.String()
	assert.Contains(t, out, "2f1c6f3e")
	assert.NotContains(t, out, "2f1c6f3e-8d0a", "ids are shortened")
	assert.Contains(t, out, "file_modified")
	assert.Contains(t, out, "Total: 2 changes")
}

func TestTableFormatter_Empty(t *testing.T) {
	tests := []struct {
		name   string
		format func(Formatter) error
		want   string
	}{
		{"changes", func(f Formatter) error { return f.FormatChanges(nil) }, "No changes recorded"},
		{"rollback", func(f Formatter) error { return f.FormatRollback(changelog.Report{}, false) }, "No changes to roll back"},
		{"parameters", func(f Formatter) error { return f.FormatParameters("grub", nil) }, "No kernel parameters configured"},
		{"result", func(f Formatter) error { return f.FormatParameterResult(bootloader.Result{}, false) }, "already up to date"},
		{"plan", func(f Formatter) error {
			return f.FormatPlan(binder.Plan{Device: "0000:01:00.0", OriginalDriver: "vfio-pci"}, false)
		}, "nothing to do (bound to vfio-pci)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := newFormatter(FormatTable)
			require.NoError(t, tt.format(f))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestTableFormatter_PlanStatus(t *testing.T) {
	plan := binder.Plan{
		Device:         "0000:01:00.0",
		OriginalDriver: "nvidia",
		TargetDriver:   "vfio-pci",
		Changed:        true,
		Steps: []binder.Step{
			{Kind: binder.StepUnbind, Path: "/sys/bus/pci/devices/0000:01:00.0/driver/unbind", Value: "0000:01:00.0"},
			{Kind: binder.StepSetOverride, Path: "/sys/bus/pci/devices/0000:01:00.0/driver_override", Value: "vfio-pci"},
			{Kind: binder.StepBind, Path: "/sys/bus/pci/drivers/vfio-pci/bind", Value: "0000:01:00.0"},
		},
		Applied: 1,
	}

	f, buf := newFormatter(FormatTable)
	require.NoError(t, f.FormatPlan(plan, false))
	out := buf.String()
	assert.Contains(t, out, "nvidia → vfio-pci")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "skipped")

	f, buf = newFormatter(FormatTable)
	plan.Applied = 0
	require.NoError(t, f.FormatPlan(plan, true))
	assert.Contains(t, buf.String(), "planned")
	assert.NotContains(t, buf.String(), "done")
}

func TestTableFormatter_Rollback(t *testing.T) {
	f, buf := newFormatter(FormatTable)
	records := sampleRecords()
	report := changelog.Report{
		Undone:      records[1:],
		Failed:      records[:1],
		Skipped:     []string{"backup /etc/modprobe.d/vfio.conf.backup_20240517_103000 missing"},
		ManualSteps: []string{"Regenerate the initramfs: passthru modules initramfs"},
	}
	require.NoError(t, f.FormatRollback(report, false))

	out := buf.String()
	assert.Contains(t, out, "✓ ")
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, "1. Regenerate the initramfs: passthru modules initramfs")
	assert.Contains(t, out, "Rollback: 1 reverted, 1 failed")
}

func TestTableFormatter_SystemInfo(t *testing.T) {
	secure := false
	info := sysinfo.Info{
		Bootloader:     sysinfo.BootloaderSystemdBoot,
		Kernel:         sysinfo.Kernel{Release: "6.9.1-arch1-1"},
		CPUVendor:      "AMD",
		Virtualization: true,
		InitSystem:     sysinfo.InitSystemd,
		Initramfs:      sysinfo.InitramfsMkinitcpio,
		SecureBoot:     &secure,
		Distribution:   &sysinfo.Distribution{Name: "Arch Linux", ID: "arch", Family: sysinfo.FamilyArch},
		ESP:            "/boot",
	}

	f, buf := newFormatter(FormatTable)
	require.NoError(t, f.FormatSystemInfo(info))
	out := buf.String()
	for _, want := range []string{"Arch Linux (arch)", "6.9.1-arch1-1", "systemd-boot", "mkinitcpio", "/boot"} {
		assert.Contains(t, out, want)
	}
}

func TestTableFormatter_ParametersSplitValues(t *testing.T) {
	f, buf := newFormatter(FormatTable)
	require.NoError(t, f.FormatParameters("grub", []string{"quiet", "vfio-pci.ids=10de:1b80,10de:10f0"}))
	out := buf.String()
	assert.Contains(t, out, "Bootloader: grub")
	assert.Contains(t, out, "vfio-pci.ids")
	assert.Contains(t, out, "10de:1b80,10de:10f0")
}

func TestTableFormatter_ColorDisabled(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter(Options{Format: FormatTable, Writer: &buf})
	require.NoError(t, f.FormatParameterResult(bootloader.Result{Changed: true, Added: []string{"iommu=pt"}}, false))
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "+ iommu=pt")
	assert.Contains(t, buf.String(), "passthru activate")
}
