package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/effects"
	"passthru/internal/effects/fake"
	"passthru/internal/errdefs"
)

func TestCreate(t *testing.T) {
	h := fake.NewHost().AddFile("/etc/default/grub", "GRUB_TIMEOUT=5\n")

	dest, err := Create(h, "/etc/default/grub")
	require.NoError(t, err)
	assert.Equal(t, "/etc/default/grub.backup_20240517_103000", dest)

	content, ok := h.File(dest)
	require.True(t, ok)
	assert.Equal(t, "GRUB_TIMEOUT=5\n", content)
}

func TestCreate_KeepsPermissions(t *testing.T) {
	tests := []struct {
		name string
		perm os.FileMode
	}{
		{name: "private", perm: 0o600},
		{name: "world readable", perm: 0o644},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := fake.NewHost().
				AddFile("/etc/modprobe.d/vfio.conf", "options vfio-pci ids=10de:1b80\n").
				SetPerm("/etc/modprobe.d/vfio.conf", tt.perm)

			dest, err := Create(h, "/etc/modprobe.d/vfio.conf")
			require.NoError(t, err)
			assert.Equal(t, tt.perm, h.Perm(dest))

			require.NoError(t, Restore(h, dest, "/etc/modprobe.d/vfio.conf"))
			assert.Equal(t, tt.perm, h.Perm("/etc/modprobe.d/vfio.conf"))
		})
	}
}

func TestCreate_SameSecondCollision(t *testing.T) {
	h := fake.NewHost().AddFile("/etc/default/grub", "v1")

	first, err := Create(h, "/etc/default/grub")
	require.NoError(t, err)
	second, err := Create(h, "/etc/default/grub")
	require.NoError(t, err)
	third, err := Create(h, "/etc/default/grub")
	require.NoError(t, err)

	assert.Equal(t, "/etc/default/grub.backup_20240517_103000", first)
	assert.Equal(t, "/etc/default/grub.backup_20240517_103000_1", second)
	assert.Equal(t, "/etc/default/grub.backup_20240517_103000_2", third)
}

func TestCreate_MissingSource(t *testing.T) {
	h := fake.NewHost()

	dest, err := Create(h, "/etc/modprobe.d/vfio.conf")
	require.NoError(t, err)
	assert.Empty(t, dest)
	assert.Zero(t, h.Mutations())
}

func TestCreate_UnreadableSource(t *testing.T) {
	h := fake.NewHost().
		AddFile("/etc/default/grub", "x").
		FailReads("/etc/default/grub", os.ErrPermission)

	_, err := Create(h, "/etc/default/grub")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestRestore(t *testing.T) {
	h := fake.NewHost().
		AddFile("/etc/default/grub", "modified").
		AddFile("/etc/default/grub.backup_20240517_103000", "original")

	require.NoError(t, Restore(h, "/etc/default/grub.backup_20240517_103000", "/etc/default/grub"))

	content, _ := h.File("/etc/default/grub")
	assert.Equal(t, "original", content)
	_, ok := h.File("/etc/default/grub.backup_20240517_103000")
	assert.False(t, ok, "backup is consumed by the restore")
}

func TestRestore_MissingBackup(t *testing.T) {
	h := fake.NewHost().AddFile("/etc/default/grub", "modified")

	err := Restore(h, "/etc/default/grub.backup_x", "/etc/default/grub")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	content, _ := h.File("/etc/default/grub")
	assert.Equal(t, "modified", content)
}

func TestCreateRestore_OS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grub")
	original := []byte("GRUB_CMDLINE_LINUX_DEFAULT=\"quiet\"\n")
	require.NoError(t, os.WriteFile(path, original, 0o644))

	fx := effects.NewOS()
	dest, err := Create(fx, path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))

	require.NoError(t, Restore(fx, dest, path))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestCreateRestore_OSKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vfio.conf")
	require.NoError(t, os.WriteFile(path, []byte("options vfio-pci ids=10de:1b80\n"), 0o600))
	require.NoError(t, os.Chmod(path, 0o600))

	fx := effects.NewOS()
	dest, err := Create(fx, path)
	require.NoError(t, err)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, Restore(fx, dest, path))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
