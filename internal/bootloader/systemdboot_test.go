package bootloader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/effects/fake"
	"passthru/internal/errdefs"
)

const (
	archEntry = `title   Arch Linux
linux   /vmlinuz-linux
initrd  /initramfs-linux.img
options root=UUID=1234 rw quiet
`
	fallbackEntry = `title   Arch Linux (fallback)
linux   /vmlinuz-linux
initrd  /initramfs-linux-fallback.img`
)

func newSystemdBootHost() *fake.Host {
	return fake.NewHost().
		AddFile("/boot/loader/loader.conf", "default arch.conf\n").
		AddFile("/boot/loader/entries/arch.conf", archEntry).
		AddFile("/boot/loader/entries/arch-fallback.conf", fallbackEntry).
		AddFile("/boot/loader/entries/README", "not an entry")
}

func TestSystemdBoot_Add(t *testing.T) {
	h := newSystemdBootHost()
	b := New(KindSystemdBoot, h, Options{})

	res, err := b.AddParameters(context.Background(), []string{"amd_iommu=on"}, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"amd_iommu=on"}, res.Added)
	require.Len(t, res.Backups, 2)
	assert.Equal(t, "/boot/loader/entries/arch-fallback.conf", res.Backups[0].Path)
	assert.Equal(t, "/boot/loader/entries/arch.conf", res.Backups[1].Path)

	arch, _ := h.File("/boot/loader/entries/arch.conf")
	assert.Equal(t, `title   Arch Linux
linux   /vmlinuz-linux
initrd  /initramfs-linux.img
options amd_iommu=on quiet root=UUID=1234 rw
`, arch)

	fallback, _ := h.File("/boot/loader/entries/arch-fallback.conf")
	assert.Equal(t, fallbackEntry+"\noptions amd_iommu=on\n", fallback)

	readme, _ := h.File("/boot/loader/entries/README")
	assert.Equal(t, "not an entry", readme)
}

func TestSystemdBoot_AddIdempotentPerEntry(t *testing.T) {
	h := newSystemdBootHost()
	b := New(KindSystemdBoot, h, Options{})

	_, err := b.AddParameters(context.Background(), []string{"iommu=pt"}, false)
	require.NoError(t, err)
	res, err := b.AddParameters(context.Background(), []string{"iommu=pt"}, false)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Backups)
}

func TestSystemdBoot_MultipleOptionsLinesMerged(t *testing.T) {
	h := fake.NewHost().AddFile("/efi/loader/entries/linux.conf",
		"title Linux\noptions root=/dev/sda2\noptions quiet\n")
	b := New(KindSystemdBoot, h, Options{})

	params, err := b.Parameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"root=/dev/sda2", "quiet"}, params)

	_, err = b.RemoveParameters(context.Background(), []string{"quiet"}, false)
	require.NoError(t, err)

	content, _ := h.File("/efi/loader/entries/linux.conf")
	assert.Equal(t, "title Linux\noptions root=/dev/sda2\n", content)
}

func TestSystemdBoot_NoEntries(t *testing.T) {
	h := fake.NewHost().AddDir("/boot/efi/loader/entries")
	b := New(KindSystemdBoot, h, Options{})

	_, err := b.AddParameters(context.Background(), []string{"iommu=pt"}, true)
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))

	_, err = b.CreateBackup()
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))

	params, err := b.Parameters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestSystemdBoot_DryRun(t *testing.T) {
	h := newSystemdBootHost()
	res, err := New(KindSystemdBoot, h, Options{}).AddParameters(context.Background(), []string{"iommu=pt"}, true)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.Backups)
	assert.Zero(t, h.Mutations())
}

func TestSystemdBoot_ExplicitESPAndActivate(t *testing.T) {
	h := newSystemdBootHost()
	b := New(KindSystemdBoot, h, Options{ESP: "/boot"})

	backups, err := b.CreateBackup()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
	assert.NoError(t, b.Activate(context.Background(), false))
	assert.Empty(t, h.Runs)
}
