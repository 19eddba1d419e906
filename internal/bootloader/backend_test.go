package bootloader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/effects/fake"
	"passthru/internal/errdefs"
	"passthru/internal/sysinfo"
)

func TestParseKind(t *testing.T) {
	for _, kind := range []Kind{KindGrub, KindKernelstub, KindSystemdBoot} {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("lilo")
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
}

func TestKindFor(t *testing.T) {
	kind, err := KindFor(sysinfo.BootloaderKernelstub)
	require.NoError(t, err)
	assert.Equal(t, KindKernelstub, kind)

	_, err = KindFor(sysinfo.BootloaderUnknown)
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
}

func TestUnknownKind(t *testing.T) {
	ctx := context.Background()
	b := New(KindUnknown, fake.NewHost(), Options{})

	_, err := b.Parameters(ctx)
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
	_, err = b.AddParameters(ctx, []string{"quiet"}, false)
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
	_, err = b.RemoveParameters(ctx, []string{"quiet"}, false)
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
	_, err = b.CreateBackup()
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
	assert.True(t, errors.Is(b.Activate(ctx, false), errdefs.ErrNotSupported))
}
