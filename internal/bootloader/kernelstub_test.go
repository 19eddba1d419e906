package bootloader

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/effects/fake"
	"passthru/internal/kparams"
)

// kernelstubTool simulates kernelstub keeping its options in memory
func kernelstubTool(options *[]string, refuse string) fake.CommandFunc {
	return func(args []string) ([]byte, error) {
		switch args[0] {
		case "-p":
			return []byte("kernelstub.Config    : INFO     Looking for configuration...\n" +
				"    Kernel Boot Options:  " + strings.Join(*options, " ") + "\n"), nil
		case "-a", "-d":
			if args[1] == refuse {
				return nil, fake.Exit("kernelstub", args, 1, "permission denied")
			}
			if args[0] == "-a" {
				*options = append(*options, args[1])
			} else {
				*options = kparams.Remove(*options, args[1:]).Params
			}
		}
		return nil, nil
	}
}

func TestKernelstub_Parameters(t *testing.T) {
	options := []string{"quiet", "loglevel=0", "splash"}
	h := fake.NewHost().AddTool("kernelstub", kernelstubTool(&options, ""))

	params, err := New(KindKernelstub, h, Options{}).Parameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet", "loglevel=0", "splash"}, params)
}

func TestKernelstub_Add(t *testing.T) {
	options := []string{"quiet", "iommu=pt"}
	h := fake.NewHost().AddTool("kernelstub", kernelstubTool(&options, ""))
	b := New(KindKernelstub, h, Options{})

	res, err := b.AddParameters(context.Background(), []string{"amd_iommu=on", "iommu=pt"}, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"amd_iommu=on"}, res.Added)
	assert.Empty(t, res.Backups)
	assert.Equal(t, [][]string{{"kernelstub", "-p"}, {"kernelstub", "-a", "amd_iommu=on"}}, h.Runs)
}

func TestKernelstub_RemoveByKey(t *testing.T) {
	options := []string{"quiet", "iommu=pt"}
	h := fake.NewHost().AddTool("kernelstub", kernelstubTool(&options, ""))
	b := New(KindKernelstub, h, Options{})

	res, err := b.RemoveParameters(context.Background(), []string{"iommu", "splash"}, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"iommu=pt"}, res.Removed)
	assert.Equal(t, []string{"quiet"}, options)
}

func TestKernelstub_FailureDoesNotAbortBatch(t *testing.T) {
	var options []string
	h := fake.NewHost().AddTool("kernelstub", kernelstubTool(&options, "amd_iommu=on"))
	b := New(KindKernelstub, h, Options{})

	res, err := b.AddParameters(context.Background(), []string{"amd_iommu=on", "iommu=pt"}, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"iommu=pt"}, res.Added)
	assert.Equal(t, []string{"amd_iommu=on"}, res.Failed)
}

func TestKernelstub_UnreadableOptions(t *testing.T) {
	h := fake.NewHost().AddTool("kernelstub", func(args []string) ([]byte, error) {
		if args[0] == "-p" {
			return nil, fake.Exit("kernelstub", args, 1, "must be run as root")
		}
		return nil, nil
	})
	b := New(KindKernelstub, h, Options{})

	res, err := b.RemoveParameters(context.Background(), []string{"quiet"}, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"quiet"}, res.Removed)
	assert.Contains(t, h.Runs, []string{"kernelstub", "-d", "quiet"})
}

func TestKernelstub_DryRun(t *testing.T) {
	var options []string
	h := fake.NewHost().AddTool("kernelstub", kernelstubTool(&options, ""))
	b := New(KindKernelstub, h, Options{})

	res, err := b.AddParameters(context.Background(), []string{"iommu=pt"}, true)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, [][]string{{"kernelstub", "-p"}}, h.Runs, "only the read-only query runs")
	assert.Empty(t, options)
}

func TestKernelstub_BackupAndActivate(t *testing.T) {
	h := fake.NewHost()
	b := New(KindKernelstub, h, Options{})

	backups, err := b.CreateBackup()
	require.NoError(t, err)
	assert.Empty(t, backups)
	assert.NoError(t, b.Activate(context.Background(), false))
	assert.Empty(t, h.Runs)
}
