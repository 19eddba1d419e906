package app

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/changelog"
	"passthru/internal/effects/fake"
	"passthru/internal/errdefs"
	"passthru/internal/modules"
)

func gpuHost(driver string) *fake.Host {
	h := fake.NewHost().
		AddDir(devPath).
		AddControl(devPath + "/driver/unbind").
		AddControl(devPath + "/driver_override").
		AddControl("/sys/bus/pci/drivers/vfio-pci/bind").
		AddControl("/sys/bus/pci/drivers/vfio-pci/unbind").
		AddControl("/sys/bus/pci/drivers/nvidia/bind").
		AddControl("/sys/bus/pci/drivers_probe")
	if driver != "" {
		h.AddLink(devPath+"/driver", "../../../bus/pci/drivers/"+driver)
	}
	return h
}

func TestBindAndRollback(t *testing.T) {
	asRoot(t, true)
	ctx := context.Background()
	h := gpuHost("nvidia")
	a := newApp(t, h, grubHost)

	plan, err := a.BindDevice(ctx, "01:00.0")
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Applied)
	assert.Equal(t, []changelog.Kind{changelog.KindDriverBound}, kinds(a.Changes()))
	assert.Equal(t, changelog.DriverBound{DeviceBDF: bdf, NewDriver: "vfio-pci", OriginalDriver: "nvidia"}, a.Changes()[0].Change)

	// the kernel moves the driver link once the bind succeeds
	h.AddLink(devPath+"/driver", "../../../bus/pci/drivers/vfio-pci")

	report, err := a.Rollback(ctx, true)
	require.NoError(t, err)
	assert.Len(t, report.Undone, 1)
	assert.Equal(t, []string{bdf}, h.ControlWrites("/sys/bus/pci/drivers/nvidia/bind"))
	assert.Equal(t, []string{"vfio-pci", "\n"}, h.ControlWrites(devPath+"/driver_override"))
}

func TestBindAlreadyBoundRecordsNothing(t *testing.T) {
	asRoot(t, true)
	h := gpuHost("vfio-pci")
	a := newApp(t, h, grubHost)

	plan, err := a.BindDevice(context.Background(), bdf)
	require.NoError(t, err)
	assert.False(t, plan.Changed)
	assert.Empty(t, a.Changes())
}

func TestBindFailureRecordsRelease(t *testing.T) {
	asRoot(t, true)
	h := gpuHost("nvidia").FailWrites("/sys/bus/pci/drivers/vfio-pci/bind", os.ErrPermission)
	a := newApp(t, h, grubHost)

	_, err := a.BindDevice(context.Background(), bdf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission))

	records := a.Changes()
	require.Len(t, records, 1)
	assert.Equal(t, changelog.DriverUnbound{DeviceBDF: bdf, OriginalDriver: "nvidia"}, records[0].Change)
}

func TestBindFailureWithoutDriver(t *testing.T) {
	tests := []struct {
		name       string
		clearFails bool
		want       []changelog.Kind
	}{
		{name: "override cleared records nothing", want: []changelog.Kind{}},
		{name: "stale override is recorded", clearFails: true, want: []changelog.Kind{changelog.KindDriverUnbound}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asRoot(t, true)
			h := gpuHost("").FailWrites("/sys/bus/pci/drivers/vfio-pci/bind", os.ErrPermission)
			if tt.clearFails {
				h.FailValue(devPath+"/driver_override", "\n", os.ErrPermission)
			}
			a := newApp(t, h, grubHost)

			_, err := a.BindDevice(context.Background(), bdf)
			require.Error(t, err)
			assert.Equal(t, tt.want, kinds(a.Changes()))
		})
	}
}

func TestBindUnknownDevice(t *testing.T) {
	asRoot(t, true)
	a := newApp(t, fake.NewHost(), grubHost)

	_, err := a.BindDevice(context.Background(), "0000:09:00.0")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
	_, err = a.BindDevice(context.Background(), "gpu0")
	assert.True(t, errors.Is(err, errdefs.ErrInvalidData))
}

func TestUnbindRecordsRelease(t *testing.T) {
	asRoot(t, true)
	h := gpuHost("vfio-pci")
	a := newApp(t, h, grubHost)

	plan, err := a.UnbindDevice(context.Background(), bdf)
	require.NoError(t, err)
	assert.True(t, plan.Changed)
	assert.Equal(t, []string{bdf}, h.ControlWrites("/sys/bus/pci/drivers_probe"))
	require.Len(t, a.Changes(), 1)
	assert.Equal(t, changelog.DriverUnbound{DeviceBDF: bdf, OriginalDriver: "vfio-pci"}, a.Changes()[0].Change)
}

func TestConfigureModulesAndRollback(t *testing.T) {
	asRoot(t, true)
	ctx := context.Background()
	h := fake.NewHost().AddTool("dracut", nil)
	a := newApp(t, h, grubHost)

	res, err := a.ConfigureModules(ctx, []string{"10de:1b80", "10de:10f0"})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, []changelog.Kind{changelog.KindModuleLoaded, changelog.KindModuleLoaded}, kinds(a.Changes()))

	require.NoError(t, a.UpdateInitramfs(ctx))
	assert.Equal(t, [][]string{{"dracut", "--force"}}, h.Runs)

	report, err := a.Rollback(ctx, true)
	require.NoError(t, err)
	assert.Len(t, report.Undone, 2)
	assert.Contains(t, report.ManualSteps, "Regenerate the initramfs: passthru modules initramfs")

	_, ok := h.File("/etc/modprobe.d/" + modules.VFIOConfName)
	assert.False(t, ok)
	_, ok = h.File("/etc/modules-load.d/" + modules.LoadConfName)
	assert.False(t, ok)
}

func TestCleanupScriptAndClear(t *testing.T) {
	asRoot(t, true)
	h := gpuHost("nvidia")
	a := newApp(t, h, grubHost)

	_, err := a.BindDevice(context.Background(), bdf)
	require.NoError(t, err)

	script, err := a.CleanupScript()
	require.NoError(t, err)
	assert.Contains(t, script, "/sys/bus/pci/drivers/nvidia/bind")

	require.NoError(t, a.ClearChanges())
	assert.Empty(t, a.Changes())
	assert.Equal(t, changelog.StateEmpty, a.ChangeLogState())
}
