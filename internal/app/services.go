package app

import (
	"context"
	"fmt"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/effects"
	"passthru/internal/modules"
	"passthru/internal/pci"
	"passthru/internal/sysinfo"
	"passthru/pkg/logging"
)

// Services holds every component the commands operate on. All of them share
// one Effects value, so tests can swap the host for an in-memory one.
type Services struct {
	Effects   effects.Effects
	SysInfo   sysinfo.Provider
	ChangeLog *changelog.Log
	Binder    *binder.Binder
	Modules   *modules.Configurator

	BootloaderOptions bootloader.Options
	SysfsRoot         string
}

// InitializeServices wires the components from the loaded configuration
func InitializeServices(cfg *Config, fx effects.Effects, info sysinfo.Provider) (*Services, error) {
	pc := cfg.PassthruConfig
	if pc == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	log, err := changelog.Open(fx, pc.State.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}
	logging.Debug("Bootstrap", "Change log %s holds %d changes", log.Path(), log.Len())

	return &Services{
		Effects:   fx,
		SysInfo:   info,
		ChangeLog: log,
		Binder: binder.New(fx, binder.Config{
			TargetDriver: pc.Binder.TargetDriver,
			SysfsRoot:    pc.Binder.SysfsRoot,
			Settle:       pc.Binder.SettleDelay,
		}),
		Modules: modules.New(fx, modules.Options{
			ModprobeDir:    pc.Modules.ModprobeDir,
			ModulesLoadDir: pc.Modules.ModulesLoadDir,
		}),
		BootloaderOptions: bootloader.Options{
			GrubPath:         pc.Bootloader.GrubPath,
			GrubKey:          pc.Bootloader.GrubKey,
			GrubOutputs:      pc.Bootloader.GrubOutputs,
			ESP:              pc.Bootloader.ESP,
			KernelstubBinary: pc.Bootloader.KernelstubBinary,
		},
		SysfsRoot: pc.Binder.SysfsRoot,
	}, nil
}

// bootloaderNamed builds the backend a change was recorded against
func (s *Services) bootloaderNamed(name string) (changelog.ParamEditor, error) {
	kind, err := bootloader.ParseKind(name)
	if err != nil {
		return nil, err
	}
	return bootloader.New(kind, s.Effects, s.BootloaderOptions), nil
}

// deviceRestorer rebinds devices recorded in the change log
type deviceRestorer struct {
	services *Services
}

// RestoreDriver implements changelog.DeviceRestorer
func (r deviceRestorer) RestoreDriver(ctx context.Context, bdf, driver string, dryRun bool) error {
	device, err := pci.Lookup(r.services.Effects, r.services.SysfsRoot, bdf)
	if err != nil {
		return err
	}
	_, err = r.services.Binder.Restore(ctx, device, driver, dryRun)
	return err
}
