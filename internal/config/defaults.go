package config

import (
	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/modules"
	"passthru/internal/pci"
)

const (
	// DefaultPath is the configuration file read when --config is not given
	DefaultPath = "/etc/passthru/config.yaml"

	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)

// GetDefaultConfig returns the configuration used when no file is present
func GetDefaultConfig() PassthruConfig {
	return PassthruConfig{
		Bootloader: BootloaderConfig{
			Type:             BootloaderAuto,
			GrubPath:         bootloader.DefaultGrubPath,
			GrubKey:          bootloader.DefaultGrubKey,
			GrubOutputs:      append([]string(nil), bootloader.DefaultGrubOutputs...),
			KernelstubBinary: bootloader.DefaultKernelstubBinary,
		},
		Binder: BinderConfig{
			TargetDriver: binder.DefaultTargetDriver,
			SysfsRoot:    pci.DefaultSysfsRoot,
			SettleDelay:  binder.DefaultSettle,
		},
		Modules: ModulesConfig{
			ModprobeDir:    modules.DefaultModprobeDir,
			ModulesLoadDir: modules.DefaultModulesLoadDir,
		},
		State: StateConfig{
			File: changelog.DefaultPath,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Journal:    true,
		},
	}
}
