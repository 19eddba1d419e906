package config

import "time"

// PassthruConfig is the top-level configuration structure for passthru.
type PassthruConfig struct {
	Bootloader BootloaderConfig `yaml:"bootloader"`
	Binder     BinderConfig     `yaml:"binder"`
	Modules    ModulesConfig    `yaml:"modules"`
	State      StateConfig      `yaml:"state"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Bootloader types accepted in the configuration
const (
	BootloaderAuto        = "auto"
	BootloaderGrub        = "grub"
	BootloaderKernelstub  = "kernelstub"
	BootloaderSystemdBoot = "systemd-boot"
)

// BootloaderConfig selects and locates the bootloader backend.
type BootloaderConfig struct {
	Type             string   `yaml:"type,omitempty" validate:"omitempty,oneof=auto grub kernelstub systemd-boot"` // auto detects from the host (default: auto)
	GrubPath         string   `yaml:"grubPath,omitempty" validate:"required,startswith=/"`                         // Default grub settings file (default: /etc/default/grub)
	GrubKey          string   `yaml:"grubKey,omitempty" validate:"required,shellvar"`                              // Variable carrying the command line (default: GRUB_CMDLINE_LINUX_DEFAULT)
	GrubOutputs      []string `yaml:"grubOutputs,omitempty" validate:"dive,startswith=/"`                          // grub2-mkconfig output candidates
	ESP              string   `yaml:"esp,omitempty" validate:"omitempty,startswith=/"`                             // EFI system partition, detected when empty
	KernelstubBinary string   `yaml:"kernelstubBinary,omitempty" validate:"required"`                              // Name or path of kernelstub (default: kernelstub)
}

// BinderConfig configures PCI driver rebinding.
type BinderConfig struct {
	TargetDriver string        `yaml:"targetDriver,omitempty" validate:"required"`           // Passthrough driver (default: vfio-pci)
	SysfsRoot    string        `yaml:"sysfsRoot,omitempty" validate:"required,startswith=/"` // sysfs mount point (default: /sys)
	SettleDelay  time.Duration `yaml:"settleDelay,omitempty" validate:"gte=0,lte=10s"`       // Pause after unbinding (default: 100ms)
}

// ModulesConfig locates the kernel module configuration directories.
type ModulesConfig struct {
	ModprobeDir    string `yaml:"modprobeDir,omitempty" validate:"required,startswith=/"`    // default: /etc/modprobe.d
	ModulesLoadDir string `yaml:"modulesLoadDir,omitempty" validate:"required,startswith=/"` // default: /etc/modules-load.d
}

// StateConfig locates the change log.
type StateConfig struct {
	File string `yaml:"file,omitempty" validate:"required,startswith=/"` // default: /var/lib/passthru/changes.json
}

// LoggingConfig configures the log output.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"` // default: info
	File       string `yaml:"file,omitempty" validate:"omitempty,startswith=/"`                 // Rotating log file, disabled when empty
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays,omitempty" validate:"gte=0"`
	Compress   bool   `yaml:"compress,omitempty"`
	Journal    bool   `yaml:"journal"` // Mirror audit events to journald when available (default: true)
}
