// Package config provides configuration management for passthru.
//
// Configuration is a single YAML file, /etc/passthru/config.yaml by default
// or the path given with --config. A missing file is not an error: every
// setting has a default, so passthru runs without any configuration.
// Settings given in the file are overlaid on the defaults and the result is
// validated with go-playground/validator struct tags.
//
// # Configuration Structure
//
//	bootloader:
//	  type: auto                              # auto, grub, kernelstub or systemd-boot
//	  grubPath: /etc/default/grub
//	  grubKey: GRUB_CMDLINE_LINUX_DEFAULT
//	  grubOutputs: [/boot/efi/EFI/fedora/grub.cfg, /boot/grub2/grub.cfg]
//	  esp: /boot/efi                          # detected when empty
//	  kernelstubBinary: kernelstub
//	binder:
//	  targetDriver: vfio-pci
//	  sysfsRoot: /sys
//	  settleDelay: 100ms
//	modules:
//	  modprobeDir: /etc/modprobe.d
//	  modulesLoadDir: /etc/modules-load.d
//	state:
//	  file: /var/lib/passthru/changes.json
//	logging:
//	  level: info
//	  file: /var/log/passthru.log              # rotated, disabled when empty
//	  maxSizeMB: 10
//	  maxBackups: 3
//	  maxAgeDays: 28
//	  journal: true                            # mirror audit events to journald
//
// # Usage Examples
//
//	cfg, err := config.LoadConfig(config.DefaultPath)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Bootloader.GrubPath)
//
// Errors are returned as *ConfigurationError; parse and validation failures
// match errdefs.ErrInvalidData.
package config
