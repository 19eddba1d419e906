// Package app provides application bootstrap and the operations every passthru
// command runs.
//
// The app package is the bridge between the command line and the components
// that touch the host. It loads the configuration, applies flag overrides,
// sets up logging and wires one set of services on top of a shared
// effects.Effects value.
//
// # Core Components
//
//   - Config (config.go): runtime flags such as --dry-run, --state-file and
//     --bootloader, together with the loaded configuration file
//   - Services (services.go): the change log, device binder, module
//     configurator and bootloader options, wired from the configuration
//   - Application (bootstrap.go): initialization, logging setup, cached host
//     detection and bootloader selection
//   - Operations (operations.go): parameter edits, activation, device
//     binding, module configuration and rollback
//
// # Initialization
//
// NewApplication runs against the real host:
//
//  1. Console logging is configured from the debug flag
//  2. The configuration file is loaded (a missing file yields defaults) and
//     flag overrides are applied
//  3. The rotating log file and the journald mirror are enabled if configured
//  4. The services are wired and the change log is opened
//
// NewApplicationWith takes the host and the system information provider as
// arguments, which is how tests run every operation against an in-memory
// host.
//
// # Recording
//
// Every operation that mutates the host records what it did in the change
// log right after the mutation succeeds:
//
//   - GRUB and systemd-boot edits record the modified file and its backup
//   - kernelstub edits record each parameter added or removed
//   - device binding records the original driver
//   - module configuration records each file written
//
// Dry runs never record anything and skip the root check.
//
// # Rollback
//
// Rollback reverts the recorded changes newest first. When a reverted change
// touched the bootloader configuration the boot configuration is regenerated,
// or listed as a manual step when activation was not requested. Reverted
// module configuration always adds a manual initramfs step.
//
// Example:
//
//	cfg := app.NewConfig(false, false, "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//
//	report, err := application.Rollback(ctx, true)
package app
