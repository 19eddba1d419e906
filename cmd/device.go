package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/binder"
	"passthru/internal/errdefs"
	"passthru/internal/formatting"
)

var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"dev"},
	Short:   "Move PCI devices between drivers at runtime",
	Long: `Move PCI devices between the passthrough driver (vfio-pci) and their
regular drivers without rebooting. Addresses may omit the domain, so 01:00.0
means 0000:01:00.0.`,
}

var deviceShowCmd = &cobra.Command{
	Use:   "show BDF",
	Short: "Show the driver a device is bound to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			device, err := a.Device(args[0])
			if err != nil {
				return err
			}
			if globals.output != string(formatting.FormatTable) {
				return f.FormatData(device)
			}
			driver := device.Driver
			if driver == "" {
				driver = "none"
			}
			return f.FormatData(map[string]interface{}{
				"device": device.BDF,
				"driver": driver,
				"path":   device.Path,
			})
		})
	},
}

var deviceBindCmd = &cobra.Command{
	Use:   "bind BDF...",
	Short: "Bind devices to the passthrough driver",
	Long: `Detach each device from its current driver and bind it to vfio-pci.
The original driver is recorded so 'passthru changes rollback' can return the
device to it.`,
	Example: `  passthru device bind 0000:01:00.0 0000:01:00.1`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			return forEachDevice(ctx, a, f, "bind devices", args, a.BindDevice)
		})
	},
}

var deviceUnbindCmd = &cobra.Command{
	Use:   "unbind BDF...",
	Short: "Release devices from the passthrough driver",
	Long: `Release each device from vfio-pci and let the kernel probe it again, so
its regular driver picks it up. Devices bound to another driver are left alone.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			return forEachDevice(ctx, a, f, "unbind devices", args, a.UnbindDevice)
		})
	},
}

// forEachDevice applies op to every address and keeps going past failures.
// A single device returns its error unchanged.
func forEachDevice(ctx context.Context, a *app.Application, f formatting.Formatter, operation string, bdfs []string,
	op func(context.Context, string) (binder.Plan, error)) error {
	failures := &errdefs.PartialFailure{Operation: operation}
	for _, bdf := range bdfs {
		plan, err := op(ctx, bdf)
		if plan.Device != "" {
			if fmtErr := f.FormatPlan(plan, a.Config().DryRun); fmtErr != nil {
				return fmtErr
			}
		}
		if err == nil {
			continue
		}
		if len(bdfs) == 1 {
			return err
		}
		failures.Add(fmt.Sprintf("device %s", bdf), err)
	}
	return failures.ErrOrNil()
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceShowCmd, deviceBindCmd, deviceUnbindCmd)
}
