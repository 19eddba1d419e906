package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/bootloader"
	"passthru/internal/errdefs"
	"passthru/internal/formatting"
)

var (
	paramsActivate bool
	iommuIDs       []string
)

// paramsCmd groups the kernel command line commands
var paramsCmd = &cobra.Command{
	Use:     "params",
	Aliases: []string{"param", "kernel-params"},
	Short:   "Inspect and edit kernel command line parameters",
	Long: `Inspect and edit the kernel command line of the selected bootloader.

Edits are recorded in the change log and can be reverted with
'passthru changes rollback'. GRUB and systemd-boot need their configuration
regenerated before the next boot; pass --activate or run 'passthru activate'.`,
}

var paramsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "show"},
	Short:   "Show the configured kernel parameters",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			view, err := a.Parameters(ctx)
			if err != nil {
				return err
			}
			return f.FormatParameters(view.Bootloader, view.Parameters)
		})
	},
}

var paramsAddCmd = &cobra.Command{
	Use:   "add PARAM...",
	Short: "Add kernel parameters",
	Long: `Add kernel parameters. A parameter whose key is already present replaces
the existing value; parameters already present are left alone.`,
	Example: `  passthru params add iommu=pt amd_iommu=on
  passthru params add --dry-run vfio-pci.ids=10de:1b80,10de:10f0`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			res, err := a.AddParameters(ctx, args)
			return finishParameterEdit(ctx, a, f, res, err)
		})
	},
}

var paramsRemoveCmd = &cobra.Command{
	Use:     "remove PARAM...",
	Aliases: []string{"rm"},
	Short:   "Remove kernel parameters",
	Long: `Remove kernel parameters. A bare key such as "iommu" removes every
parameter with that key, whatever its value.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			res, err := a.RemoveParameters(ctx, args)
			return finishParameterEdit(ctx, a, f, res, err)
		})
	},
}

var paramsEnableIOMMUCmd = &cobra.Command{
	Use:   "enable-iommu",
	Short: "Add the IOMMU parameters for the host CPU",
	Long: `Add the IOMMU parameters for the detected CPU vendor (amd_iommu=on or
intel_iommu=on, plus iommu=pt). With --ids, vfio-pci.ids is added as well so
the listed devices are claimed by vfio-pci at boot.`,
	Example: `  passthru params enable-iommu --ids 10de:1b80,10de:10f0 --activate`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			res, err := a.EnableIOMMU(ctx, iommuIDs)
			return finishParameterEdit(ctx, a, f, res, err)
		})
	},
}

// finishParameterEdit prints the result of an edit and regenerates the boot
// configuration when requested. A partial failure still prints what was
// applied.
func finishParameterEdit(ctx context.Context, a *app.Application, f formatting.Formatter, res bootloader.Result, err error) error {
	if err != nil && !errors.Is(err, errdefs.ErrPartialFailure) {
		return err
	}
	if fmtErr := f.FormatParameterResult(res, a.Config().DryRun); fmtErr != nil {
		return fmtErr
	}
	if err != nil {
		return err
	}
	if paramsActivate && res.Changed {
		return a.Activate(ctx)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(paramsListCmd, paramsAddCmd, paramsRemoveCmd, paramsEnableIOMMUCmd)

	for _, c := range []*cobra.Command{paramsAddCmd, paramsRemoveCmd, paramsEnableIOMMUCmd} {
		c.Flags().BoolVar(&paramsActivate, "activate", false, "Regenerate the boot configuration afterwards")
	}
	paramsEnableIOMMUCmd.Flags().StringSliceVar(&iommuIDs, "ids", nil, "Vendor:device ids to claim with vfio-pci at boot (e.g. 10de:1b80)")
}
