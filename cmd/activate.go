package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/formatting"
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Regenerate the boot configuration",
	Long: `Regenerate the boot configuration of the selected bootloader so edited
kernel parameters take effect on the next boot.

GRUB runs update-grub, grub2-mkconfig or grub-mkconfig, whichever is installed.
systemd-boot and kernelstub apply edits directly and need no regeneration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			if err := a.Activate(ctx); err != nil {
				return err
			}
			if a.Config().DryRun {
				return nil
			}
			return f.FormatData("Boot configuration regenerated. Reboot to apply the new kernel parameters.")
		})
	},
}

func init() {
	rootCmd.AddCommand(activateCmd)
}
