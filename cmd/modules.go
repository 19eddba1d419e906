package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/formatting"
)

var modulesInitramfs bool

var modulesCmd = &cobra.Command{
	Use:     "modules",
	Aliases: []string{"module"},
	Short:   "Configure the vfio kernel modules",
	Long: `Configure the vfio kernel modules so vfio-pci claims devices before their
regular drivers load at boot.`,
}

var modulesConfigureCmd = &cobra.Command{
	Use:   "configure ID...",
	Short: "Write the vfio-pci module configuration",
	Long: `Write the modprobe options claiming the given vendor:device ids, soft
dependencies that load vfio-pci before the GPU drivers, and the modules-load
entry loading vfio-pci early. Existing files are backed up and recorded in the
change log. Pass --initramfs to regenerate the initramfs afterwards.`,
	Example: `  passthru modules configure 10de:1b80 10de:10f0 --initramfs`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			res, err := a.ConfigureModules(ctx, args)
			if err != nil {
				return err
			}
			if err := f.FormatModules(res, a.Config().DryRun); err != nil {
				return err
			}
			if modulesInitramfs && res.Changed {
				return a.UpdateInitramfs(ctx)
			}
			return nil
		})
	},
}

var modulesInitramfsCmd = &cobra.Command{
	Use:   "initramfs",
	Short: "Regenerate the initramfs",
	Long: `Regenerate the initramfs with the generator detected on this host
(mkinitcpio, dracut, update-initramfs or booster).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			if err := a.UpdateInitramfs(ctx); err != nil {
				return err
			}
			if a.Config().DryRun {
				return nil
			}
			return f.FormatData("Initramfs regenerated.")
		})
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
	modulesCmd.AddCommand(modulesConfigureCmd, modulesInitramfsCmd)
	modulesConfigureCmd.Flags().BoolVar(&modulesInitramfs, "initramfs", false, "Regenerate the initramfs afterwards")
}
