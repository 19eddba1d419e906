package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/formatting"
)

var detectCmd = &cobra.Command{
	Use:     "detect",
	Aliases: []string{"info"},
	Short:   "Show what passthru detected about this host",
	Long: `Show the distribution, kernel, bootloader, CPU vendor, virtualization
support, init system and initramfs generator passthru detected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			info, err := a.SystemInfo(ctx)
			if err != nil {
				return err
			}
			return f.FormatSystemInfo(info)
		})
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
