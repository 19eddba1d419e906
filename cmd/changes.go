package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/errdefs"
	"passthru/internal/formatting"
)

var (
	rollbackActivate bool
	scriptFile       string
	clearConfirmed   bool
)

var changesCmd = &cobra.Command{
	Use:     "changes",
	Aliases: []string{"change", "log"},
	Short:   "Inspect and revert recorded changes",
	Long: `Every change passthru makes to the host is recorded in the change log
(default /var/lib/passthru/changes.json). Use these commands to list, revert or
script the reversal of those changes.`,
}

var changesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded changes, oldest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			return f.FormatChanges(a.Changes())
		})
	},
}

var changesRollbackCmd = &cobra.Command{
	Use:     "rollback",
	Aliases: []string{"undo", "revert"},
	Short:   "Revert every recorded change, newest first",
	Long: `Revert every recorded change, newest first. Changes that cannot be
reverted stay in the change log so a later rollback can retry them; the
command then exits with status 2.

When a reverted change touched the bootloader configuration, the boot
configuration is regenerated unless --activate=false is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			report, err := a.Rollback(ctx, rollbackActivate)
			if err != nil && !errors.Is(err, errdefs.ErrPartialFailure) {
				return err
			}
			if fmtErr := f.FormatRollback(report, a.Config().DryRun); fmtErr != nil {
				return fmtErr
			}
			return err
		})
	},
}

var changesScriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Print a bash script reverting the recorded changes",
	Long: `Render a standalone bash script that reverts the recorded changes. The
script is a fallback for hosts where passthru itself can no longer run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			script, err := a.CleanupScript()
			if err != nil {
				return err
			}
			if scriptFile == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), script)
				return err
			}
			if err := a.Services().Effects.WriteFile(scriptFile, []byte(script), 0o755); err != nil {
				return fmt.Errorf("failed to write %s: %w", scriptFile, err)
			}
			return f.FormatData(fmt.Sprintf("Cleanup script written to %s", scriptFile))
		})
	},
}

var changesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget recorded changes without reverting them",
	Long: `Forget every recorded change without reverting it. Afterwards the changes
can no longer be rolled back, so --yes is required.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearConfirmed && !globals.dryRun {
			return fmt.Errorf("refusing to discard the change log without --yes")
		}
		return runWithApplication(cmd, func(ctx context.Context, a *app.Application, f formatting.Formatter) error {
			return a.ClearChanges()
		})
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.AddCommand(changesListCmd, changesRollbackCmd, changesScriptCmd, changesClearCmd)

	changesRollbackCmd.Flags().BoolVar(&rollbackActivate, "activate", true, "Regenerate the boot configuration after reverting bootloader changes")
	changesScriptCmd.Flags().StringVarP(&scriptFile, "file", "f", "", "Write the script to this file instead of stdout")
	changesClearCmd.Flags().BoolVarP(&clearConfirmed, "yes", "y", false, "Confirm discarding the change log")
}
