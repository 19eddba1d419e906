package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"passthru/internal/app"
	"passthru/internal/errdefs"
	"passthru/internal/formatting"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodePartialFailure indicates some steps failed while others were applied.
	ExitCodePartialFailure = 2
	// ExitCodeNotFound indicates a required device, file or tool is missing.
	ExitCodeNotFound = 3
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	configPath string
	stateFile  string
	bootloader string
	logFile    string
	output     string
	dryRun     bool
	debug      bool
	noColor    bool
}

var globals globalOptions

// rootCmd represents the base command for the passthru application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "passthru",
	Short: "Prepare a Linux host for PCI device passthrough",
	Long: `passthru reconfigures a Linux host so PCI devices such as GPUs can be
handed to virtual machines through VFIO.

It edits the kernel command line through the detected bootloader (GRUB,
systemd-boot or kernelstub), writes the vfio module configuration, moves
devices between drivers at runtime and records every change so it can be
rolled back later.

Every mutating command supports --dry-run, which reports the planned changes
without touching the host.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := formatting.ParseFormat(globals.output)
		return err
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It runs the root command with a context cancelled on SIGINT and SIGTERM.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "passthru version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, errdefs.ErrPartialFailure):
		return ExitCodePartialFailure
	case errors.Is(err, errdefs.ErrNotFound):
		return ExitCodeNotFound
	default:
		return ExitCodeError
	}
}

// newApplication builds the application from the global flags
func newApplication() (*app.Application, error) {
	cfg := app.NewConfig(globals.debug, globals.dryRun, globals.configPath)
	cfg.StateFile = globals.stateFile
	cfg.Bootloader = globals.bootloader
	cfg.LogFile = globals.logFile
	cfg.Quiet = globals.output != string(formatting.FormatTable)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

// newFormatter creates the output formatter selected by --output
func newFormatter(cmd *cobra.Command) formatting.Formatter {
	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok && !globals.noColor {
		color = isatty.IsTerminal(f.Fd())
	}
	return formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: formatting.OutputFormat(globals.output),
		Quiet:  globals.output != string(formatting.FormatTable),
		Color:  color,
		Writer: out,
	})
}

// runWithApplication creates the application and formatter, runs fn and
// releases the application afterwards.
func runWithApplication(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application, f formatting.Formatter) error) error {
	application, err := newApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, application, newFormatter(cmd))
}

// init is a special Go function that is executed when the package is initialized.
// It is used here to register the global flags.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globals.configPath, "config", "", "Configuration file (default /etc/passthru/config.yaml)")
	flags.StringVar(&globals.stateFile, "state-file", "", "Change log location (overrides the configuration file)")
	flags.StringVar(&globals.bootloader, "bootloader", "", "Bootloader backend: grub, kernelstub or systemd-boot (default: detect)")
	flags.StringVar(&globals.logFile, "log-file", "", "Also write logs to this file, rotated automatically")
	flags.StringVarP(&globals.output, "output", "o", string(formatting.FormatTable), "Output format: table, json or yaml")
	flags.BoolVar(&globals.dryRun, "dry-run", false, "Report planned changes without modifying the host")
	flags.BoolVar(&globals.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&globals.noColor, "no-color", false, "Disable colored output")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("bootloader", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"grub", "kernelstub", "systemd-boot"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newVersionCmd())
}
