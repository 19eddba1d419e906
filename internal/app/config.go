package app

import (
	"io"

	"passthru/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// DryRun reports every change without touching the host or the change log
	DryRun bool

	// Quiet suppresses progress spinners, e.g. for JSON output
	Quiet bool

	// Custom configuration file (optional, default /etc/passthru/config.yaml)
	ConfigPath string

	// Flag overrides applied on top of the configuration file
	StateFile  string
	Bootloader string
	LogFile    string

	// LogOutput receives console log lines (default os.Stderr)
	LogOutput io.Writer

	// Loaded configuration file
	PassthruConfig *config.PassthruConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug, dryRun bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		DryRun:     dryRun,
		ConfigPath: configPath,
	}
}

// applyOverrides copies flag values over the loaded configuration
func (c *Config) applyOverrides() {
	if c.PassthruConfig == nil {
		return
	}
	if c.StateFile != "" {
		c.PassthruConfig.State.File = c.StateFile
	}
	if c.Bootloader != "" {
		c.PassthruConfig.Bootloader.Type = c.Bootloader
	}
	if c.LogFile != "" {
		c.PassthruConfig.Logging.File = c.LogFile
	}
	if c.Debug {
		c.PassthruConfig.Logging.Level = "debug"
	}
}
