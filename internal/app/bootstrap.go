package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"passthru/internal/bootloader"
	"passthru/internal/config"
	"passthru/internal/effects"
	"passthru/internal/sysinfo"
	"passthru/pkg/logging"
)

// Application represents the main application structure that bootstraps passthru.
// It encapsulates the loaded configuration and the services every command
// operates on.
//
// Example usage:
//
//	cfg := app.NewConfig(false, true, "")  // dry run
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close()
//	result, err := application.AddParameters(ctx, []string{"iommu=pt"})
type Application struct {
	config   *Config
	services *Services
	closers  []io.Closer

	mu      sync.Mutex
	info    *sysinfo.Info
	backend *bootloader.Backend
}

// NewApplication creates and initializes a new application instance against
// the real host:
//
//  1. Configures console logging based on the debug flag
//  2. Loads the configuration file and applies flag overrides
//  3. Adds the rotating log file and the journald mirror if configured
//  4. Initializes the services
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	if cfg.LogOutput == nil {
		cfg.LogOutput = os.Stderr
	}
	logging.InitForCLI(appLogLevel, cfg.LogOutput)

	passthruCfg, err := config.LoadConfig(cfg.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration")
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.PassthruConfig = &passthruCfg
	cfg.applyOverrides()

	fx := effects.NewOS()
	application, err := newApplication(cfg, fx, sysinfo.NewDetector(fx))
	if err != nil {
		return nil, err
	}
	if err := application.initLogging(); err != nil {
		return nil, err
	}
	return application, nil
}

// NewApplicationWith creates an application on top of an already loaded
// configuration and the given host. Logging is left as configured by the
// caller.
func NewApplicationWith(cfg *Config, fx effects.Effects, info sysinfo.Provider) (*Application, error) {
	if cfg.PassthruConfig == nil {
		defaults := config.GetDefaultConfig()
		cfg.PassthruConfig = &defaults
	}
	cfg.applyOverrides()
	if err := config.Validate(*cfg.PassthruConfig); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newApplication(cfg, fx, info)
}

func newApplication(cfg *Config, fx effects.Effects, info sysinfo.Provider) (*Application, error) {
	services, err := InitializeServices(cfg, fx, info)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return &Application{config: cfg, services: services}, nil
}

// initLogging re-initializes logging with the configured level, adding the
// rotating log file next to the console output.
func (a *Application) initLogging() error {
	lc := a.config.PassthruConfig.Logging
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return err
	}

	output := a.config.LogOutput
	if lc.File != "" {
		file, err := logging.NewFileWriter(logging.FileOptions{
			Path:       lc.File,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
			Compress:   lc.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", lc.File, err)
		}
		a.closers = append(a.closers, file)
		output = io.MultiWriter(output, file)
	}

	logging.InitForCLI(level, output)
	logging.SetJournal(lc.Journal)
	logging.Debug("Bootstrap", "Logging at level %s", level)
	return nil
}

// Config returns the application configuration
func (a *Application) Config() *Config {
	return a.config
}

// Services returns the wired components
func (a *Application) Services() *Services {
	return a.services
}

// Close releases the log file
func (a *Application) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// SystemInfo detects the host once and caches the result
func (a *Application) SystemInfo(ctx context.Context) (sysinfo.Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.info != nil {
		return *a.info, nil
	}

	info, err := a.services.SysInfo.Detect(ctx)
	if err != nil {
		return sysinfo.Info{}, fmt.Errorf("failed to detect system: %w", err)
	}
	logging.Debug("Bootstrap", "Detected %s", info.Summary())
	a.info = &info
	return info, nil
}

// Backend returns the bootloader backend selected by --bootloader, the
// configuration file or detection, in that order.
func (a *Application) Backend(ctx context.Context) (*bootloader.Backend, error) {
	a.mu.Lock()
	backend := a.backend
	a.mu.Unlock()
	if backend != nil {
		return backend, nil
	}

	var (
		kind bootloader.Kind
		err  error
	)
	switch name := a.config.PassthruConfig.Bootloader.Type; name {
	case "", config.BootloaderAuto:
		info, detectErr := a.SystemInfo(ctx)
		if detectErr != nil {
			return nil, detectErr
		}
		kind, err = bootloader.KindFor(info.Bootloader)
		if err != nil {
			return nil, fmt.Errorf("no supported bootloader detected (use --bootloader): %w", err)
		}
		logging.Info("Bootstrap", "Detected bootloader: %s", kind)
	default:
		kind, err = bootloader.ParseKind(name)
		if err != nil {
			return nil, err
		}
	}

	backend = bootloader.New(kind, a.services.Effects, a.services.BootloaderOptions)
	a.mu.Lock()
	a.backend = backend
	a.mu.Unlock()
	return backend, nil
}
