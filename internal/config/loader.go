package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"passthru/pkg/logging"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration file at configPath on top of the
// defaults. A missing file is not an error: the defaults are returned. An
// empty configPath selects DefaultPath.
func LoadConfig(configPath string) (PassthruConfig, error) {
	if configPath == "" {
		configPath = DefaultPath
	}
	config := GetDefaultConfig() // Start with default config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config file found at %s, using defaults", configPath)
			return config, nil
		}
		return PassthruConfig{}, NewConfigurationError(configPath, ErrorTypeIO, "cannot read configuration file", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return PassthruConfig{}, NewConfigurationError(configPath, ErrorTypeParse, "malformed YAML", err,
			"check indentation and that keys are camelCase, e.g. grubPath")
	}

	if err := Validate(config); err != nil {
		return PassthruConfig{}, NewConfigurationError(configPath, ErrorTypeValidation, "invalid configuration", err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configPath)
	return config, nil
}

// Save writes cfg as YAML to path, creating the parent directory
func Save(cfg PassthruConfig, path string) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
