// Package config provides YAML configuration loading and validation for the
// tracing tool.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the tracing CLI. All fields are
// optional; Default returns the configuration used when no file is given.
type Config struct {
	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Output selects the report format printed on stdout: "text" for the
	// flat list of spawned commands or "json" for the full process tree.
	// Defaults to "text" when omitted.
	Output string `yaml:"output"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validOutputs is the set of accepted output format strings.
var validOutputs = map[string]bool{
	"text": true,
	"json": true,
}

// Default returns the configuration used when no configuration file is given.
func Default() *Config {
	return &Config{LogLevel: "info", Output: "text"}
}

// Load reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all enumerated fields. It returns an error
// describing the first validation failure encountered.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Output == "" {
		cfg.Output = "text"
	}
}

// validate checks that enumerated fields contain only valid values.
func validate(cfg *Config) error {
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	if !validOutputs[cfg.Output] {
		return fmt.Errorf("output %q must be one of: text, json", cfg.Output)
	}
	return nil
}
