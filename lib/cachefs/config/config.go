// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings a deployment might want to pin in a
// file rather than pass as flags on every invocation. LogLevel and
// AllowOther have corresponding command-line flags, and a flag
// explicitly set on the command line wins over the value loaded
// here; Foreground has no flag.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// AllowOther permits other users, including root, to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// Foreground keeps the process attached to the terminal instead
	// of detaching. cachefs-mount never forks on its own regardless
	// of this setting — it exists so a supervisor-managed deployment
	// can record its intent in one place.
	Foreground bool `yaml:"foreground"`
}

// Default returns a Config with every field set to the value
// cachefs-mount would use if no config file and no flag overrode it.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		AllowOther: false,
		Foreground: true,
	}
}

// LoadFile reads and parses a YAML config file. An absent field in
// the file leaves the corresponding Default value in place.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a log level cachefs-mount would not know how to
// translate into a slog.Level.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
}
