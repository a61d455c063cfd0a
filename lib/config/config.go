// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSocket is where the daemon listens and clients connect when
// nothing else is configured.
const DefaultSocket = "/run/switcheroo-control/control.sock"

// defaultResyncInterval is how often the daemon re-scans sysfs to
// heal any uevents lost to receive-buffer overruns.
const defaultResyncInterval = 30 * time.Second

// Config is the daemon configuration.
type Config struct {
	// Socket is the Unix socket path for the control protocol.
	Socket string `yaml:"socket"`

	// PCIIDs is an explicit pci.ids database path. Empty means the
	// standard system locations are searched, and a miss degrades to
	// builtin vendor names.
	PCIIDs string `yaml:"pci_ids"`

	// Journal is the state-history file path. Empty disables
	// journaling.
	Journal string `yaml:"journal"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Devices configures where GPU state comes from.
	Devices DevicesConfig `yaml:"devices"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address for the /metrics HTTP server, e.g.
	// "127.0.0.1:9479". Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// DevicesConfig configures the device source.
type DevicesConfig struct {
	// Fixture is a JSONC adapter list served instead of sysfs, for
	// development on machines without the hardware under test. Empty
	// means real sysfs and uevents.
	Fixture string `yaml:"fixture"`

	// ResyncInterval is how often to re-scan sysfs, as a Go duration
	// string ("30s", "5m"). "0" disables periodic resync; hotplug
	// events still apply immediately.
	ResyncInterval string `yaml:"resync_interval"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is the minimum severity: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format selects the handler: text, json, or auto (text on a
	// terminal, json otherwise).
	Format string `yaml:"format"`
}

// Default returns the stock configuration. The daemon is fully
// functional with these values; the config file only overrides them.
func Default() *Config {
	return &Config{
		Socket: DefaultSocket,
		Devices: DevicesConfig{
			ResyncInterval: defaultResyncInterval.String(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by SWITCHEROO_CONFIG.
// When the variable is unset the defaults are returned as-is; this is
// the normal case on a stock installation.
func Load() (*Config, error) {
	path := os.Getenv("SWITCHEROO_CONFIG")
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
//
// The file is the single source of truth. Environment variables do
// not override config values; the only expansion performed is ${VAR}
// and ${VAR:-default} patterns in path fields, for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Socket = expandVars(c.Socket, vars)
	c.PCIIDs = expandVars(c.PCIIDs, vars)
	c.Journal = expandVars(c.Journal, vars)
	c.Devices.Fixture = expandVars(c.Devices.Fixture, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Named vars
// win over the process environment; an unset variable without a
// default expands to the empty string.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"auto", "text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if c.Devices.ResyncInterval != "" {
		interval, err := time.ParseDuration(c.Devices.ResyncInterval)
		if err != nil {
			errs = append(errs, fmt.Errorf("devices.resync_interval: %w", err))
		} else if interval < 0 {
			errs = append(errs, fmt.Errorf("devices.resync_interval must not be negative"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ResyncEvery returns the parsed resync interval; zero disables
// periodic resync. Meant to be called after Validate — an empty or
// unparseable value reads as the default.
func (c *Config) ResyncEvery() time.Duration {
	interval, err := time.ParseDuration(c.Devices.ResyncInterval)
	if err != nil {
		return defaultResyncInterval
	}
	return interval
}
