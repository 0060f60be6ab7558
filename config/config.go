// Package config provides configuration loading and management for taskintake.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete taskintake configuration.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Intake  IntakeConfig  `yaml:"intake"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// NATSConfig configures the NATS connection backing the store and the
// transport subjects.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to run an embedded JetStream server.
	// Disable it by setting url; a bare "embedded: false" in a file
	// cannot be told apart from the field being unset
	Embedded bool `yaml:"embedded"`
	// Port is the listen port of the embedded server, so chat
	// front-ends can reach the transport subjects
	Port int `yaml:"port"`
	// StoreDir is where the embedded server keeps JetStream data
	StoreDir string `yaml:"store_dir"`
}

// IntakeConfig configures intake session lifecycle.
type IntakeConfig struct {
	// SessionTimeout is how long an intake may sit idle before the
	// sweep evicts it
	SessionTimeout Duration `yaml:"session_timeout"`
	// SweepInterval is how often idle sessions are checked
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Duration is a time.Duration that also unmarshals from YAML strings
// like "30m" or "1h15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the /metrics HTTP listener on
	Enabled bool `yaml:"enabled"`
	// Addr is the listen address for the metrics endpoint
	Addr string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
			Port:     4222,
			StoreDir: "./data",
		},
		Intake: IntakeConfig{
			SessionTimeout: Duration(30 * time.Minute),
			SweepInterval:  Duration(time.Minute),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.embedded is false")
	}
	if c.NATS.Embedded && c.NATS.StoreDir == "" {
		return fmt.Errorf("nats.store_dir is required when nats.embedded is true")
	}
	if c.NATS.Embedded && c.NATS.Port <= 0 {
		return fmt.Errorf("nats.port must be positive when nats.embedded is true")
	}
	if c.Intake.SessionTimeout <= 0 {
		return fmt.Errorf("intake.session_timeout must be positive")
	}
	if c.Intake.SweepInterval <= 0 {
		return fmt.Errorf("intake.sweep_interval must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics.enabled is true")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// Merge overlays non-zero fields from other onto c. A false Embedded is
// indistinguishable from unset, so the embedded server is disabled by
// setting URL, which clears Embedded as a side effect.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
	if other.NATS.Embedded {
		c.NATS.Embedded = true
	}
	if other.NATS.Port != 0 {
		c.NATS.Port = other.NATS.Port
	}
	if other.NATS.StoreDir != "" {
		c.NATS.StoreDir = other.NATS.StoreDir
	}
	if other.Intake.SessionTimeout != 0 {
		c.Intake.SessionTimeout = other.Intake.SessionTimeout
	}
	if other.Intake.SweepInterval != 0 {
		c.Intake.SweepInterval = other.Intake.SweepInterval
	}
	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// LoadFromFile loads configuration from a YAML file. Only fields the
// file sets are populated; callers overlay the result onto defaults via
// Merge.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}
