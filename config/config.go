// Package config defines the node configuration: transport connection,
// session defaults and logging. Configuration is a plain struct with
// explicit defaults; load it from a YAML file, override from the
// environment, then validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oteffahi/zenoh/errors"
)

// Config represents the complete node configuration
type Config struct {
	NATS    NATSConfig    `yaml:"nats" json:"nats"`
	Session SessionConfig `yaml:"session" json:"session"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// NATSConfig holds transport connection settings
type NATSConfig struct {
	URL              string        `yaml:"url" json:"url"`
	Name             string        `yaml:"name" json:"name"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReconnectWait    time.Duration `yaml:"reconnect_wait" json:"reconnect_wait"`
	MaxReconnects    int           `yaml:"max_reconnects" json:"max_reconnects"`
	CircuitThreshold int           `yaml:"circuit_threshold" json:"circuit_threshold"`
}

// SessionConfig holds session-level defaults
type SessionConfig struct {
	// QueryTimeout bounds reply collection for queries without an
	// explicit per-call timeout.
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
	// PublishRate caps publications per second for publishers declared
	// with congestion control. 0 disables the limiter.
	PublishRate float64 `yaml:"publish_rate" json:"publish_rate"`
	// PublishBurst is the limiter burst size when PublishRate is set.
	PublishBurst int `yaml:"publish_burst" json:"publish_burst"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level" json:"level"` // debug, info, warn, error
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			Name:             "zenoh-node",
			ConnectTimeout:   5 * time.Second,
			ReconnectWait:    2 * time.Second,
			MaxReconnects:    60,
			CircuitThreshold: 5,
		},
		Session: SessionConfig{
			QueryTimeout: 10 * time.Second,
			PublishRate:  0,
			PublishBurst: 1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file, applies environment overrides and
// validates the result. A missing path yields defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "Config", "Load", "read file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse yaml")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from ZENOH_-prefixed environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("ZENOH_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("ZENOH_NATS_NAME"); v != "" {
		c.NATS.Name = v
	}
	if v := os.Getenv("ZENOH_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.QueryTimeout = d
		}
	}
	if v := os.Getenv("ZENOH_PUBLISH_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			c.Session.PublishRate = r
		}
	}
	if v := os.Getenv("ZENOH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url")
	}
	if c.NATS.ConnectTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("nats.connect_timeout must be positive, got %s", c.NATS.ConnectTimeout),
			"Config", "Validate", "nats.connect_timeout")
	}
	if c.NATS.CircuitThreshold < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("nats.circuit_threshold must be >= 1, got %d", c.NATS.CircuitThreshold),
			"Config", "Validate", "nats.circuit_threshold")
	}
	if c.Session.QueryTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("session.query_timeout must be positive, got %s", c.Session.QueryTimeout),
			"Config", "Validate", "session.query_timeout")
	}
	if c.Session.PublishRate < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("session.publish_rate cannot be negative, got %f", c.Session.PublishRate),
			"Config", "Validate", "session.publish_rate")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level),
			"Config", "Validate", "log.level")
	}
	return nil
}
