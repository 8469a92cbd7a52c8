// Package config defines the application configuration for the file
// analysis pipeline: bus connection, metrics endpoint, event publishing,
// extraction defaults, and idle-file reaping.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Version string        `json:"version"` // Semantic version (e.g., "1.0.0")
	NATS    NATSConfig    `json:"nats"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Events  EventsConfig  `json:"events,omitempty"`
	Extract ExtractConfig `json:"extract,omitempty"`
	Idle    IdleConfig    `json:"idle,omitempty"`
}

// NATSConfig for the bus connection
type NATSConfig struct {
	URL           string        `json:"url"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	ClientName    string        `json:"client_name,omitempty"`
}

// MetricsConfig for the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// EventsConfig for notification publishing
type EventsConfig struct {
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}

// ExtractConfig holds pipeline-wide extraction defaults. Per-file settings
// arrive with each attach request and override these.
type ExtractConfig struct {
	// Dir is the directory extracted files are written into.
	Dir string `json:"dir,omitempty"`
	// DefaultLimit caps extracted bytes per file when the attach request
	// does not set its own limit; 0 means unlimited.
	DefaultLimit uint64 `json:"default_limit,omitempty"`
}

// IdleConfig controls reaping of abandoned files
type IdleConfig struct {
	// MaxAge is how long a file may sit without traffic before it is
	// aborted. Zero disables reaping.
	MaxAge time.Duration `json:"max_age,omitempty"`
	// SweepInterval is how often the reaper runs.
	SweepInterval time.Duration `json:"sweep_interval,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults for local
// development.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			ClientName:    "filestream",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Events: EventsConfig{
			SubjectPrefix: "files.events",
		},
		Extract: ExtractConfig{
			Dir: "./extracted",
		},
		Idle: IdleConfig{
			MaxAge:        5 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("version is required")
	}

	if c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
		}
	}

	if c.Idle.MaxAge < 0 {
		return errors.New("idle.max_age cannot be negative")
	}
	if c.Idle.MaxAge > 0 && c.Idle.SweepInterval <= 0 {
		return errors.New("idle.sweep_interval must be positive when reaping is enabled")
	}

	return nil
}

// applyDefaults fills zero-valued fields that have non-zero defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = defaults.NATS.ReconnectWait
	}
	if c.NATS.ClientName == "" {
		c.NATS.ClientName = defaults.NATS.ClientName
	}
	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		c.Metrics.Port = defaults.Metrics.Port
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = defaults.Metrics.Path
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = defaults.Events.SubjectPrefix
	}
	if c.Idle.MaxAge > 0 && c.Idle.SweepInterval == 0 {
		c.Idle.SweepInterval = defaults.Idle.SweepInterval
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Use secure file reading with validation
	data, err := safeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Validate JSON depth to prevent DoS
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}
