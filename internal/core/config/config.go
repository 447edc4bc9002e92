// Package config handles configuration loading and validation for relay.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// apiKeyEnv overrides the configured tracker API key so the secret can stay
// out of the config file.
const apiKeyEnv = "RELAY_API_KEY"

// Config holds the application configuration.
type Config struct {
	Tracker     TrackerConfig  `yaml:"tracker"`
	Watch       WatchConfig    `yaml:"watch"`
	Database    DatabaseConfig `yaml:"database"`
	ProjectsDir string         `yaml:"projects_dir"` // agent journal root; empty selects ~/.claude/projects
	DataDir     string         `yaml:"-"`            // set by caller, not from config file
}

// TrackerConfig points at the tracker's HTTP API.
type TrackerConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// WatchConfig tunes the tailing loop and its write gate.
type WatchConfig struct {
	PerSecond    float64       `yaml:"per_second"`    // tracker writes per second
	Burst        int           `yaml:"burst"`         // write burst capacity
	PollInterval time.Duration `yaml:"poll_interval"` // idle sleep between journal sweeps
	CursorDir    string        `yaml:"cursor_dir"`    // empty selects the system temp dir
}

// DatabaseConfig holds delivery-log database knobs.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tracker: TrackerConfig{
			BaseURL: "https://api.linear.app",
		},
		Watch: WatchConfig{
			PerSecond:    2,
			Burst:        5,
			PollInterval: 500 * time.Millisecond,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			BusyTimeout:  5000,
		},
	}
}

// Load reads the config file when it exists, merges it over the defaults,
// applies the environment API key override, and validates the result.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	if key := os.Getenv(apiKeyEnv); key != "" {
		cfg.Tracker.APIKey = key
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Tracker.BaseURL == "" {
		c.Tracker.BaseURL = defaults.Tracker.BaseURL
	}
	if c.Watch.PerSecond == 0 {
		c.Watch.PerSecond = defaults.Watch.PerSecond
	}
	if c.Watch.Burst == 0 {
		c.Watch.Burst = defaults.Watch.Burst
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = defaults.Watch.PollInterval
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = defaults.Database.BusyTimeout
	}
}
