package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Floors mirror the limits the settings dialog used to enforce.
	MinCheckFrequencyMinutes = 1
	MinHistorySize           = 10

	DefaultSourceURL = "https://hazbinhotel.com/collections/trading-cards/products.json"
)

type SourceConfig struct {
	URL            string `yaml:"url"`
	PageLimit      int    `yaml:"page_limit"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TitlePrefix    string `yaml:"title_prefix"`
}

type TrackerConfig struct {
	CheckFrequencyMinutes int    `yaml:"check_frequency_minutes"`
	HistorySize           int    `yaml:"history_size"`
	DataDir               string `yaml:"data_dir"`
}

type StoreConfig struct {
	Type     string `yaml:"type"` // "file" or "valkey"
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

type PushoverConfig struct {
	Enabled bool   `yaml:"enabled"`
	UserKey string `yaml:"user_key"`
	AppKey  string `yaml:"app_key"`
}

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Store    StoreConfig    `yaml:"store"`
	Pushover PushoverConfig `yaml:"pushover"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func Default() *Config {
	return &Config{
		Source: SourceConfig{
			URL:            DefaultSourceURL,
			PageLimit:      250,
			TimeoutSeconds: 10,
		},
		Tracker: TrackerConfig{
			CheckFrequencyMinutes: 60,
			HistorySize:           50,
			DataDir:               ".",
		},
		Store: StoreConfig{
			Type: "file",
		},
		MetricsAddr: ":9090",
	}
}

// Load reads the YAML config at path on top of the defaults and validates the
// result. A missing file is fine: the defaults are a working configuration
// with notifications off.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Info("Config file not found, using defaults", "path", path)
	} else if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source url must be set")
	}
	if c.Source.PageLimit <= 0 {
		return fmt.Errorf("source page_limit must be positive")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source timeout_seconds must be positive")
	}
	if c.Store.Type != "file" && c.Store.Type != "valkey" {
		return fmt.Errorf("store type must be file or valkey, got %q", c.Store.Type)
	}
	if c.Store.Type == "valkey" && c.Store.Address == "" {
		return fmt.Errorf("valkey store requires an address")
	}

	// Credentials problems must surface here, not in the middle of a check
	// cycle.
	if c.Pushover.Enabled && (c.Pushover.UserKey == "" || c.Pushover.AppKey == "") {
		return fmt.Errorf("pushover enabled but user_key or app_key is not set")
	}

	if c.Tracker.CheckFrequencyMinutes < MinCheckFrequencyMinutes {
		slog.Warn("Check frequency below minimum, clamping",
			"configured", c.Tracker.CheckFrequencyMinutes,
			"minimum", MinCheckFrequencyMinutes)
		c.Tracker.CheckFrequencyMinutes = MinCheckFrequencyMinutes
	}
	if c.Tracker.HistorySize < MinHistorySize {
		slog.Warn("History size below minimum, clamping",
			"configured", c.Tracker.HistorySize,
			"minimum", MinHistorySize)
		c.Tracker.HistorySize = MinHistorySize
	}
	return nil
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Tracker.CheckFrequencyMinutes) * time.Minute
}

func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
