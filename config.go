package browserd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen   string        `yaml:"listen"`
	Engine   EngineConfig  `yaml:"engine"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	History  HistoryConfig `yaml:"history"`
	Auth     AuthConfig    `yaml:"auth"`
}

// EngineConfig controls the Chrome engine adapter.
type EngineConfig struct {
	// RemoteURL connects to an already-running Chrome over its DevTools
	// WebSocket. Empty launches a local headless instance.
	RemoteURL string `yaml:"remote_url"`
	// Stealth bootstraps every new page with anti-detection scripts.
	Stealth bool `yaml:"stealth"`
}

// TimeoutConfig bounds engine-facing operations.
type TimeoutConfig struct {
	Navigation time.Duration `yaml:"navigation"`
	Content    time.Duration `yaml:"content"`
	Step       time.Duration `yaml:"step"`
	Teardown   time.Duration `yaml:"teardown"`
}

// HistoryConfig enables the optional SQLite history/event sink.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig enables HTTP Basic auth when both fields are set.
// PasswordHash is a bcrypt hash, never a plaintext password.
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8089"
	}
	if c.Timeouts.Navigation <= 0 {
		c.Timeouts.Navigation = 30 * time.Second
	}
	if c.Timeouts.Content <= 0 {
		c.Timeouts.Content = 15 * time.Second
	}
	if c.Timeouts.Step <= 0 {
		c.Timeouts.Step = 15 * time.Second
	}
	if c.Timeouts.Teardown <= 0 {
		c.Timeouts.Teardown = 10 * time.Second
	}
}
