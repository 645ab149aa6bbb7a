// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// GraphConfig holds Microsoft Graph connection settings
type GraphConfig struct {
	BaseURL  string `yaml:"base_url"`  // Override for testing; empty = production Graph API
	TokenURL string `yaml:"token_url"` // Override for testing
	Account  string `yaml:"account"`   // Keyring account name holding the tokens
}

// RedisConfig holds cache store connection settings
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SyncConfig holds synchronization timing settings. Durations use Go
// duration syntax (e.g. "5m", "30s").
type SyncConfig struct {
	SnapshotTTL     string `yaml:"snapshot_ttl"`      // Task snapshot cache TTL (default: "5m")
	ProgressTTL     string `yaml:"progress_ttl"`      // Sync progress visibility window (default: "10m")
	Cooldown        string `yaml:"cooldown"`          // Incremental sync cooldown (default: "30s")
	RateLimit       int    `yaml:"rate_limit"`        // Max sync initiations per window (default: 10)
	RateLimitWindow string `yaml:"rate_limit_window"` // Rate limit window (default: "1m")
}

// AnalyticsConfig holds sync-run history settings
type AnalyticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite database path; empty = XDG data dir
}

// Config represents the application configuration
type Config struct {
	Graph     GraphConfig     `yaml:"graph"`
	Redis     RedisConfig     `yaml:"redis"`
	Sync      SyncConfig      `yaml:"sync"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Verbose   bool            `yaml:"verbose"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			Account: "default",
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Sync: SyncConfig{
			SnapshotTTL:     "5m",
			ProgressTTL:     "10m",
			Cooldown:        "30s",
			RateLimit:       10,
			RateLimitWindow: "1m",
		},
		Analytics: AnalyticsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from the specified path, or the default XDG path
// if empty. If the config file doesn't exist, it creates one with defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	// Apply defaults for unset fields
	def := DefaultConfig()
	if cfg.Graph.Account == "" {
		cfg.Graph.Account = def.Graph.Account
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = def.Redis.Address
	}
	if cfg.Sync.SnapshotTTL == "" {
		cfg.Sync.SnapshotTTL = def.Sync.SnapshotTTL
	}
	if cfg.Sync.ProgressTTL == "" {
		cfg.Sync.ProgressTTL = def.Sync.ProgressTTL
	}
	if cfg.Sync.Cooldown == "" {
		cfg.Sync.Cooldown = def.Sync.Cooldown
	}
	if cfg.Sync.RateLimit == 0 {
		cfg.Sync.RateLimit = def.Sync.RateLimit
	}
	if cfg.Sync.RateLimitWindow == "" {
		cfg.Sync.RateLimitWindow = def.Sync.RateLimitWindow
	}
	if cfg.Analytics.Path != "" {
		cfg.Analytics.Path = ExpandPath(cfg.Analytics.Path)
	}

	return cfg, nil
}

// save writes the configuration to the specified path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use the embedded sample config which includes all documentation and comments
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty")
	}
	for name, val := range map[string]string{
		"sync.snapshot_ttl":      c.Sync.SnapshotTTL,
		"sync.progress_ttl":      c.Sync.ProgressTTL,
		"sync.cooldown":          c.Sync.Cooldown,
		"sync.rate_limit_window": c.Sync.RateLimitWindow,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, val)
		}
	}
	return nil
}

// parseDuration parses a duration string, falling back to def on failure.
func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

// SnapshotTTL returns the parsed snapshot TTL.
func (c *Config) SnapshotTTL() time.Duration {
	return parseDuration(c.Sync.SnapshotTTL, 5*time.Minute)
}

// ProgressTTL returns the parsed progress record TTL.
func (c *Config) ProgressTTL() time.Duration {
	return parseDuration(c.Sync.ProgressTTL, 10*time.Minute)
}

// Cooldown returns the parsed incremental sync cooldown.
func (c *Config) Cooldown() time.Duration {
	return parseDuration(c.Sync.Cooldown, 30*time.Second)
}

// RateLimitWindow returns the parsed rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	return parseDuration(c.Sync.RateLimitWindow, time.Minute)
}

// AnalyticsPath returns the sync-run history database path.
func (c *Config) AnalyticsPath() string {
	if c.Analytics.Path != "" {
		return c.Analytics.Path
	}
	return filepath.Join(GetDataDir(), "sync_runs.db")
}

// GetConfigDir returns the XDG config directory for todosync
func GetConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "todosync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "todosync")
}

// GetDataDir returns the XDG data directory for todosync
func GetDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "todosync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "todosync")
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
