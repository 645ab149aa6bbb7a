package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Configuration Tests
// =============================================================================

// TestDefaultConfig verifies the built-in defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Graph.Account != "default" {
		t.Errorf("expected default account, got %q", cfg.Graph.Account)
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Errorf("expected localhost redis, got %q", cfg.Redis.Address)
	}
	if cfg.Sync.SnapshotTTL != "5m" || cfg.Sync.ProgressTTL != "10m" || cfg.Sync.Cooldown != "30s" {
		t.Errorf("unexpected sync durations: %+v", cfg.Sync)
	}
	if cfg.Sync.RateLimit != 10 || cfg.Sync.RateLimitWindow != "1m" {
		t.Errorf("unexpected rate limit settings: %+v", cfg.Sync)
	}
	if !cfg.Analytics.Enabled {
		t.Error("analytics should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

// TestLoadCreatesDefaultFile verifies first-run file creation
func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Errorf("expected defaults on first run, got %q", cfg.Redis.Address)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	// The created file is the documented sample, not a bare dump.
	if !strings.Contains(string(data), "#") {
		t.Error("created config should carry its comments")
	}
}

// TestLoadAppliesDefaultsToPartialFile verifies unset fields fall back
func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := `
redis:
  address: redis.internal:6380
  db: 2
sync:
  cooldown: 45s
`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redis.Address != "redis.internal:6380" || cfg.Redis.DB != 2 {
		t.Errorf("explicit settings lost: %+v", cfg.Redis)
	}
	if cfg.Sync.Cooldown != "45s" {
		t.Errorf("explicit cooldown lost: %q", cfg.Sync.Cooldown)
	}
	if cfg.Sync.SnapshotTTL != "5m" || cfg.Sync.RateLimit != 10 {
		t.Errorf("defaults not applied: %+v", cfg.Sync)
	}
	if cfg.Graph.Account != "default" {
		t.Errorf("default account not applied: %q", cfg.Graph.Account)
	}
}

// TestLoadRejectsInvalidYAML verifies the parse error path
func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("redis: [not: closed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

// TestValidate verifies the validation rules
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty redis address", func(c *Config) { c.Redis.Address = "" }, true},
		{"bad snapshot ttl", func(c *Config) { c.Sync.SnapshotTTL = "five minutes" }, true},
		{"bad progress ttl", func(c *Config) { c.Sync.ProgressTTL = "10x" }, true},
		{"bad cooldown", func(c *Config) { c.Sync.Cooldown = "soon" }, true},
		{"bad rate limit window", func(c *Config) { c.Sync.RateLimitWindow = "1 minute" }, true},
		{"empty durations pass", func(c *Config) { c.Sync.SnapshotTTL = "" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// TestDurationAccessors verifies parsing with fallbacks
func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.SnapshotTTL = "90s"
	cfg.Sync.ProgressTTL = ""
	cfg.Sync.Cooldown = "garbage"
	cfg.Sync.RateLimitWindow = "2m"

	if got := cfg.SnapshotTTL(); got != 90*time.Second {
		t.Errorf("SnapshotTTL() = %s", got)
	}
	if got := cfg.ProgressTTL(); got != 10*time.Minute {
		t.Errorf("empty ProgressTTL should fall back, got %s", got)
	}
	if got := cfg.Cooldown(); got != 30*time.Second {
		t.Errorf("unparseable Cooldown should fall back, got %s", got)
	}
	if got := cfg.RateLimitWindow(); got != 2*time.Minute {
		t.Errorf("RateLimitWindow() = %s", got)
	}
}

// TestAnalyticsPath verifies the explicit path and the XDG fallback
func TestAnalyticsPath(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)

	cfg := DefaultConfig()
	want := filepath.Join(dataDir, "todosync", "sync_runs.db")
	if got := cfg.AnalyticsPath(); got != want {
		t.Errorf("AnalyticsPath() = %q, want %q", got, want)
	}

	cfg.Analytics.Path = "/var/lib/todosync/runs.db"
	if got := cfg.AnalyticsPath(); got != "/var/lib/todosync/runs.db" {
		t.Errorf("explicit path lost: %q", got)
	}
}

// TestXDGDirectories verifies the environment-driven directory resolution
func TestXDGDirectories(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/conf")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")

	if got := GetConfigDir(); got != filepath.Join("/tmp/conf", "todosync") {
		t.Errorf("GetConfigDir() = %q", got)
	}
	if got := GetDataDir(); got != filepath.Join("/tmp/data", "todosync") {
		t.Errorf("GetDataDir() = %q", got)
	}
}

// TestExpandPath verifies tilde expansion
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandPath("~/data/runs.db"); got != filepath.Join(home, "data", "runs.db") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got := ExpandPath("/absolute/path"); got != "/absolute/path" {
		t.Errorf("absolute path must pass through, got %q", got)
	}
	if got := ExpandPath("relative/path"); got != "relative/path" {
		t.Errorf("relative path must pass through, got %q", got)
	}
}

// TestGetSampleConfig verifies the embedded sample covers every section
func TestGetSampleConfig(t *testing.T) {
	sample := GetSampleConfig()
	for _, section := range []string{"graph:", "redis:", "sync:", "analytics:"} {
		if !strings.Contains(sample, section) {
			t.Errorf("sample config missing section %q", section)
		}
	}
}
