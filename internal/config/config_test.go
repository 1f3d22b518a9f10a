package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Upstream.BaseURL = "https://provider.example.com/api"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with base url", func(c *Config) {}, false},
		{"missing upstream base url", func(c *Config) { c.Upstream.BaseURL = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad port high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"zero inactivity timeout", func(c *Config) { c.Tracking.InactivityTimeoutMinutes = 0 }, true},
		{"zero parallelism", func(c *Config) { c.Tracking.BulkRefreshParallelism = 0 }, true},
		{"missing sqlite path", func(c *Config) { c.Storage.SQLitePath = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9090

[upstream]
base_url = "https://provider.example.com/api"

[tracking]
inactivity_timeout_minutes = 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Tracking.InactivityTimeoutMinutes != 10 {
		t.Errorf("InactivityTimeoutMinutes = %d, want 10", cfg.Tracking.InactivityTimeoutMinutes)
	}
	// Untouched sections keep their defaults.
	if cfg.Tracking.BulkRefreshParallelism != 4 {
		t.Errorf("BulkRefreshParallelism = %d, want default 4", cfg.Tracking.BulkRefreshParallelism)
	}
	if cfg.Storage.SQLitePath == "" {
		t.Error("SQLitePath default missing")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
