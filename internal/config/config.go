package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Upstream UpstreamConfig `toml:"upstream"` // Upstream flight-data provider settings
	Tracking TrackingConfig `toml:"tracking"` // Tracking session reconciliation settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// UpstreamConfig contains settings for the external flight-data provider
type UpstreamConfig struct {
	BaseURL        string `toml:"base_url"`        // Base URL of the provider REST API
	APIKey         string `toml:"api_key"`         // API key sent with every request
	TimeoutSeconds int    `toml:"timeout_seconds"` // HTTP timeout for provider requests in seconds (bounds one stalled request)
}

// TrackingConfig contains reconciliation settings for tracking sessions
type TrackingConfig struct {
	InactivityTimeoutMinutes int `toml:"inactivity_timeout_minutes"` // Minutes without fresh data before a session is force-completed (default: 5)
	BulkRefreshParallelism   int `toml:"bulk_refresh_parallelism"`   // Maximum concurrent reconciliation passes during a bulk listing refresh (default: 4)
	DefaultPollIntervalSecs  int `toml:"default_poll_interval_secs"` // Advisory polling interval returned to clients when a session does not set its own (default: 60)
	AirportCacheExpiryMins   int `toml:"airport_cache_expiry_mins"`  // Minutes to cache airport detail lookups in memory (default: 1440)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath        string `toml:"sqlite_path"`          // Path to the SQLite database file
	MaxPositionsInAPI int    `toml:"max_positions_in_api"` // Maximum number of position samples returned per track in API responses
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// DefaultConfig returns a configuration populated with sensible defaults.
// Values loaded from file override these.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			Host:               "127.0.0.1",
			CORSAllowedOrigins: []string{"*"},
			ReadTimeoutSecs:    30,
			WriteTimeoutSecs:   30,
			IdleTimeoutSecs:    60,
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 15,
		},
		Tracking: TrackingConfig{
			InactivityTimeoutMinutes: 5,
			BulkRefreshParallelism:   4,
			DefaultPollIntervalSecs:  60,
			AirportCacheExpiryMins:   1440,
		},
		Storage: StorageConfig{
			SQLitePath:        "data/tailtrack.db",
			MaxPositionsInAPI: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads the configuration from the given path
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Location in configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("no usable config file found: %w", lastErr)
}

// Validate checks the configuration for invalid or missing values
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate upstream config
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream base_url is required")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid upstream timeout_seconds: %d (must be > 0)", c.Upstream.TimeoutSeconds)
	}

	// Validate tracking config
	if c.Tracking.InactivityTimeoutMinutes <= 0 {
		return fmt.Errorf("invalid inactivity_timeout_minutes: %d (must be > 0)", c.Tracking.InactivityTimeoutMinutes)
	}
	if c.Tracking.BulkRefreshParallelism < 1 {
		return fmt.Errorf("invalid bulk_refresh_parallelism: %d (must be >= 1)", c.Tracking.BulkRefreshParallelism)
	}

	// Validate storage config
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage sqlite_path is required")
	}
	if c.Storage.MaxPositionsInAPI < 0 {
		return fmt.Errorf("invalid max_positions_in_api: %d", c.Storage.MaxPositionsInAPI)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
