package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/versesync/versesync/pkg/sync/store"
)

// Default values for server configuration.
const (
	DefaultLogLevel        = "INFO"
	DefaultLogFormat       = "text"
	DefaultLogOutput       = "stdout"
	DefaultShutdownTimeout = 30 * time.Second

	DefaultServerPort        = 8080
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	cfg.Database.ApplyDefaults()

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = DefaultLogLevel
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = DefaultLogFormat
	}

	if cfg.Output == "" {
		cfg.Output = DefaultLogOutput
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultServerPort
	}

	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}

	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(getDataDir(), "files")
	}

	// Staging defaults to a sibling of the blob root so commits can use
	// rename instead of copy.
	if cfg.Staging == "" {
		cfg.Staging = filepath.Join(filepath.Dir(cfg.Root), "staging")
	}
}

// GetDefaultConfig returns a configuration with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
		Server: ServerConfig{
			Port:              DefaultServerPort,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
