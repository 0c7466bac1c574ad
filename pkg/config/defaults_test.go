package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/versesync/versesync/pkg/sync/store"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LoggingNormalizesLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "warn"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected normalized level 'WARN', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("Expected default read header timeout 10s, got %v", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Server.IdleTimeout != 120*time.Second {
		t.Errorf("Expected default idle timeout 120s, got %v", cfg.Server.IdleTimeout)
	}
}

func TestApplyDefaults_StorageStagingSibling(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Root: "/var/lib/versesync/files"},
	}
	ApplyDefaults(cfg)

	expected := filepath.Join("/var/lib/versesync", "staging")
	if cfg.Storage.Staging != expected {
		t.Errorf("Expected staging %q, got %q", expected, cfg.Storage.Staging)
	}
}

func TestApplyDefaults_StoragePreservesExplicitStaging(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{
			Root:    "/data/files",
			Staging: "/tmp/versesync-staging",
		},
	}
	ApplyDefaults(cfg)

	if cfg.Storage.Staging != "/tmp/versesync-staging" {
		t.Errorf("Expected explicit staging to be preserved, got %q", cfg.Storage.Staging)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:         LoggingConfig{Level: "ERROR", Format: "json", Output: "stderr"},
		ShutdownTimeout: 5 * time.Second,
		Server:          ServerConfig{Port: 9999},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level ERROR to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format json to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 to be preserved, got %d", cfg.Server.Port)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := GetDefaultConfig()

	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("Expected default database type sqlite, got %q", cfg.Database.Type)
	}
	if cfg.Database.SQLite.Path == "" {
		t.Error("Expected default SQLite path to be set")
	}
	if cfg.Storage.Root == "" {
		t.Error("Expected default storage root to be set")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics to be disabled by default")
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}
