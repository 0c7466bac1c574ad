package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/versesync/versesync/pkg/sync/store"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config; everything else comes from defaults
	configContent := `
logging:
  level: "INFO"

storage:
  root: "` + yamlSafePath(tmpDir) + `/files"

database:
  type: sqlite

server:
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("Expected default read header timeout 10s, got %v", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("Expected sqlite database type, got %q", cfg.Database.Type)
	}
	if cfg.Storage.Staging == "" {
		t.Error("Expected staging directory to be defaulted")
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"
  output: "stderr"

shutdown_timeout: "45s"

storage:
  root: "` + yamlSafePath(tmpDir) + `/blobs"
  staging: "` + yamlSafePath(tmpDir) + `/staging"

server:
  host: "127.0.0.1"
  port: 9090
  read_header_timeout: "5s"
  idle_timeout: "60s"

metrics:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Lowercase level is normalized to uppercase
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("Expected shutdown_timeout 45s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("Expected read header timeout 5s, got %v", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Server.IdleTimeout != 60*time.Second {
		t.Errorf("Expected idle timeout 60s, got %v", cfg.Server.IdleTimeout)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics to be enabled")
	}
	if cfg.Storage.Staging != yamlSafePath(tmpDir)+"/staging" {
		t.Errorf("Expected explicit staging path, got %q", cfg.Storage.Staging)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	// Point the default config dir at an empty temp dir so no file is found
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults when config file is missing, got error: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "LOUD"

storage:
  root: "` + yamlSafePath(tmpDir) + `/files"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
}

func TestMustLoad_MissingFileSuggestsInit(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	_, err := MustLoad("")
	if err == nil {
		t.Fatal("Expected error when no config file exists")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 9191
	cfg.Storage.Root = filepath.Join(tmpDir, "files")
	cfg.Storage.Staging = filepath.Join(tmpDir, "staging")

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// Secrets may end up in the file, so it must not be world-readable
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat config file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected file mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Server.Port != 9191 {
		t.Errorf("Expected reloaded port 9191, got %d", loaded.Server.Port)
	}
	if loaded.Storage.Root != cfg.Storage.Root {
		t.Errorf("Expected reloaded storage root %q, got %q", cfg.Storage.Root, loaded.Storage.Root)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	expected := filepath.Join(tmpDir, "versesync", "config.yaml")
	if got := GetDefaultConfigPath(); got != expected {
		t.Errorf("Expected default config path %q, got %q", expected, got)
	}
}
