package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_MissingStorageRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Root = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing storage root")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "storage") || !strings.Contains(errStr, "root") {
		t.Errorf("Expected error about storage root, got: %v", err)
	}
}

func TestValidate_StagingEqualsRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Staging = cfg.Storage.Root

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when staging equals root")
	}
	if !strings.Contains(err.Error(), "staging") {
		t.Errorf("Expected error about staging directory, got: %v", err)
	}
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ShutdownTimeout = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
}

func TestValidate_UnsupportedDatabaseType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Type = "oracle"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unsupported database type")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("Expected database error, got: %v", err)
	}
}
