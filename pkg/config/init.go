package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// InitConfig creates a configuration file with default values at the default
// location. Returns the path the file was written to.
//
// Fails if the file already exists unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath creates a configuration file with default values at the
// given path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()

	// A generated secret makes the file runnable out of the box. Production
	// deployments should override it with VERSESYNC_JWT_SECRET.
	secret, err := generateRandomSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.Server.JWTSecret = secret

	return SaveConfig(cfg, path)
}

// generateRandomSecret returns 32 random bytes hex-encoded (64 characters).
func generateRandomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
