package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags and
// a handful of cross-field rules the tags cannot express.
//
// Call it after ApplyDefaults so zero values that have defaults do not
// trip required checks.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		return err
	}

	// Database rules depend on the selected backend, so the store owns them.
	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// The blob root and staging directory must differ: commit moves staged
	// files into the root and would otherwise overwrite in place.
	if cfg.Storage.Staging == cfg.Storage.Root {
		return fmt.Errorf("storage: staging directory must differ from root")
	}

	return nil
}
