package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ApplyEnv overlays fields tagged `env:"..."` from the process environment.
// Unset variables leave the file values untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
