package config

import (
	"errors"
	"fmt"
	"os"
)

// loadFromEnv overrides config from RALPHBAN_* environment variables.
// Empty variables are ignored.
func loadFromEnv(cfg *Config, sources map[string]Source) error {
	var errs []error
	for _, s := range settings {
		v, ok := os.LookupEnv(s.envName())
		if !ok || v == "" {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.envName(), err))
			continue
		}
		sources[s.key] = SourceEnv
	}
	return errors.Join(errs...)
}
