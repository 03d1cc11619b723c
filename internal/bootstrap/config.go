package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/peter29ljf/bybitoption/internal/config"
)

// Config is an alias for the project's main configuration struct.
type Config = config.Config

// LoadConfig delegates to the project's config loader and then runs
// pre-flight checks that schema validation alone can't catch.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation:
// the persistence directory must be writable (the monitor snapshot and
// the strategy/trade JSON documents are written there on every mutating
// operation), and venue credentials must be non-empty. Placeholder
// credentials are not detected.
func checkPreFlight(cfg *Config) error {
	if err := ensureWritableDir(cfg.Persistence.DataDir); err != nil {
		return fmt.Errorf("persistence.data_dir: %w", err)
	}

	if cfg.Venue.APIKey == "" || cfg.Venue.SecretKey == "" {
		return fmt.Errorf("venue credentials are required")
	}

	return nil
}

func ensureWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	return os.Remove(probe)
}
