package app

import (
	"fmt"

	"github.com/jasciiz/evox/internal/registry"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ManifestPath points at a single .hcl manifest file or a directory of
	// them.
	ManifestPath string

	// OpName is the operation to compile and run. Empty lists the registered
	// operations instead.
	OpName string

	// Mode is the compilation mode name, "trace" or "vectorized".
	Mode string

	// Lanes is the batch width for vectorized runs.
	Lanes int

	// Seed overrides the artifact's derived random stream seed when nonzero.
	Seed uint64

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, fmt.Errorf("ManifestPath is a required configuration field and cannot be empty")
	}
	if _, err := registry.ParseMode(cfg.Mode); err != nil {
		return nil, err
	}
	if cfg.Lanes < 1 {
		return nil, fmt.Errorf("lanes must be at least 1, got %d", cfg.Lanes)
	}
	return &cfg, nil
}
