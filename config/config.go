// Package config loads the environment-driven configuration of §6:
// the data directory, project identity, and default query parameters.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the environment-configurable settings of the engine.
type Config struct {
	DataDir       string // DATA_DIR, default "data"
	ProjectName   string // PROJECT_NAME
	APIV1Str      string // API_V1_STR
	DefaultTopK   int    // DEFAULT_TOP_K
	IndexFilename string // INDEX_FILENAME
}

// Default returns the configuration's zero-environment defaults.
func Default() *Config {
	return &Config{
		DataDir:       "data",
		ProjectName:   "nanovec",
		APIV1Str:      "/api/v1",
		DefaultTopK:   10,
		IndexFilename: "indexer_state.json",
	}
}

// LoadFromEnv returns Default() overridden by whichever of DATA_DIR,
// PROJECT_NAME, API_V1_STR, DEFAULT_TOP_K, INDEX_FILENAME are set in the
// process environment. A variable that is set but fails to parse (for the
// numeric fields) leaves the default in place rather than erroring.
func LoadFromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PROJECT_NAME"); v != "" {
		cfg.ProjectName = v
	}
	if v := os.Getenv("API_V1_STR"); v != "" {
		cfg.APIV1Str = v
	}
	if v := os.Getenv("DEFAULT_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.DefaultTopK = k
		}
	}
	if v := os.Getenv("INDEX_FILENAME"); v != "" {
		cfg.IndexFilename = v
	}

	return cfg
}

// Validate reports whether the configuration can be used to boot the
// engine.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data directory not specified")
	}
	if c.DefaultTopK < 1 {
		return fmt.Errorf("config: invalid default top_k: %d (must be > 0)", c.DefaultTopK)
	}
	return nil
}
