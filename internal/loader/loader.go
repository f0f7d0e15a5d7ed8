// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating the result before anything is constructed from it
package loader

import (
	"fmt"
	"os"

	"github.com/xtxerr/croft/internal/errors"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. Values not present in the file
// keep their defaults. Environment variable references ($VAR or ${VAR}) in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration, collecting every violation.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}

	switch cfg.Database.Driver {
	case "duckdb":
		// Empty path is allowed: in-memory database.
	case "postgres":
		if cfg.Database.DSN == "" {
			errs.AddField("database.dsn", "required for the postgres driver")
		}
	default:
		errs.AddField("database.driver",
			fmt.Sprintf("unsupported driver %q (duckdb or postgres)", cfg.Database.Driver))
	}

	if cfg.Broker.Addr == "" {
		errs.AddField("broker.addr", "cannot be empty")
	}
	if cfg.Broker.QueueKey == "" {
		errs.AddField("broker.queue_key", "cannot be empty")
	}
	if cfg.Broker.TaskStateTTL.Duration() <= 0 {
		errs.AddField("broker.task_state_ttl", "must be positive")
	}

	if cfg.Workers.Count <= 0 {
		errs.AddField("workers.count", "must be at least 1")
	}
	if cfg.Workers.DrainTimeoutSec < 0 {
		errs.AddField("workers.drain_timeout_sec", "cannot be negative")
	}

	if cfg.Retention.MaxAge.Duration() <= 0 {
		errs.AddField("retention.max_age", "must be positive")
	}
	if cfg.Retention.CleanupHour < 0 || cfg.Retention.CleanupHour > 23 {
		errs.AddField("retention.cleanup_hour", "must be between 0 and 23")
	}
	if cfg.Retention.Archive.Enabled && cfg.Retention.Archive.Dir == "" {
		errs.AddField("retention.archive.dir", "required when archiving is enabled")
	}

	if cfg.Rollup.Hour < 0 || cfg.Rollup.Hour > 23 {
		errs.AddField("rollup.hour", "must be between 0 and 23")
	}

	if a := cfg.Analytics.SketchAccuracy; a <= 0 || a >= 1 {
		errs.AddField("analytics.sketch_accuracy", "must be between 0 and 1 exclusive")
	}

	if cfg.Server.MaxBodyBytes <= 0 {
		errs.AddField("server.max_body_bytes", "must be positive")
	}

	return errs.Err()
}
