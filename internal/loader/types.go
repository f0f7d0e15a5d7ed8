// Package loader - Configuration Types
//
// Defines the YAML configuration structure for croftd.
package loader

import (
	"time"

	"github.com/xtxerr/croft/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for croftd.
type Config struct {
	// Listen is the HTTP listen address.
	// Format: "host:port" or ":port"
	// Default: "0.0.0.0:8000"
	Listen string `yaml:"listen"`

	// Server configures the HTTP boundary.
	Server ServerConfig `yaml:"server"`

	// Database is the analytics store (DuckDB embedded, or Postgres via DSN).
	Database DatabaseConfig `yaml:"database"`

	// Broker is the Redis task queue shared by the dispatcher and workers.
	Broker BrokerConfig `yaml:"broker"`

	// Workers configures the background task pool.
	Workers WorkerConfig `yaml:"workers"`

	// Retention configures the sweep of old readings.
	Retention RetentionConfig `yaml:"retention"`

	// Rollup configures the scheduled daily statistics job.
	Rollup RollupConfig `yaml:"rollup"`

	// Analytics configures on-demand analytics behavior.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// ServerConfig holds HTTP boundary settings.
type ServerConfig struct {
	// AllowedOrigins is the CORS allow-list for browser dashboards.
	// Default: ["http://localhost:3000"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxBodyBytes caps an inbound request body.
	// Default: 32 MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DatabaseConfig selects and tunes the relational store.
type DatabaseConfig struct {
	// Driver selects the backend: "duckdb" (embedded) or "postgres".
	// Default: "duckdb"
	Driver string `yaml:"driver"`

	// Path is the DuckDB database file. Empty means in-memory (tests).
	// Used only when driver is "duckdb".
	// Default: "croft.db"
	Path string `yaml:"path"`

	// DSN is the Postgres connection string.
	// Used only when driver is "postgres".
	DSN string `yaml:"dsn"`
}

// BrokerConfig holds Redis connection settings for the task queue.
type BrokerConfig struct {
	// Addr is the Redis host:port.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password is the Redis AUTH password, if any.
	Password string `yaml:"password"`

	// DB is the Redis logical database number.
	DB int `yaml:"db"`

	// QueueKey is the list key tasks are pushed to.
	// Default: "croft:tasks"
	QueueKey string `yaml:"queue_key"`

	// TaskStateTTL is how long task state survives after its last update.
	// Default: 24h
	TaskStateTTL Duration `yaml:"task_state_ttl"`
}

// WorkerConfig tunes the background task pool.
type WorkerConfig struct {
	// Count is the number of concurrent task workers.
	// Default: 4
	Count int `yaml:"count"`

	// DrainTimeoutSec is how long shutdown waits for in-flight tasks.
	// Default: 30
	DrainTimeoutSec int `yaml:"drain_timeout_sec"`
}

// RetentionConfig controls deletion of readings past the horizon.
type RetentionConfig struct {
	// MaxAge is the retention horizon for raw readings.
	// Default: 2160h (90 days)
	MaxAge Duration `yaml:"max_age"`

	// CleanupHour is the UTC hour the daily cleanup task is enqueued.
	// Default: 5
	CleanupHour int `yaml:"cleanup_hour"`

	// Archive configures Parquet archiving of swept rows.
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig controls the archive-before-delete step of the sweep.
type ArchiveConfig struct {
	// Enabled turns on Parquet archiving of rows about to be deleted.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Dir is the directory archive files are written to.
	// Default: "archive"
	Dir string `yaml:"dir"`
}

// RollupConfig controls the scheduled daily statistics job.
type RollupConfig struct {
	// Enabled turns the scheduled rollup on. Batch-completion chaining
	// enqueues rollups regardless of this switch.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Hour is the UTC hour the daily rollup task is enqueued.
	// Default: 0
	Hour int `yaml:"hour"`
}

// AnalyticsConfig tunes on-demand analytics.
type AnalyticsConfig struct {
	// Percentiles enables p50/p90/p95/p99 on per-entity analytics.
	// Default: false
	Percentiles bool `yaml:"percentiles"`

	// SketchAccuracy is the DDSketch relative accuracy (0 < a < 1).
	// Default: 0.01
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// JSON switches output from text to JSON.
	// Default: false
	JSON bool `yaml:"json"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Listen: config.DefaultListenAddress,
		Server: ServerConfig{
			AllowedOrigins: []string{config.DefaultAllowedOrigin},
			MaxBodyBytes:   config.DefaultRequestBodyLimit,
		},
		Database: DatabaseConfig{
			Driver: config.DefaultDatabaseDriver,
			Path:   config.DefaultDatabasePath,
		},
		Broker: BrokerConfig{
			Addr:         config.DefaultRedisAddr,
			QueueKey:     config.DefaultQueueKey,
			TaskStateTTL: Duration(config.DefaultTaskStateTTL),
		},
		Workers: WorkerConfig{
			Count:           config.DefaultWorkerCount,
			DrainTimeoutSec: config.DefaultDrainTimeoutSec,
		},
		Retention: RetentionConfig{
			MaxAge:      Duration(config.DefaultRetentionMaxAge),
			CleanupHour: config.DefaultCleanupHour,
			Archive: ArchiveConfig{
				Enabled: false,
				Dir:     "archive",
			},
		},
		Rollup: RollupConfig{
			Enabled: true,
			Hour:    config.DefaultRollupHour,
		},
		Analytics: AnalyticsConfig{
			Percentiles:    false,
			SketchAccuracy: config.DefaultSketchAccuracy,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports: "90s", "5m", "2160h", or plain integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
