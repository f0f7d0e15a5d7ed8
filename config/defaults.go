// Package config provides configuration defaults and utilities
// for the croft application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables,
// except where a constant is documented as a fixed policy.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8000"

	// DefaultAllowedOrigin is the default CORS origin for the dashboard UI.
	// Override via config: server.allowed_origins
	DefaultAllowedOrigin = "http://localhost:3000"

	// DefaultRequestBodyLimit caps an inbound JSON body to prevent OOM.
	// A 100k-reading batch serializes to roughly 15 MiB; 32 MiB leaves headroom.
	// Override via config: server.max_body_bytes
	DefaultRequestBodyLimit = 32 * 1024 * 1024
)

// =============================================================================
// Ingest Policy
// =============================================================================

const (
	// AsyncBatchThreshold is the batch size at which ingestion switches from
	// synchronous inserts to background processing. Batches with fewer readings
	// are inserted inline and the caller receives the stored rows; batches of
	// this size or larger are queued and the caller receives a task id.
	// Fixed policy, not configurable at runtime.
	AsyncBatchThreshold = 100

	// ProgressUpdateEvery is the record interval at which a batch worker
	// publishes {current, total} progress to the task state.
	ProgressUpdateEvery = 10
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryLimit is the page size for /readings when none is given.
	DefaultQueryLimit = 100

	// MaxQueryLimit caps the page size for /readings.
	MaxQueryLimit = 1000

	// RecentReadingsCount is how many recent rows the overview analytics carry.
	RecentReadingsCount = 5
)

// =============================================================================
// Worker Defaults
// =============================================================================

const (
	// DefaultWorkerCount is the number of concurrent task workers.
	// Each worker executes one queued task at a time.
	// Override via config: workers.count
	DefaultWorkerCount = 4

	// DefaultReserveTimeout is how long a worker blocks waiting for a task
	// before re-checking for shutdown.
	DefaultReserveTimeout = 2 * time.Second

	// DefaultTaskTimeout bounds a single task execution. A 100k-reading batch
	// inserts in well under a minute; 10 minutes covers slow disks.
	DefaultTaskTimeout = 10 * time.Minute

	// DefaultTaskStateTTL is how long task state hashes are retained in the
	// broker after their last update. Matches the Celery result TTL of 24h.
	// Override via config: broker.task_state_ttl
	DefaultTaskStateTTL = 24 * time.Hour

	// DefaultDrainTimeoutSec is how long to wait for in-flight tasks during
	// shutdown. Follows the Kubernetes convention
	// (terminationGracePeriodSeconds = 30s). After this timeout, remaining
	// tasks are abandoned and will be re-run only if re-enqueued.
	// Override via config: workers.drain_timeout_sec
	DefaultDrainTimeoutSec = 30
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRetentionMaxAge is the age beyond which raw readings are eligible
	// for deletion. Daily statistics are never swept.
	// Override via config: retention.max_age
	DefaultRetentionMaxAge = 90 * 24 * time.Hour

	// DefaultCleanupHour is the UTC hour at which the scheduler enqueues the
	// daily cleanup task.
	// Override via config: retention.cleanup_hour
	DefaultCleanupHour = 5

	// DefaultRollupHour is the UTC hour at which the scheduler enqueues the
	// daily stats rollup for the previous day.
	// Override via config: rollup.hour
	DefaultRollupHour = 0
)

// =============================================================================
// Database Defaults
// =============================================================================

const (
	// DefaultDatabaseDriver selects the embedded analytics store.
	// Supported: "duckdb" (embedded) and "postgres" (via DSN).
	// Override via config: database.driver
	DefaultDatabaseDriver = "duckdb"

	// DefaultDatabasePath is the DuckDB database file location.
	// Override via config: database.path
	DefaultDatabasePath = "croft.db"

	// DefaultMaxOpenConns bounds the connection pool.
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns bounds idle pooled connections.
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime recycles pooled connections.
	DefaultConnMaxLifetime = 5 * time.Minute
)

// =============================================================================
// Broker Defaults
// =============================================================================

const (
	// DefaultRedisAddr is the task broker address.
	// Override via config: broker.addr or flag -redis
	DefaultRedisAddr = "localhost:6379"

	// DefaultQueueKey is the Redis list the dispatcher and workers share.
	// Override via config: broker.queue_key
	DefaultQueueKey = "croft:tasks"
)

// =============================================================================
// Analytics Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the DDSketch relative accuracy used for
	// percentile reporting when analytics.percentiles is enabled.
	// 0.01 = 1% relative error.
	// Override via config: analytics.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)
