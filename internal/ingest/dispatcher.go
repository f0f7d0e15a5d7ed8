// Package ingest routes incoming reading batches. Small batches are stored
// synchronously and the caller gets the persisted rows back; batches at or
// above the async threshold are queued for background processing and the
// caller gets a task id to poll.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/errors"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/model"
	"github.com/xtxerr/croft/internal/store"
	"github.com/xtxerr/croft/internal/tasks"
)

// Config configures the dispatcher.
type Config struct {
	// AsyncThreshold is the batch size at which ingestion switches to
	// background processing.
	AsyncThreshold int
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{AsyncThreshold: config.AsyncBatchThreshold}
}

// Stats holds dispatcher counters.
type Stats struct {
	SyncBatches    int64
	AsyncBatches   int64
	ReadingsStored int64
	ReadingsQueued int64
	Rejected       int64
}

// Result is the outcome of one ingested batch. Exactly one path is populated:
// Readings for the synchronous path, TaskID for the asynchronous one.
type Result struct {
	Async    bool
	Readings []model.SensorReading
	TaskID   string
	Queued   int
}

// Dispatcher validates batches and routes them to the store or the broker.
type Dispatcher struct {
	store  *store.Store
	broker *tasks.Broker
	config Config
	logger *slog.Logger

	syncBatches    atomic.Int64
	asyncBatches   atomic.Int64
	readingsStored atomic.Int64
	readingsQueued atomic.Int64
	rejected       atomic.Int64
}

// New creates a dispatcher.
func New(st *store.Store, broker *tasks.Broker, cfg Config) *Dispatcher {
	if cfg.AsyncThreshold <= 0 {
		cfg.AsyncThreshold = config.AsyncBatchThreshold
	}

	return &Dispatcher{
		store:  st,
		broker: broker,
		config: cfg,
		logger: logging.Component("ingest"),
	}
}

// Ingest validates and routes one batch. The whole batch is rejected when any
// reading is invalid; partial ingestion would leave devices guessing which
// rows made it.
func (d *Dispatcher) Ingest(ctx context.Context, inputs []model.ReadingInput) (*Result, error) {
	if err := model.ValidateBatch(inputs); err != nil {
		d.rejected.Add(1)
		return nil, err
	}

	if len(inputs) >= d.config.AsyncThreshold {
		return d.ingestAsync(ctx, inputs)
	}
	return d.ingestSync(ctx, inputs)
}

func (d *Dispatcher) ingestSync(ctx context.Context, inputs []model.ReadingInput) (*Result, error) {
	readings, err := d.store.InsertReadings(ctx, inputs)
	if err != nil {
		return nil, err
	}

	d.syncBatches.Add(1)
	d.readingsStored.Add(int64(len(readings)))

	d.logger.Debug("batch stored", "readings", len(readings))
	return &Result{Readings: readings}, nil
}

func (d *Dispatcher) ingestAsync(ctx context.Context, inputs []model.ReadingInput) (*Result, error) {
	id, err := d.broker.Enqueue(ctx, tasks.KindProcessBatch, inputs)
	if err != nil {
		return nil, errors.Wrap(err, "queue batch")
	}

	d.asyncBatches.Add(1)
	d.readingsQueued.Add(int64(len(inputs)))

	d.logger.Info("batch queued for background processing",
		"task_id", id,
		"readings", len(inputs),
	)
	return &Result{Async: true, TaskID: id, Queued: len(inputs)}, nil
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		SyncBatches:    d.syncBatches.Load(),
		AsyncBatches:   d.asyncBatches.Load(),
		ReadingsStored: d.readingsStored.Load(),
		ReadingsQueued: d.readingsQueued.Load(),
		Rejected:       d.rejected.Load(),
	}
}
