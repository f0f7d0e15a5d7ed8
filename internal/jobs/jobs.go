// Package jobs binds background task kinds to their implementations: batch
// ingestion, the daily statistics rollup and the retention cleanup.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/analytics"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/model"
	"github.com/xtxerr/croft/internal/retention"
	"github.com/xtxerr/croft/internal/store"
	"github.com/xtxerr/croft/internal/tasks"
)

// Deps holds the components the job handlers operate on.
type Deps struct {
	Store   *store.Store
	Engine  *analytics.Engine
	Sweeper *retention.Sweeper
	Broker  *tasks.Broker
}

// RollupPayload optionally names the day to roll up. When empty the handler
// rolls up yesterday (UTC).
type RollupPayload struct {
	Day string `json:"day,omitempty"`
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// Register wires all job handlers into the pool.
func Register(pool *tasks.Pool, deps Deps) {
	h := &handlers{
		deps:   deps,
		logger: logging.Component("jobs"),
	}

	pool.Register(tasks.KindProcessBatch, h.processBatch)
	pool.Register(tasks.KindCalculateDailyStats, h.calculateDailyStats)
	pool.Register(tasks.KindCleanupOldData, h.cleanupOldData)
}

// processBatch inserts a queued reading batch in a single transaction,
// publishing progress as it goes. On success it chains a daily stats
// recalculation.
func (h *handlers) processBatch(ctx context.Context, task *tasks.Task, progress tasks.ProgressFunc) (string, error) {
	var inputs []model.ReadingInput
	if err := task.UnmarshalPayload(&inputs); err != nil {
		return "", fmt.Errorf("decode batch payload: %w", err)
	}

	total := int64(len(inputs))
	progress(0, total)

	readings, err := h.deps.Store.InsertReadingsProgress(ctx, inputs, func(i int) error {
		if i%config.ProgressUpdateEvery == 0 {
			progress(int64(i), total)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	// Freshly ingested data invalidates the daily aggregates, so queue a
	// recalculation. Failing to queue it does not fail the batch; the nightly
	// rollup covers the gap.
	enqueueCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.deps.Broker.Enqueue(enqueueCtx, tasks.KindCalculateDailyStats, nil); err != nil {
		h.logger.Warn("failed to chain daily stats rollup", "error", err, "task_id", task.ID)
	}

	logging.WithContext(ctx).Info("batch processed", "readings", len(readings))
	return fmt.Sprintf("Successfully processed %d sensor readings", len(readings)), nil
}

// calculateDailyStats rebuilds the daily aggregate rows for one calendar day,
// yesterday by default.
func (h *handlers) calculateDailyStats(ctx context.Context, task *tasks.Task, progress tasks.ProgressFunc) (string, error) {
	var payload RollupPayload
	if err := task.UnmarshalPayload(&payload); err != nil {
		return "", fmt.Errorf("decode rollup payload: %w", err)
	}

	day, err := rollupDay(payload)
	if err != nil {
		return "", err
	}

	stats, err := h.deps.Engine.RollupDaily(ctx, day)
	if err != nil {
		return "", err
	}
	logging.WithContext(ctx).Info("daily stats rolled up", "day", day.Format("2006-01-02"), "rows", len(stats))

	return fmt.Sprintf("Daily stats calculated for %s", day.Format("2006-01-02")), nil
}

// cleanupOldData deletes readings past the retention age.
func (h *handlers) cleanupOldData(ctx context.Context, task *tasks.Task, progress tasks.ProgressFunc) (string, error) {
	result, err := h.deps.Sweeper.Sweep(ctx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Cleaned up %d old sensor readings", result.ReadingsDeleted), nil
}

// rollupDay resolves the payload to a UTC day, defaulting to yesterday.
func rollupDay(payload RollupPayload) (time.Time, error) {
	if payload.Day == "" {
		return time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour), nil
	}

	day, err := time.ParseInLocation("2006-01-02", payload.Day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse rollup day %q: %w", payload.Day, err)
	}
	return day, nil
}
