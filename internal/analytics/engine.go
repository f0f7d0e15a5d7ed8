package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/errors"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/model"
	"github.com/xtxerr/croft/internal/store"
)

// Config controls optional engine features.
type Config struct {
	// Percentiles enables DDSketch p50/p90/p95/p99 on per-entity analytics.
	Percentiles bool

	// SketchAccuracy is the DDSketch relative accuracy (0 < a < 1).
	SketchAccuracy float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Percentiles:    false,
		SketchAccuracy: config.DefaultSketchAccuracy,
	}
}

// Engine answers analytics queries against the reading store.
type Engine struct {
	store  *store.Store
	config Config
	logger *slog.Logger

	// Collapses concurrent overview computations into one.
	group singleflight.Group
}

// NewEngine creates an analytics engine over the given store.
func NewEngine(st *store.Store, cfg Config) *Engine {
	if cfg.SketchAccuracy <= 0 || cfg.SketchAccuracy >= 1 {
		cfg.SketchAccuracy = config.DefaultSketchAccuracy
	}
	return &Engine{
		store:  st,
		config: cfg,
		logger: logging.Component("analytics"),
	}
}

// sketchAccuracy returns the accuracy to hand to newValueStats, 0 when
// percentiles are disabled.
func (e *Engine) sketchAccuracy() float64 {
	if !e.config.Percentiles {
		return 0
	}
	return e.config.SketchAccuracy
}

// =============================================================================
// Overview
// =============================================================================

// Overview returns the dashboard snapshot: total count, known fields and
// sensor types, per-group averages and the most recent readings. Concurrent
// callers share one computation.
func (e *Engine) Overview(ctx context.Context) (*model.Overview, error) {
	v, err, _ := e.group.Do("overview", func() (interface{}, error) {
		return e.computeOverview(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Overview), nil
}

func (e *Engine) computeOverview(ctx context.Context) (*model.Overview, error) {
	total, err := e.store.CountReadings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count readings")
	}

	fields, err := e.store.DistinctFieldIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list fields")
	}
	types, err := e.store.DistinctSensorTypes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list sensor types")
	}

	byField, err := e.store.AverageByField(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "averages by field")
	}
	byType, err := e.store.AverageBySensorType(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "averages by sensor type")
	}

	recent, err := e.store.RecentReadings(ctx, config.RecentReadingsCount)
	if err != nil {
		return nil, errors.Wrap(err, "recent readings")
	}
	if recent == nil {
		recent = []model.SensorReading{}
	}

	return &model.Overview{
		TotalReadings:       total,
		Fields:              fields,
		SensorTypes:         types,
		AverageByField:      byField,
		AverageBySensorType: byType,
		RecentReadings:      recent,
	}, nil
}

// =============================================================================
// Per-entity analytics
// =============================================================================

// Field summarizes every reading of one field. Returns ErrFieldNotFound when
// the field has no readings at all.
func (e *Engine) Field(ctx context.Context, fieldID string) (*model.FieldAnalytics, error) {
	readings, err := e.store.AllReadings(ctx, model.ReadingFilter{FieldID: fieldID})
	if err != nil {
		return nil, errors.Wrap(err, "load field readings")
	}
	if len(readings) == 0 {
		return nil, errors.Wrapf(errors.ErrFieldNotFound, "field %s", fieldID)
	}

	stats := newValueStats(e.sketchAccuracy())
	types := make(map[string]struct{})
	for _, r := range readings {
		stats.Add(r.ReadingValue)
		types[r.SensorType] = struct{}{}
	}

	return &model.FieldAnalytics{
		FieldID:       fieldID,
		TotalReadings: stats.Count(),
		AvgValue:      stats.Avg(),
		MinValue:      stats.Min(),
		MaxValue:      stats.Max(),
		SensorTypes:   sortedKeys(types),
		Percentiles:   stats.Percentiles(),
	}, nil
}

// SensorType summarizes every reading of one sensor type. Returns
// ErrSensorTypeNotFound when the type has no readings at all.
func (e *Engine) SensorType(ctx context.Context, sensorType string) (*model.SensorTypeAnalytics, error) {
	readings, err := e.store.AllReadings(ctx, model.ReadingFilter{SensorType: sensorType})
	if err != nil {
		return nil, errors.Wrap(err, "load sensor type readings")
	}
	if len(readings) == 0 {
		return nil, errors.Wrapf(errors.ErrSensorTypeNotFound, "sensor type %s", sensorType)
	}

	stats := newValueStats(e.sketchAccuracy())
	fields := make(map[string]struct{})
	for _, r := range readings {
		stats.Add(r.ReadingValue)
		fields[r.FieldID] = struct{}{}
	}

	return &model.SensorTypeAnalytics{
		SensorType:    sensorType,
		TotalReadings: stats.Count(),
		AvgValue:      stats.Avg(),
		MinValue:      stats.Min(),
		MaxValue:      stats.Max(),
		Fields:        sortedKeys(fields),
		Percentiles:   stats.Percentiles(),
	}, nil
}

// =============================================================================
// Rollup
// =============================================================================

// RollupDaily replaces the daily_stats rows for the UTC calendar day
// containing day and returns the fresh rows. Safe to re-run.
func (e *Engine) RollupDaily(ctx context.Context, day time.Time) ([]model.DailyStat, error) {
	stats, err := e.store.RollupDay(ctx, day)
	if err != nil {
		return nil, errors.Wrap(err, "rollup day")
	}

	e.logger.Info("daily rollup complete",
		"day", day.UTC().Truncate(24*time.Hour).Format("2006-01-02"),
		"stat_rows", len(stats))
	return stats, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
