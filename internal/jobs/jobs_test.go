package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/xtxerr/croft/internal/analytics"
	"github.com/xtxerr/croft/internal/ingest"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/model"
	"github.com/xtxerr/croft/internal/retention"
	"github.com/xtxerr/croft/internal/store"
	"github.com/xtxerr/croft/internal/tasks"
	croftesting "github.com/xtxerr/croft/internal/testing"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestHandlers(t *testing.T) (*handlers, *store.Store, *tasks.Broker) {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.Path = "" // in-memory
	st, err := store.New(cfg)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mr := miniredis.RunT(t)
	bcfg := tasks.DefaultBrokerConfig()
	bcfg.Addr = mr.Addr()
	broker := tasks.NewBroker(bcfg)
	t.Cleanup(func() { broker.Close() })

	h := &handlers{
		deps: Deps{
			Store:   st,
			Engine:  analytics.NewEngine(st, analytics.DefaultConfig()),
			Sweeper: retention.New(st, retention.Config{MaxAge: 90 * 24 * time.Hour}),
			Broker:  broker,
		},
		logger: logging.Component("jobs-test"),
	}
	return h, st, broker
}

func generateBatch(count int, day time.Time) []model.ReadingInput {
	inputs := make([]model.ReadingInput, count)
	for i := 0; i < count; i++ {
		inputs[i] = model.ReadingInput{
			Timestamp:    day.Add(time.Duration(i) * time.Second),
			FieldID:      fmt.Sprintf("field-%d", i%3),
			SensorType:   "temperature",
			ReadingValue: float64(i),
			Unit:         "celsius",
		}
	}
	return inputs
}

func batchTask(t *testing.T, inputs []model.ReadingInput) *tasks.Task {
	t.Helper()

	payload, err := json.Marshal(inputs)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return &tasks.Task{
		ID:      "task-test",
		Kind:    tasks.KindProcessBatch,
		Payload: payload,
	}
}

type progressCall struct {
	current, total int64
}

// =============================================================================
// Batch Processing
// =============================================================================

func TestProcessBatch(t *testing.T) {
	h, st, broker := setupTestHandlers(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	task := batchTask(t, generateBatch(150, day))

	var calls []progressCall
	progress := func(current, total int64) {
		calls = append(calls, progressCall{current, total})
	}

	msg, err := h.processBatch(ctx, task, progress)
	if err != nil {
		t.Fatalf("processBatch() error = %v", err)
	}
	if msg != "Successfully processed 150 sensor readings" {
		t.Errorf("message = %q, want %q", msg, "Successfully processed 150 sensor readings")
	}

	count, err := st.CountReadings(ctx)
	if err != nil {
		t.Fatalf("CountReadings() error = %v", err)
	}
	if count != 150 {
		t.Errorf("stored readings = %d, want 150", count)
	}

	// Initial update plus one per ten rows: 0, then 0,10,...,140.
	if len(calls) != 16 {
		t.Fatalf("progress updates = %d, want 16", len(calls))
	}
	if calls[0] != (progressCall{0, 150}) {
		t.Errorf("first update = %+v, want {0 150}", calls[0])
	}
	if calls[len(calls)-1] != (progressCall{140, 150}) {
		t.Errorf("last update = %+v, want {140 150}", calls[len(calls)-1])
	}

	// Success chains a daily stats rollup.
	depth, err := broker.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth() error = %v", err)
	}
	if depth != 1 {
		t.Fatalf("queue depth = %d, want 1 chained task", depth)
	}
	chained, err := broker.Reserve(ctx, time.Second)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if chained.Kind != tasks.KindCalculateDailyStats {
		t.Errorf("chained task kind = %q, want %q", chained.Kind, tasks.KindCalculateDailyStats)
	}
}

func TestProcessBatch_BadPayload(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	task := &tasks.Task{
		ID:      "task-bad",
		Kind:    tasks.KindProcessBatch,
		Payload: json.RawMessage(`{"not":"an array"}`),
	}

	_, err := h.processBatch(context.Background(), task, func(int64, int64) {})
	if err == nil {
		t.Fatal("processBatch() with malformed payload succeeded, want error")
	}
}

// =============================================================================
// Daily Stats
// =============================================================================

func TestCalculateDailyStats_ExplicitDay(t *testing.T) {
	h, st, _ := setupTestHandlers(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	if _, err := st.InsertReadings(ctx, generateBatch(6, day.Add(8*time.Hour))); err != nil {
		t.Fatalf("InsertReadings() error = %v", err)
	}

	task := &tasks.Task{
		ID:      "task-rollup",
		Kind:    tasks.KindCalculateDailyStats,
		Payload: json.RawMessage(`{"day":"2026-08-10"}`),
	}

	msg, err := h.calculateDailyStats(ctx, task, func(int64, int64) {})
	if err != nil {
		t.Fatalf("calculateDailyStats() error = %v", err)
	}
	if msg != "Daily stats calculated for 2026-08-10" {
		t.Errorf("message = %q, want %q", msg, "Daily stats calculated for 2026-08-10")
	}

	stats, err := st.DailyStatsForDay(ctx, day)
	if err != nil {
		t.Fatalf("DailyStatsForDay() error = %v", err)
	}
	if len(stats) == 0 {
		t.Error("no daily stats rows after rollup")
	}
}

func TestCalculateDailyStats_DefaultsToYesterday(t *testing.T) {
	h, st, _ := setupTestHandlers(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if _, err := st.InsertReadings(ctx, generateBatch(4, yesterday.Add(12*time.Hour))); err != nil {
		t.Fatalf("InsertReadings() error = %v", err)
	}

	task := &tasks.Task{ID: "task-rollup", Kind: tasks.KindCalculateDailyStats}

	msg, err := h.calculateDailyStats(ctx, task, func(int64, int64) {})
	if err != nil {
		t.Fatalf("calculateDailyStats() error = %v", err)
	}
	want := "Daily stats calculated for " + yesterday.Format("2006-01-02")
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}

	stats, err := st.DailyStatsForDay(ctx, yesterday)
	if err != nil {
		t.Fatalf("DailyStatsForDay() error = %v", err)
	}
	if len(stats) == 0 {
		t.Error("no daily stats rows for yesterday after rollup")
	}
}

func TestCalculateDailyStats_BadDay(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	task := &tasks.Task{
		ID:      "task-rollup",
		Kind:    tasks.KindCalculateDailyStats,
		Payload: json.RawMessage(`{"day":"not-a-date"}`),
	}

	_, err := h.calculateDailyStats(context.Background(), task, func(int64, int64) {})
	if err == nil {
		t.Fatal("calculateDailyStats() with bad day succeeded, want error")
	}
}

// =============================================================================
// Cleanup
// =============================================================================

func TestCleanupOldData(t *testing.T) {
	h, st, _ := setupTestHandlers(t)
	ctx := context.Background()

	now := time.Now().UTC()
	inputs := []model.ReadingInput{
		{Timestamp: now.Add(-120 * 24 * time.Hour), FieldID: "f1", SensorType: "temperature", ReadingValue: 1, Unit: "celsius"},
		{Timestamp: now.Add(-91 * 24 * time.Hour), FieldID: "f1", SensorType: "temperature", ReadingValue: 2, Unit: "celsius"},
		{Timestamp: now.Add(-time.Hour), FieldID: "f1", SensorType: "temperature", ReadingValue: 3, Unit: "celsius"},
	}
	if _, err := st.InsertReadings(ctx, inputs); err != nil {
		t.Fatalf("InsertReadings() error = %v", err)
	}

	task := &tasks.Task{ID: "task-cleanup", Kind: tasks.KindCleanupOldData}

	msg, err := h.cleanupOldData(ctx, task, func(int64, int64) {})
	if err != nil {
		t.Fatalf("cleanupOldData() error = %v", err)
	}
	if msg != "Cleaned up 2 old sensor readings" {
		t.Errorf("message = %q, want %q", msg, "Cleaned up 2 old sensor readings")
	}

	count, err := st.CountReadings(ctx)
	if err != nil {
		t.Fatalf("CountReadings() error = %v", err)
	}
	if count != 1 {
		t.Errorf("remaining readings = %d, want 1", count)
	}
}

// =============================================================================
// End to End
// =============================================================================

// A 150-reading submission takes the async route: task id now, rows visible
// once the worker finishes.
func TestJobsThroughPool(t *testing.T) {
	h, st, broker := setupTestHandlers(t)
	ctx := context.Background()

	pool := tasks.NewPool(broker, tasks.PoolConfig{
		Workers:        2,
		ReserveTimeout: time.Second,
		DrainTimeout:   2 * time.Second,
	})
	Register(pool, h.deps)
	pool.Start()
	t.Cleanup(pool.Stop)

	dispatcher := ingest.New(st, broker, ingest.DefaultConfig())

	day := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	result, err := dispatcher.Ingest(ctx, generateBatch(150, day))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !result.Async || result.TaskID == "" {
		t.Fatalf("Ingest() = %+v, want async result with task id", result)
	}

	var status *tasks.Status
	waitErr := croftesting.Eventually(5*time.Second, 20*time.Millisecond, func() bool {
		status, err = broker.Status(ctx, result.TaskID)
		return err == nil && status.State == tasks.StateSuccess
	})
	if waitErr != nil {
		t.Fatalf("batch task never reached SUCCESS, last status = %+v", status)
	}
	if !strings.Contains(status.Message, "Successfully processed 150 sensor readings") {
		t.Errorf("message = %q, want success message", status.Message)
	}

	count, err := st.CountReadings(ctx)
	if err != nil {
		t.Fatalf("CountReadings() error = %v", err)
	}
	if count != 150 {
		t.Errorf("stored readings = %d, want 150", count)
	}

	// The chained rollup drains too.
	waitErr = croftesting.Eventually(5*time.Second, 20*time.Millisecond, func() bool {
		depth, derr := broker.QueueDepth(ctx)
		return derr == nil && depth == 0 && pool.Stats().Processed >= 2
	})
	if waitErr != nil {
		t.Errorf("chained rollup never drained, stats = %+v", pool.Stats())
	}
}
