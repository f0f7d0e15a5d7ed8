package tasks

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	croftesting "github.com/xtxerr/croft/internal/testing"
)

func setupTestPool(t *testing.T) (*Pool, *Broker) {
	t.Helper()
	broker, _ := setupTestBroker(t)

	cfg := DefaultPoolConfig()
	cfg.Workers = 2
	cfg.ReserveTimeout = time.Second
	cfg.DrainTimeout = 2 * time.Second
	pool := NewPool(broker, cfg)
	t.Cleanup(pool.Stop)

	return pool, broker
}

func waitForState(t *testing.T, broker *Broker, id string, want State) *Status {
	t.Helper()
	var st *Status
	err := croftesting.Eventually(5*time.Second, 20*time.Millisecond, func() bool {
		var err error
		st, err = broker.Status(context.Background(), id)
		return err == nil && st.State == want
	})
	if err != nil {
		t.Fatalf("task %s never reached %s (last: %+v)", id, want, st)
	}
	return st
}

func TestPoolExecutesTask(t *testing.T) {
	pool, broker := setupTestPool(t)

	pool.Register(KindCleanupOldData, func(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
		return "Cleaned up 0 old sensor readings", nil
	})
	pool.Start()

	id, err := broker.Enqueue(context.Background(), KindCleanupOldData, nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	st := waitForState(t, broker, id, StateSuccess)
	if got := st.Describe(); got != "Cleaned up 0 old sensor readings" {
		t.Errorf("unexpected message: %q", got)
	}

	stats := pool.Stats()
	if stats.Processed != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPoolReportsProgress(t *testing.T) {
	pool, broker := setupTestPool(t)

	release := make(chan struct{})
	pool.Register(KindProcessBatch, func(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
		progress(10, 150)
		<-release
		return "Successfully processed 150 sensor readings", nil
	})
	pool.Start()

	id, err := broker.Enqueue(context.Background(), KindProcessBatch, nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	st := waitForState(t, broker, id, StateProgress)
	if got := st.Describe(); got != "Task is in progress: 10/150" {
		t.Errorf("unexpected progress description: %q", got)
	}

	close(release)
	waitForState(t, broker, id, StateSuccess)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool, broker := setupTestPool(t)

	pool.Register(KindProcessBatch, func(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
		panic("corrupt batch")
	})
	pool.Register(KindCleanupOldData, func(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
		return "ok", nil
	})
	pool.Start()

	ctx := context.Background()
	panicID, err := broker.Enqueue(ctx, KindProcessBatch, nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	st := waitForState(t, broker, panicID, StateFailure)
	if !strings.Contains(st.Message, "panic: corrupt batch") {
		t.Errorf("expected panic message, got %q", st.Message)
	}

	// Pool keeps working after a panic.
	okID, err := broker.Enqueue(ctx, KindCleanupOldData, nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	waitForState(t, broker, okID, StateSuccess)

	stats := pool.Stats()
	if stats.Failed != 1 || stats.Processed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPoolHandlerError(t *testing.T) {
	pool, broker := setupTestPool(t)

	pool.Register(KindCalculateDailyStats, func(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
		return "", fmt.Errorf("rollup day: database locked")
	})
	pool.Start()

	id, err := broker.Enqueue(context.Background(), KindCalculateDailyStats, nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	st := waitForState(t, broker, id, StateFailure)
	if st.Message != "rollup day: database locked" {
		t.Errorf("unexpected failure message: %q", st.Message)
	}
}

func TestPoolUnknownKind(t *testing.T) {
	pool, broker := setupTestPool(t)
	pool.Start()

	id, err := broker.Enqueue(context.Background(), Kind("no_such_task"), nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	st := waitForState(t, broker, id, StateFailure)
	if !strings.Contains(st.Message, "no handler registered") {
		t.Errorf("unexpected failure message: %q", st.Message)
	}
}

func TestPoolStopIdle(t *testing.T) {
	pool, _ := setupTestPool(t)
	pool.Start()

	err := croftesting.WithTimeout(3*time.Second, func() error {
		pool.Stop()
		return nil
	})
	if err != nil {
		t.Fatalf("idle pool did not stop promptly: %v", err)
	}
}
