package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/logging"
)

// =============================================================================
// Types
// =============================================================================

// ProgressFunc publishes {current, total} for the running task.
type ProgressFunc func(current, total int64)

// Handler executes one kind of task and returns the success message shown to
// clients polling the task status.
type Handler func(ctx context.Context, task *Task, progress ProgressFunc) (string, error)

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	// Workers is the number of concurrent task workers.
	Workers int

	// ReserveTimeout is how long a worker blocks on the queue before
	// re-checking for shutdown.
	ReserveTimeout time.Duration

	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration

	// DrainTimeout is how long Stop waits for in-flight tasks.
	DrainTimeout time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:        config.DefaultWorkerCount,
		ReserveTimeout: config.DefaultReserveTimeout,
		TaskTimeout:    config.DefaultTaskTimeout,
		DrainTimeout:   time.Duration(config.DefaultDrainTimeoutSec) * time.Second,
	}
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Workers   int
	Active    int
	Processed int64
	Failed    int64
}

// =============================================================================
// Pool
// =============================================================================

// Pool runs queued tasks on a fixed set of workers. Handlers are registered
// per task kind before Start. Panics in handlers are recovered and recorded
// as task failures.
type Pool struct {
	broker   *Broker
	handlers map[Kind]Handler
	config   PoolConfig
	logger   *slog.Logger

	// reserveCtx aborts blocked queue reads on shutdown. In-flight task
	// execution is not cancelled; the drain timeout bounds the wait for it.
	reserveCtx    context.Context
	cancelReserve context.CancelFunc
	shutdown      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	activeTasks    atomic.Int32
	tasksProcessed atomic.Int64
	tasksFailed    atomic.Int64
}

// NewPool creates a worker pool reading from the given broker.
func NewPool(broker *Broker, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultWorkerCount
	}
	if cfg.ReserveTimeout <= 0 {
		cfg.ReserveTimeout = config.DefaultReserveTimeout
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = config.DefaultTaskTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = time.Duration(config.DefaultDrainTimeoutSec) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		broker:        broker,
		handlers:      make(map[Kind]Handler),
		config:        cfg,
		logger:        logging.Component("workers"),
		reserveCtx:    ctx,
		cancelReserve: cancel,
		shutdown:      make(chan struct{}),
	}
}

// Register installs the handler for a task kind. Must be called before Start.
func (p *Pool) Register(kind Kind, handler Handler) {
	p.handlers[kind] = handler
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "workers", p.config.Workers)
}

// Stop stops the pool gracefully, waiting for in-flight tasks.
func (p *Pool) Stop() {
	p.StopWithContext(context.Background())
}

// StopWithContext stops the pool with a custom context. The drain timeout
// from config is still respected as a maximum. Safe to call more than once;
// only the first call drains.
func (p *Pool) StopWithContext(ctx context.Context) {
	first := false
	p.stopOnce.Do(func() {
		first = true
		p.logger.Info("worker pool stopping")
		close(p.shutdown)
		p.cancelReserve()
	})
	if !first {
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, p.config.DrainTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-drainCtx.Done():
		active := p.activeTasks.Load()
		if active > 0 {
			p.logger.Warn("worker pool drain timeout", "active_tasks", active)
		} else {
			p.logger.Info("worker pool stopped after drain timeout")
		}
	}
}

// =============================================================================
// Worker
// =============================================================================

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdown:
			return
		default:
		}

		task, err := p.broker.Reserve(p.reserveCtx, p.config.ReserveTimeout)
		if err != nil {
			if p.reserveCtx.Err() != nil {
				return
			}
			p.logger.Warn("reserve failed", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue // queue empty, re-check shutdown
		}

		p.execute(task)
	}
}

// execute runs one task with panic recovery. A panic or handler error marks
// the task FAILURE; otherwise the handler's message is recorded as SUCCESS.
func (p *Pool) execute(task *Task) {
	p.activeTasks.Add(1)
	defer p.activeTasks.Add(-1)

	log := p.logger.With("task_id", task.ID, "kind", task.Kind)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in task execution", "panic", r)
			p.failTask(task.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	handler, ok := p.handlers[task.Kind]
	if !ok {
		log.Error("no handler for task kind")
		p.failTask(task.ID, fmt.Sprintf("no handler registered for task kind %q", task.Kind))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.TaskTimeout)
	defer cancel()

	progress := func(current, total int64) {
		if err := p.broker.SetProgress(ctx, task.ID, current, total); err != nil {
			log.Warn("progress update failed", "error", err)
		}
	}

	start := time.Now()
	message, err := handler(logging.ContextWithTaskID(ctx, task.ID), task, progress)
	if err != nil {
		log.Error("task failed", "error", err, "elapsed", time.Since(start))
		p.failTask(task.ID, err.Error())
		return
	}

	if err := p.broker.SetSuccess(ctx, task.ID, message); err != nil {
		log.Warn("success update failed", "error", err)
	}
	p.tasksProcessed.Add(1)
	log.Info("task complete", "elapsed", time.Since(start))
}

// failTask records a failure with a fresh context; the task context may
// already be expired, which must not keep the failure from being recorded.
func (p *Pool) failTask(id, message string) {
	p.tasksFailed.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.broker.SetFailure(ctx, id, message); err != nil {
		p.logger.Warn("failure update failed", "task_id", id, "error", err)
	}
}

// =============================================================================
// Stats
// =============================================================================

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.config.Workers,
		Active:    int(p.activeTasks.Load()),
		Processed: p.tasksProcessed.Load(),
		Failed:    p.tasksFailed.Load(),
	}
}
