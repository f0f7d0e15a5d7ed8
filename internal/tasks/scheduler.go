package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/croft/internal/logging"
)

// Scheduler enqueues recurring tasks at fixed UTC hours. It is the in-process
// replacement for an external cron: each registered job gets one goroutine
// that sleeps until the next occurrence of its hour and then enqueues.
type Scheduler struct {
	broker *Broker
	jobs   []dailyJob
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

type dailyJob struct {
	kind    Kind
	hour    int
	payload interface{}
}

// NewScheduler creates a scheduler enqueuing onto the given broker.
func NewScheduler(broker *Broker) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		broker: broker,
		logger: logging.Component("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddDaily registers a task kind to be enqueued every day at the given UTC
// hour. Must be called before Start.
func (s *Scheduler) AddDaily(kind Kind, hour int, payload interface{}) {
	s.jobs = append(s.jobs, dailyJob{kind: kind, hour: hour, payload: payload})
}

// Start launches one goroutine per registered job.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runDaily(job)
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop stops the scheduler. Sleeping jobs are abandoned immediately.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runDaily(job dailyJob) {
	defer s.wg.Done()

	for {
		next := nextRun(time.Now(), job.hour)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(time.Until(next)):
			s.enqueue(job)
		}
	}
}

func (s *Scheduler) enqueue(job dailyJob) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	id, err := s.broker.Enqueue(ctx, job.kind, job.payload)
	if err != nil {
		// The next occurrence retries in 24h; the broker being down for a
		// whole day is an operational problem, not a scheduling one.
		s.logger.Error("scheduled enqueue failed", "kind", job.kind, "error", err)
		return
	}
	s.logger.Info("scheduled task enqueued", "kind", job.kind, "task_id", id)
}

// nextRun returns the next occurrence of the given UTC hour strictly after
// now.
func nextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
