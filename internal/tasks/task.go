// Package tasks provides the background task queue: a Redis-backed broker,
// a worker pool that executes queued tasks, and a scheduler that enqueues
// the daily maintenance tasks.
//
// A task's externally visible lifecycle is PENDING -> PROGRESS -> SUCCESS or
// FAILURE. State lives in a Redis hash per task with a TTL, so finished task
// results expire on their own. Unknown task ids read as PENDING.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Task Kinds
// =============================================================================

// Kind identifies what a queued task does.
type Kind string

const (
	// KindProcessBatch inserts a large reading batch in the background.
	KindProcessBatch Kind = "process_sensor_data_batch"

	// KindCalculateDailyStats rolls the previous day up into daily_stats.
	KindCalculateDailyStats Kind = "calculate_daily_stats"

	// KindCleanupOldData deletes readings older than the retention window.
	KindCleanupOldData Kind = "cleanup_old_data"
)

// =============================================================================
// Task States
// =============================================================================

// State is the lifecycle state of a task.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// =============================================================================
// Types
// =============================================================================

// Task is one queued unit of work.
type Task struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// UnmarshalPayload decodes the task payload into v.
func (t *Task) UnmarshalPayload(v interface{}) error {
	if len(t.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload, v)
}

// Status is the externally visible state of a task.
type Status struct {
	TaskID  string `json:"task_id"`
	State   State  `json:"status"`
	Current int64  `json:"current,omitempty"`
	Total   int64  `json:"total,omitempty"`
	Message string `json:"message"`
}

// Describe renders the human-readable status line reported by the API.
func (s *Status) Describe() string {
	switch s.State {
	case StateProgress:
		return fmt.Sprintf("Task is in progress: %d/%d", s.Current, s.Total)
	case StateSuccess:
		if s.Message == "" {
			return "Task completed successfully"
		}
		return s.Message
	case StateFailure:
		return s.Message
	default:
		return "Task is pending"
	}
}
