package tasks

import (
	"testing"
	"time"

	croftesting "github.com/xtxerr/croft/internal/testing"
)

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "before the hour, same day",
			now:  time.Date(2026, 8, 21, 3, 30, 0, 0, time.UTC),
			hour: 5,
			want: time.Date(2026, 8, 21, 5, 0, 0, 0, time.UTC),
		},
		{
			name: "after the hour, next day",
			now:  time.Date(2026, 8, 21, 7, 0, 1, 0, time.UTC),
			hour: 5,
			want: time.Date(2026, 8, 22, 5, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at the hour, next day",
			now:  time.Date(2026, 8, 21, 5, 0, 0, 0, time.UTC),
			hour: 5,
			want: time.Date(2026, 8, 22, 5, 0, 0, 0, time.UTC),
		},
		{
			name: "midnight job just after midnight",
			now:  time.Date(2026, 8, 21, 0, 0, 1, 0, time.UTC),
			hour: 0,
			want: time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			now:  time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC),
			hour: 5,
			want: time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRun(tt.now, tt.hour)
			if !got.Equal(tt.want) {
				t.Errorf("nextRun(%v, %d) = %v, want %v", tt.now, tt.hour, got, tt.want)
			}
		})
	}
}

func TestSchedulerStop(t *testing.T) {
	broker, _ := setupTestBroker(t)

	sched := NewScheduler(broker)
	sched.AddDaily(KindCalculateDailyStats, 0, nil)
	sched.AddDaily(KindCleanupOldData, 5, nil)
	sched.Start()

	// Jobs are asleep until their hour; Stop must not wait for them.
	err := croftesting.WithTimeout(2*time.Second, func() error {
		sched.Stop()
		return nil
	})
	if err != nil {
		t.Fatalf("scheduler did not stop promptly: %v", err)
	}
}
