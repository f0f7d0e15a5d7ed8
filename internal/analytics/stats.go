// Package analytics computes reading statistics on demand.
//
// The engine aggregates in memory over the full matching set for per-entity
// queries and leans on SQL aggregates for the dashboard overview. Percentiles
// come from DDSketch and are reported only when enabled.
package analytics

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/croft/internal/model"
)

// valueStats maintains running statistics over a stream of reading values.
// It is built, filled and read within a single request, so it carries no lock.
type valueStats struct {
	count  int64
	sum    float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

// newValueStats returns an empty accumulator. accuracy > 0 enables DDSketch
// percentiles with that relative accuracy; 0 disables them.
func newValueStats(accuracy float64) *valueStats {
	s := &valueStats{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	if accuracy > 0 {
		sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
		if err == nil {
			s.sketch = sketch
		}
	}
	return s
}

// Add folds one value into the running statistics.
func (s *valueStats) Add(value float64) {
	s.count++
	s.sum += value

	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}

	if s.sketch != nil {
		s.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (s *valueStats) Count() int64 {
	return s.count
}

// Avg returns the mean, or 0 when empty.
func (s *valueStats) Avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Min returns the smallest value, or 0 when empty.
func (s *valueStats) Min() float64 {
	if s.count == 0 {
		return 0
	}
	return s.min
}

// Max returns the largest value, or 0 when empty.
func (s *valueStats) Max() float64 {
	if s.count == 0 {
		return 0
	}
	return s.max
}

// Percentiles returns sketch-derived percentiles, or nil when the sketch is
// disabled or no values were added.
func (s *valueStats) Percentiles() *model.Percentiles {
	if s.sketch == nil || s.count == 0 {
		return nil
	}
	p50, _ := s.sketch.GetValueAtQuantile(0.50)
	p90, _ := s.sketch.GetValueAtQuantile(0.90)
	p95, _ := s.sketch.GetValueAtQuantile(0.95)
	p99, _ := s.sketch.GetValueAtQuantile(0.99)
	return &model.Percentiles{P50: p50, P90: p90, P95: p95, P99: p99}
}
