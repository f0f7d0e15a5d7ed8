// Package model defines the domain types shared by the store, the
// aggregation engine, the dispatcher, and the HTTP boundary.
package model

import (
	"time"

	"github.com/xtxerr/croft/internal/errors"
	"github.com/xtxerr/croft/internal/validation"
)

// SensorReading is a persisted reading row. Immutable once created; rows are
// only ever removed by the retention sweep or an administrative clear.
type SensorReading struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	FieldID      string    `json:"field_id"`
	SensorType   string    `json:"sensor_type"`
	ReadingValue float64   `json:"reading_value"`
	Unit         string    `json:"unit"`
}

// ReadingInput is a not-yet-persisted reading as submitted by a device.
// A zero Timestamp means "assign now at insert time".
type ReadingInput struct {
	Timestamp    time.Time `json:"timestamp"`
	FieldID      string    `json:"field_id"`
	SensorType   string    `json:"sensor_type"`
	ReadingValue float64   `json:"reading_value"`
	Unit         string    `json:"unit"`
}

// Validate checks the input against the tag and value rules. All violations
// are collected so a device sees every problem in one response.
func (r *ReadingInput) Validate() error {
	errs := errors.NewValidationErrors()

	if err := validation.ValidateTag(r.FieldID, validation.FieldIDRules()); err != nil {
		errs.AddField("field_id", err.Error())
	}
	if err := validation.ValidateTag(r.SensorType, validation.SensorTypeRules()); err != nil {
		errs.AddField("sensor_type", err.Error())
	}
	if err := validation.ValidateTag(r.Unit, validation.UnitRules()); err != nil {
		errs.AddField("unit", err.Error())
	}
	if err := validation.ValidateFinite(r.ReadingValue); err != nil {
		errs.AddField("reading_value", err.Error())
	}

	return errs.Err()
}

// ValidateBatch validates every input in a batch. The batch index is included
// so the caller can point at the offending element.
func ValidateBatch(inputs []ReadingInput) error {
	if len(inputs) == 0 {
		return errors.ErrEmptyBatch
	}

	errs := errors.NewValidationErrors()
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			errs.Add(errors.Wrapf(err, "reading[%d]", i))
		}
	}
	return errs.Err()
}

// ReadingFilter narrows reading queries. Empty fields match everything.
type ReadingFilter struct {
	FieldID    string
	SensorType string
}

// DailyStat is one rolled-up row per (date, field_id, sensor_type).
type DailyStat struct {
	ID            int64     `json:"id"`
	Date          time.Time `json:"date"`
	FieldID       string    `json:"field_id"`
	SensorType    string    `json:"sensor_type"`
	AvgValue      float64   `json:"avg_value"`
	MinValue      float64   `json:"min_value"`
	MaxValue      float64   `json:"max_value"`
	CountReadings int64     `json:"count_readings"`
}
