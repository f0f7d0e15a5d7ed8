package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xtxerr/croft/internal/model"
)

// =============================================================================
// Inserts
// =============================================================================

// InsertReadings persists a batch of readings in one transaction and returns
// the stored rows with their assigned ids, in input order. Inputs without a
// timestamp get "now". The whole batch commits or none of it does.
func (s *Store) InsertReadings(ctx context.Context, inputs []model.ReadingInput) ([]model.SensorReading, error) {
	return s.InsertReadingsProgress(ctx, inputs, nil)
}

// InsertReadingsProgress is InsertReadings with an optional per-row callback,
// used by the background batch worker to publish progress. The callback runs
// inside the transaction; an error from it aborts and rolls back the batch.
func (s *Store) InsertReadingsProgress(ctx context.Context, inputs []model.ReadingInput, onRow func(i int) error) ([]model.SensorReading, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	readings := make([]model.SensorReading, 0, len(inputs))
	now := time.Now().UTC()

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sensor_readings (timestamp, field_id, sensor_type, reading_value, unit)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, in := range inputs {
			ts := in.Timestamp
			if ts.IsZero() {
				ts = now
			}

			var id int64
			if err := stmt.QueryRowContext(ctx,
				ts, in.FieldID, in.SensorType, in.ReadingValue, in.Unit,
			).Scan(&id); err != nil {
				return fmt.Errorf("insert reading %d: %w", i, err)
			}

			readings = append(readings, model.SensorReading{
				ID:           id,
				Timestamp:    ts,
				FieldID:      in.FieldID,
				SensorType:   in.SensorType,
				ReadingValue: in.ReadingValue,
				Unit:         in.Unit,
			})

			if onRow != nil {
				if err := onRow(i); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return readings, nil
}

// =============================================================================
// Queries
// =============================================================================

const readingColumns = `id, timestamp, field_id, sensor_type, reading_value, unit`

// Readings returns rows matching the filter, most recent first, bounded by
// limit and offset. Empty filter fields match everything.
func (s *Store) Readings(ctx context.Context, filter model.ReadingFilter, limit, offset int) ([]model.SensorReading, error) {
	query := `SELECT ` + readingColumns + ` FROM sensor_readings`
	where, args := buildReadingFilter(filter, 0)
	query += where

	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows, limit)
}

// AllReadings returns every row matching the filter, most recent first,
// without pagination. Used by the per-entity analytics which aggregate over
// the full matching set.
func (s *Store) AllReadings(ctx context.Context, filter model.ReadingFilter) ([]model.SensorReading, error) {
	query := `SELECT ` + readingColumns + ` FROM sensor_readings`
	where, args := buildReadingFilter(filter, 0)
	query += where + ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows, 0)
}

// RecentReadings returns the n most recent rows across all fields.
func (s *Store) RecentReadings(ctx context.Context, n int) ([]model.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM sensor_readings
		ORDER BY timestamp DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows, n)
}

// CountReadings returns the total number of stored readings.
func (s *Store) CountReadings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&count)
	return count, err
}

// DistinctFieldIDs returns the sorted set of field identifiers present.
func (s *Store) DistinctFieldIDs(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "field_id")
}

// DistinctSensorTypes returns the sorted set of sensor types present.
func (s *Store) DistinctSensorTypes(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "sensor_type")
}

func (s *Store) distinctColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM sensor_readings ORDER BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// AverageByField returns the mean reading value per field identifier.
func (s *Store) AverageByField(ctx context.Context) (map[string]float64, error) {
	return s.averageByColumn(ctx, "field_id")
}

// AverageBySensorType returns the mean reading value per sensor type.
func (s *Store) AverageBySensorType(ctx context.Context) (map[string]float64, error) {
	return s.averageByColumn(ctx, "sensor_type")
}

func (s *Store) averageByColumn(ctx context.Context, column string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, AVG(reading_value) FROM sensor_readings GROUP BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("query averages by %s: %w", column, err)
	}
	defer rows.Close()

	averages := make(map[string]float64)
	for rows.Next() {
		var key string
		var avg sql.NullFloat64
		if err := rows.Scan(&key, &avg); err != nil {
			return nil, fmt.Errorf("scan average: %w", err)
		}
		// NULL never happens for non-empty groups; 0.0 is the defined sentinel.
		averages[key] = avg.Float64
	}
	return averages, rows.Err()
}

// =============================================================================
// Deletes
// =============================================================================

// DeleteOlderThan removes rows with timestamp strictly before cutoff and
// returns the number removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sensor_readings WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old readings: %w", err)
	}
	return result.RowsAffected()
}

// CountOlderThan returns how many rows a DeleteOlderThan(cutoff) would remove.
func (s *Store) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sensor_readings WHERE timestamp < $1`, cutoff).Scan(&count)
	return count, err
}

// ReadingsOlderThan returns the rows a DeleteOlderThan(cutoff) would remove,
// oldest first. Used to archive rows before the sweep deletes them.
func (s *Store) ReadingsOlderThan(ctx context.Context, cutoff time.Time) ([]model.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM sensor_readings
		WHERE timestamp < $1
		ORDER BY timestamp ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expired readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows, 0)
}

// DeleteAll clears both tables in one transaction and returns the counts of
// deleted readings and daily stats. Administrative use only.
func (s *Store) DeleteAll(ctx context.Context) (readings int64, stats int64, err error) {
	err = s.TransactionContext(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sensor_readings`)
		if err != nil {
			return fmt.Errorf("delete readings: %w", err)
		}
		if readings, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM daily_stats`)
		if err != nil {
			return fmt.Errorf("delete daily stats: %w", err)
		}
		stats, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return readings, stats, nil
}

// =============================================================================
// Helpers
// =============================================================================

// buildReadingFilter appends WHERE clauses for the set filter fields.
// argOffset is the number of $N placeholders already consumed by the caller.
func buildReadingFilter(filter model.ReadingFilter, argOffset int) (string, []interface{}) {
	var (
		where string
		args  []interface{}
	)

	add := func(column, value string) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		args = append(args, value)
		where += fmt.Sprintf("%s = $%d", column, argOffset+len(args))
	}

	if filter.FieldID != "" {
		add("field_id", filter.FieldID)
	}
	if filter.SensorType != "" {
		add("sensor_type", filter.SensorType)
	}

	return where, args
}

func scanReadings(rows *sql.Rows, capacity int) ([]model.SensorReading, error) {
	if capacity <= 0 {
		capacity = 100
	}
	readings := make([]model.SensorReading, 0, capacity)

	for rows.Next() {
		var r model.SensorReading
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.FieldID, &r.SensorType, &r.ReadingValue, &r.Unit,
		); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}
