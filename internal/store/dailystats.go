package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xtxerr/croft/internal/model"
)

// RollupDay recomputes the daily_stats rows for the UTC calendar day
// containing day. Existing rows for that day are replaced, so re-running the
// rollup converges on the same result. The delete and insert happen in one
// transaction; stats come back sorted by field then sensor type.
func (s *Store) RollupDay(ctx context.Context, day time.Time) ([]model.DailyStat, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var stats []model.DailyStat

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT field_id, sensor_type,
			       AVG(reading_value), MIN(reading_value), MAX(reading_value), COUNT(id)
			FROM sensor_readings
			WHERE timestamp >= $1 AND timestamp < $2
			GROUP BY field_id, sensor_type
			ORDER BY field_id, sensor_type
		`, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("aggregate day: %w", err)
		}

		for rows.Next() {
			st := model.DailyStat{Date: dayStart}
			if err := rows.Scan(
				&st.FieldID, &st.SensorType,
				&st.AvgValue, &st.MinValue, &st.MaxValue, &st.CountReadings,
			); err != nil {
				rows.Close()
				return fmt.Errorf("scan day aggregate: %w", err)
			}
			stats = append(stats, st)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM daily_stats WHERE date >= $1 AND date < $2`, dayStart, dayEnd); err != nil {
			return fmt.Errorf("delete stale stats: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_stats (date, field_id, sensor_type, avg_value, min_value, max_value, count_readings)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`)
		if err != nil {
			return fmt.Errorf("prepare stats insert: %w", err)
		}
		defer stmt.Close()

		for i := range stats {
			st := &stats[i]
			if err := stmt.QueryRowContext(ctx,
				st.Date, st.FieldID, st.SensorType,
				st.AvgValue, st.MinValue, st.MaxValue, st.CountReadings,
			).Scan(&st.ID); err != nil {
				return fmt.Errorf("insert stat %s/%s: %w", st.FieldID, st.SensorType, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DailyStatsForDay returns the stored stats rows for the UTC calendar day
// containing day, sorted by field then sensor type.
func (s *Store) DailyStatsForDay(ctx context.Context, day time.Time) ([]model.DailyStat, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, field_id, sensor_type, avg_value, min_value, max_value, count_readings
		FROM daily_stats
		WHERE date >= $1 AND date < $2
		ORDER BY field_id, sensor_type
	`, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []model.DailyStat
	for rows.Next() {
		var st model.DailyStat
		if err := rows.Scan(
			&st.ID, &st.Date, &st.FieldID, &st.SensorType,
			&st.AvgValue, &st.MinValue, &st.MaxValue, &st.CountReadings,
		); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// CountDailyStats returns the total number of stored daily stats rows.
func (s *Store) CountDailyStats(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_stats`).Scan(&count)
	return count, err
}
