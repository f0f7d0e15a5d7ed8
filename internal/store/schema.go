package store

import (
	"context"
	"fmt"
)

// dialect identifies the SQL flavor in use. Only DDL differs between the
// two backends; all DML is written once with $N placeholders.
type dialect string

const (
	dialectDuckDB   dialect = "duckdb"
	dialectPostgres dialect = "postgres"
)

type migration struct {
	name string
	sql  string
}

// migrate brings the schema up. All statements are idempotent - safe to run
// on every start.
func (s *Store) migrate(ctx context.Context) error {
	for _, m := range s.migrations() {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *Store) migrations() []migration {
	var tables []migration

	switch s.dialect {
	case dialectPostgres:
		tables = []migration{
			{
				name: "sensor_readings",
				sql: `CREATE TABLE IF NOT EXISTS sensor_readings (
					id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
					field_id VARCHAR(50) NOT NULL,
					sensor_type VARCHAR(50) NOT NULL,
					reading_value DOUBLE PRECISION NOT NULL,
					unit VARCHAR(20) NOT NULL
				)`,
			},
			{
				name: "daily_stats",
				sql: `CREATE TABLE IF NOT EXISTS daily_stats (
					id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
					date TIMESTAMPTZ NOT NULL,
					field_id VARCHAR(50) NOT NULL,
					sensor_type VARCHAR(50) NOT NULL,
					avg_value DOUBLE PRECISION NOT NULL,
					min_value DOUBLE PRECISION NOT NULL,
					max_value DOUBLE PRECISION NOT NULL,
					count_readings BIGINT NOT NULL
				)`,
			},
		}
	default:
		// DuckDB has no identity columns; ids come from sequences.
		tables = []migration{
			{
				name: "seq_sensor_readings_id",
				sql:  `CREATE SEQUENCE IF NOT EXISTS seq_sensor_readings_id START 1`,
			},
			{
				name: "seq_daily_stats_id",
				sql:  `CREATE SEQUENCE IF NOT EXISTS seq_daily_stats_id START 1`,
			},
			{
				name: "sensor_readings",
				sql: `CREATE TABLE IF NOT EXISTS sensor_readings (
					id BIGINT PRIMARY KEY DEFAULT nextval('seq_sensor_readings_id'),
					timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
					field_id VARCHAR(50) NOT NULL,
					sensor_type VARCHAR(50) NOT NULL,
					reading_value DOUBLE NOT NULL,
					unit VARCHAR(20) NOT NULL
				)`,
			},
			{
				name: "daily_stats",
				sql: `CREATE TABLE IF NOT EXISTS daily_stats (
					id BIGINT PRIMARY KEY DEFAULT nextval('seq_daily_stats_id'),
					date TIMESTAMPTZ NOT NULL,
					field_id VARCHAR(50) NOT NULL,
					sensor_type VARCHAR(50) NOT NULL,
					avg_value DOUBLE NOT NULL,
					min_value DOUBLE NOT NULL,
					max_value DOUBLE NOT NULL,
					count_readings BIGINT NOT NULL
				)`,
			},
		}
	}

	// Index set mirrors the lookup paths: by time, by tag, by tag pair.
	indexes := []migration{
		{"idx_timestamp", `CREATE INDEX IF NOT EXISTS idx_timestamp ON sensor_readings (timestamp)`},
		{"idx_field_id", `CREATE INDEX IF NOT EXISTS idx_field_id ON sensor_readings (field_id)`},
		{"idx_sensor_type", `CREATE INDEX IF NOT EXISTS idx_sensor_type ON sensor_readings (sensor_type)`},
		{"idx_field_sensor", `CREATE INDEX IF NOT EXISTS idx_field_sensor ON sensor_readings (field_id, sensor_type)`},
		{"idx_daily_stats_date", `CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats (date)`},
		{"idx_daily_stats_field", `CREATE INDEX IF NOT EXISTS idx_daily_stats_field ON daily_stats (field_id)`},
		{"idx_daily_stats_sensor", `CREATE INDEX IF NOT EXISTS idx_daily_stats_sensor ON daily_stats (sensor_type)`},
	}

	return append(tables, indexes...)
}
