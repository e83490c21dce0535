package repository

import (
	"context"
	"database/sql"
	"fmt"

	"fieldservice/backend/libs/db"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "customers",
		sql: `
			CREATE TABLE IF NOT EXISTS customers (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				address    TEXT NOT NULL DEFAULT '',
				maps       JSONB NOT NULL DEFAULT '[]'::jsonb,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
	},
	{
		version: 2,
		name:    "visits",
		sql: `
			CREATE TABLE IF NOT EXISTS visits (
				visit_id       TEXT PRIMARY KEY,
				customer_id    TEXT NOT NULL,
				technician_id  TEXT NOT NULL,
				appointment_id TEXT NOT NULL DEFAULT '',
				work_type      TEXT NOT NULL,
				start_time     TIMESTAMPTZ NOT NULL,
				end_time       TIMESTAMPTZ NOT NULL,
				duration_ms    BIGINT NOT NULL,
				station_count  INTEGER NOT NULL DEFAULT 0,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
	},
	{
		version: 3,
		name:    "station_logs",
		sql: `
			CREATE TABLE IF NOT EXISTS station_logs (
				id             BIGSERIAL PRIMARY KEY,
				visit_id       TEXT REFERENCES visits (visit_id),
				station_id     INTEGER NOT NULL,
				customer_id    TEXT NOT NULL,
				technician_id  TEXT NOT NULL,
				logged_at      TIMESTAMPTZ NOT NULL,
				consumption    TEXT NOT NULL DEFAULT '',
				bait_type      TEXT NOT NULL DEFAULT '',
				condition      TEXT NOT NULL DEFAULT '',
				access         TEXT NOT NULL DEFAULT '',
				start_time     TIMESTAMPTZ NOT NULL,
				end_time       TIMESTAMPTZ NOT NULL,
				duration_ms    BIGINT NOT NULL,
				appointment_id TEXT NOT NULL DEFAULT '',
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS station_logs_visit_idx ON station_logs (visit_id)`,
	},
}

// Migrate applies pending schema migrations in version order.
func Migrate(ctx context.Context, sqlDB *sql.DB) error {
	const tracking = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := sqlDB.ExecContext(ctx, tracking); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := sqlDB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		err := db.WithTx(ctx, sqlDB, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}
