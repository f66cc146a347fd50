package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the SQLite store.
const schemaV1 = `
-- One row per batch, with the parameters every run of it shared
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    num_simulations INTEGER NOT NULL,
    num_people INTEGER NOT NULL,
    num_days INTEGER NOT NULL,
    seed INTEGER NOT NULL,
    infection_prob REAL NOT NULL,
    vaccination_prob REAL NOT NULL,
    transmission_prob REAL NOT NULL,
    death_prob REAL NOT NULL,
    recovery_threshold_days INTEGER NOT NULL,
    max_encounters INTEGER NOT NULL
);

-- Every individual's status on every emitted day
CREATE TABLE IF NOT EXISTS snapshots (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    run INTEGER NOT NULL,
    day INTEGER NOT NULL,
    person_id INTEGER NOT NULL,
    status TEXT NOT NULL,  -- 'Susceptible', 'Infected(3)', ...
    PRIMARY KEY (batch_id, run, day, person_id)
);

-- Status counts and transitions per emitted day
CREATE TABLE IF NOT EXISTS day_counts (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    run INTEGER NOT NULL,
    day INTEGER NOT NULL,
    susceptible INTEGER NOT NULL,
    infected INTEGER NOT NULL,
    recovered INTEGER NOT NULL,
    vaccinated INTEGER NOT NULL,
    dead INTEGER NOT NULL,
    new_infections INTEGER NOT NULL DEFAULT 0,
    new_recoveries INTEGER NOT NULL DEFAULT 0,
    new_deaths INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (batch_id, run, day)
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the tables if needed and records the schema version.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		SchemaVersion, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// currentVersion returns the highest applied schema version, 0 if none.
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}
