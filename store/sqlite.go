// Package store persists simulation batches to SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/sim"
)

// ErrNoBatch is returned by Emit before BeginBatch.
var ErrNoBatch = errors.New("no batch started")

// SQLiteStore writes emitted days to a SQLite database. One store may be
// shared by every run of a batch; writes are serialized.
type SQLiteStore struct {
	mu      sync.Mutex
	db      *sql.DB
	path    string
	batchID string
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	v, err := currentVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if v > SchemaVersion {
		db.Close()
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", v, SchemaVersion)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// BeginBatch records a batch and its parameters. Later days are written
// under batchID.
func (s *SQLiteStore) BeginBatch(ctx context.Context, batchID string, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (
			id, created_at, num_simulations, num_people, num_days, seed,
			infection_prob, vaccination_prob, transmission_prob, death_prob,
			recovery_threshold_days, max_encounters
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID,
		time.Now().UTC().Format(time.RFC3339),
		cfg.Simulation.NumSimulations,
		cfg.Simulation.NumPeople,
		cfg.Simulation.NumDays,
		cfg.Simulation.Seed,
		cfg.Disease.InfectionProb,
		cfg.Disease.VaccinationProb,
		cfg.Disease.TransmissionProb,
		cfg.Disease.DeathProb,
		cfg.Disease.RecoveryThresholdDays,
		cfg.Encounters.MaxPerDay,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	s.batchID = batchID
	return nil
}

// Emit implements sim.Sink: one transaction per day holding every
// individual's status and the day's counts.
func (s *SQLiteStore) Emit(d sim.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batchID == "" {
		return ErrNoBatch
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshots (batch_id, run, day, person_id, status) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	var counts components.Counts
	for _, ind := range d.Individuals {
		counts.Add(ind.Status)
		if _, err := stmt.ExecContext(ctx, s.batchID, d.Run, d.Day, ind.ID, ind.Status.String()); err != nil {
			return fmt.Errorf("failed to insert snapshot of %d: %w", ind.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO day_counts (
			batch_id, run, day, susceptible, infected, recovered, vaccinated, dead,
			new_infections, new_recoveries, new_deaths
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.batchID, d.Run, d.Day,
		counts[components.KindSusceptible],
		counts[components.KindInfected],
		counts[components.KindRecovered],
		counts[components.KindVaccinated],
		counts[components.KindDead],
		d.Report.NewInfections, d.Report.NewRecoveries, d.Report.NewDeaths,
	)
	if err != nil {
		return fmt.Errorf("failed to insert day counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit day %d of run %d: %w", d.Day, d.Run, err)
	}
	return nil
}

// Sink returns a sim.Sink writing to s that does not close the store when
// a run ends.
func (s *SQLiteStore) Sink() sim.Sink {
	return sim.SinkFunc(s.Emit)
}

// DayCounts returns the stored counts of one run, ordered by day.
func (s *SQLiteStore) DayCounts(ctx context.Context, batchID string, run int) ([]components.Counts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT susceptible, infected, recovered, vaccinated, dead
		FROM day_counts WHERE batch_id = ? AND run = ? ORDER BY day`, batchID, run)
	if err != nil {
		return nil, fmt.Errorf("failed to query day counts: %w", err)
	}
	defer rows.Close()

	var out []components.Counts
	for rows.Next() {
		var c components.Counts
		if err := rows.Scan(
			&c[components.KindSusceptible],
			&c[components.KindInfected],
			&c[components.KindRecovered],
			&c[components.KindVaccinated],
			&c[components.KindDead],
		); err != nil {
			return nil, fmt.Errorf("failed to scan day counts: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Statuses returns the stored statuses of one day, in id order.
func (s *SQLiteStore) Statuses(ctx context.Context, batchID string, run, day int) ([]components.Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM snapshots
		WHERE batch_id = ? AND run = ? AND day = ? ORDER BY person_id`, batchID, run, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []components.Status
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var st components.Status
		if err := st.UnmarshalText([]byte(text)); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
