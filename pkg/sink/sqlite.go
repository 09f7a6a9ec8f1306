package sink

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS counts (
	run_id   TEXT    NOT NULL,
	seed     INTEGER NOT NULL,
	timestep INTEGER NOT NULL,
	state    TEXT    NOT NULL,
	n        INTEGER NOT NULL,
	PRIMARY KEY (run_id, seed, timestep, state)
);
CREATE TABLE IF NOT EXISTS agent_states (
	run_id     TEXT    NOT NULL,
	seed       INTEGER NOT NULL,
	timestep   INTEGER NOT NULL,
	agent_id   INTEGER NOT NULL,
	ward       TEXT    NOT NULL,
	age        INTEGER NOT NULL,
	state      TEXT    NOT NULL,
	entered_at INTEGER NOT NULL,
	isolated   INTEGER NOT NULL,
	PRIMARY KEY (run_id, seed, timestep, agent_id)
);
CREATE TABLE IF NOT EXISTS seeds (
	run_id   TEXT    NOT NULL,
	seed     INTEGER NOT NULL,
	finished INTEGER NOT NULL,
	PRIMARY KEY (run_id, seed)
);
`

// SQLite stores counts and, when present, per-agent states in a SQLite
// database. Rows are keyed by run id so one file can hold several batches.
type SQLite struct {
	path  string
	runID string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLite returns an uninitialised SQLite sink. Call Init before Emit.
func NewSQLite(path, runID string) *SQLite {
	return &SQLite{path: path, runID: runID}
}

// OpenSQLite creates and initialises a SQLite sink.
func OpenSQLite(ctx context.Context, path, runID string) (*SQLite, error) {
	s := NewSQLite(path, runID)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Name() string { return "sqlite" }

// Init opens the database and creates the tables.
func (s *SQLite) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return simerr.Config("sqlite").Field("path").Msg("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return simerr.Export("sqlite-open").Context(s.path).Wrap(err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return simerr.Export("sqlite-open").Context(s.path).Wrap(err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return simerr.Export("sqlite-schema").Context(s.path).Wrap(err)
	}

	s.db = db
	return nil
}

func (s *SQLite) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite sink is not initialized")
	}
	return s.db, nil
}

// Emit writes the record inside one transaction.
func (s *SQLite) Emit(ctx context.Context, seed int64, t int, rec snapshot.Record) error {
	db, err := s.getDB()
	if err != nil {
		return simerr.Export("sqlite").Seed(seed).Timestep(t).Wrap(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return simerr.Export("sqlite").Seed(seed).Timestep(t).Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	for state, n := range rec.Counts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO counts (run_id, seed, timestep, state, n)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, seed, timestep, state) DO UPDATE SET n = excluded.n
		`, s.runID, seed, t, disease.State(state).String(), n); err != nil {
			return simerr.Export("sqlite").Seed(seed).Timestep(t).Wrap(err)
		}
	}

	if rec.Snapshot != nil {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO agent_states (run_id, seed, timestep, agent_id, ward, age, state, entered_at, isolated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, seed, timestep, agent_id) DO UPDATE SET
				state = excluded.state,
				entered_at = excluded.entered_at,
				isolated = excluded.isolated
		`)
		if err != nil {
			return simerr.Export("sqlite").Seed(seed).Timestep(t).Wrap(err)
		}
		defer stmt.Close()
		for _, a := range rec.Snapshot.Agents {
			if _, err := stmt.ExecContext(ctx, s.runID, seed, t, a.ID, a.Ward, a.Age,
				a.State.String(), a.EnteredAt, a.Isolated); err != nil {
				return simerr.Export("sqlite").Seed(seed).Timestep(t).Agent(a.ID).Wrap(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return simerr.Export("sqlite").Seed(seed).Timestep(t).Wrap(err)
	}
	return nil
}

// FinishSeed records that seed completed.
func (s *SQLite) FinishSeed(ctx context.Context, seed int64) error {
	db, err := s.getDB()
	if err != nil {
		return simerr.Export("sqlite").Seed(seed).Wrap(err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO seeds (run_id, seed, finished) VALUES (?, ?, 1)
		ON CONFLICT(run_id, seed) DO UPDATE SET finished = 1
	`, s.runID, seed)
	if err != nil {
		return simerr.Export("sqlite").Seed(seed).Wrap(err)
	}
	return nil
}

// Counts reads back the counts of seed in timestep order.
func (s *SQLite) Counts(ctx context.Context, seed int64) ([]disease.Counts, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT timestep, state, n FROM counts
		WHERE run_id = ? AND seed = ?
		ORDER BY timestep
	`, s.runID, seed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []disease.Counts
	for rows.Next() {
		var (
			t     int
			label string
			n     int
		)
		if err := rows.Scan(&t, &label, &n); err != nil {
			return nil, err
		}
		state, err := disease.ParseState(label)
		if err != nil {
			return nil, err
		}
		for len(out) <= t {
			out = append(out, disease.Counts{})
		}
		out[t][state] = n
	}
	return out, rows.Err()
}

// Finished reports whether FinishSeed was recorded for seed.
func (s *SQLite) Finished(ctx context.Context, seed int64) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	var finished int
	err = db.QueryRowContext(ctx, `SELECT finished FROM seeds WHERE run_id = ? AND seed = ?`,
		s.runID, seed).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return finished == 1, err
}

// Close closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
