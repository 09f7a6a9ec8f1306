package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS epinet_counts (
	run_id   UUID    NOT NULL,
	seed     BIGINT  NOT NULL,
	timestep INTEGER NOT NULL,
	state    TEXT    NOT NULL,
	n        INTEGER NOT NULL,
	PRIMARY KEY (run_id, seed, timestep, state)
);
CREATE TABLE IF NOT EXISTS epinet_agent_states (
	run_id     UUID    NOT NULL,
	seed       BIGINT  NOT NULL,
	timestep   INTEGER NOT NULL,
	agent_id   BIGINT  NOT NULL,
	ward       TEXT    NOT NULL,
	age        INTEGER NOT NULL,
	state      TEXT    NOT NULL,
	entered_at INTEGER NOT NULL,
	isolated   BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, seed, timestep, agent_id)
);
CREATE TABLE IF NOT EXISTS epinet_seeds (
	run_id      UUID        NOT NULL,
	seed        BIGINT      NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, seed)
);
`

var (
	pgCountColumns = []string{"run_id", "seed", "timestep", "state", "n"}
	pgAgentColumns = []string{"run_id", "seed", "timestep", "agent_id", "ward", "age", "state", "entered_at", "isolated"}
)

// PGPool is the subset of *pgxpool.Pool the Postgres sink uses.
type PGPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

// Postgres bulk-loads records into PostgreSQL with COPY. Rows of the
// timestep are deleted first so a retried emit does not duplicate them.
type Postgres struct {
	pool  PGPool
	runID string
}

// OpenPostgres connects to dsn, creates the tables and returns the sink.
func OpenPostgres(ctx context.Context, dsn, runID string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, simerr.Config("postgres").Field("dsn").Wrap(err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, simerr.Export("postgres-open").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, simerr.Export("postgres-open").Wrap(fmt.Errorf("database unreachable: %w", err))
	}

	s := NewPostgres(pool, runID)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool PGPool, runID string) *Postgres {
	return &Postgres{pool: pool, runID: runID}
}

func (p *Postgres) Name() string { return "postgres" }

// Migrate creates the tables if they don't exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return simerr.Export("postgres-migrate").Wrap(err)
	}
	return nil
}

// Emit copies the counts and agent states of one timestep.
func (p *Postgres) Emit(ctx context.Context, seed int64, t int, rec snapshot.Record) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM epinet_counts WHERE run_id = $1 AND seed = $2 AND timestep = $3`,
		p.runID, seed, t); err != nil {
		return simerr.Export("postgres").Seed(seed).Timestep(t).Wrap(err)
	}

	rows := make([][]any, 0, disease.NumStates)
	for state, n := range rec.Counts {
		rows = append(rows, []any{p.runID, seed, t, disease.State(state).String(), n})
	}
	if _, err := p.pool.CopyFrom(ctx, pgx.Identifier{"epinet_counts"}, pgCountColumns, pgx.CopyFromRows(rows)); err != nil {
		return simerr.Export("postgres").Seed(seed).Timestep(t).Context("copy counts").Wrap(err)
	}

	if rec.Snapshot == nil {
		return nil
	}
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM epinet_agent_states WHERE run_id = $1 AND seed = $2 AND timestep = $3`,
		p.runID, seed, t); err != nil {
		return simerr.Export("postgres").Seed(seed).Timestep(t).Wrap(err)
	}
	agents := make([][]any, len(rec.Snapshot.Agents))
	for i, a := range rec.Snapshot.Agents {
		agents[i] = []any{p.runID, seed, t, a.ID, a.Ward, a.Age, a.State.String(), a.EnteredAt, a.Isolated}
	}
	if _, err := p.pool.CopyFrom(ctx, pgx.Identifier{"epinet_agent_states"}, pgAgentColumns, pgx.CopyFromRows(agents)); err != nil {
		return simerr.Export("postgres").Seed(seed).Timestep(t).Context("copy agent states").Wrap(err)
	}
	return nil
}

// FinishSeed records the completion time of seed.
func (p *Postgres) FinishSeed(ctx context.Context, seed int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO epinet_seeds (run_id, seed, finished_at) VALUES ($1, $2, $3)
		ON CONFLICT (run_id, seed) DO UPDATE SET finished_at = EXCLUDED.finished_at
	`, p.runID, seed, time.Now().UTC())
	if err != nil {
		return simerr.Export("postgres").Seed(seed).Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
