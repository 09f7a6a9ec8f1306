package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

func TestSQLite_EmitAndReadBack(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "epinet.db"), "run-1")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Emit(ctx, 0, 0, testRecord(0, 0)))
	require.NoError(t, s.Emit(ctx, 0, 1, countsRecord(1, 2)))
	// A retried emit overwrites rather than duplicating.
	require.NoError(t, s.Emit(ctx, 0, 1, countsRecord(1, 2)))
	require.NoError(t, s.FinishSeed(ctx, 0))

	counts, err := s.Counts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 2, counts[0][disease.Susceptible])
	assert.Equal(t, 1, counts[0][disease.Exposed])
	assert.Equal(t, 2, counts[1][disease.Exposed])

	var agents int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_states WHERE run_id = ? AND seed = ?`, "run-1", 0).Scan(&agents))
	assert.Equal(t, 3, agents)

	var state string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT state FROM agent_states WHERE agent_id = 1 AND timestep = 0`).Scan(&state))
	assert.Equal(t, "Exposed", state)

	finished, err := s.Finished(ctx, 0)
	require.NoError(t, err)
	assert.True(t, finished)
	finished, err = s.Finished(ctx, 1)
	require.NoError(t, err)
	assert.False(t, finished)
}

func TestSQLite_RunsAreSeparate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "epinet.db")

	a, err := OpenSQLite(ctx, path, "run-a")
	require.NoError(t, err)
	require.NoError(t, a.Emit(ctx, 0, 0, countsRecord(3, 0)))
	require.NoError(t, a.Close())

	b, err := OpenSQLite(ctx, path, "run-b")
	require.NoError(t, err)
	defer b.Close()
	counts, err := b.Counts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestSQLite_Uninitialised(t *testing.T) {
	s := NewSQLite("", "run")
	err := s.Emit(context.Background(), 0, 0, countsRecord(1, 0))
	assert.True(t, simerr.IsExport(err))

	err = s.Init(context.Background())
	assert.True(t, simerr.IsConfiguration(err))
	assert.NoError(t, s.Close())
}
