package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
)

func TestSnapshotLog_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewSnapshotLog(dir, false)
	ctx := context.Background()

	require.NoError(t, l.Emit(ctx, 3, 0, testRecord(3, 0)))
	require.NoError(t, l.Emit(ctx, 3, 1, countsRecord(1, 2)))
	require.NoError(t, l.Flush(ctx))
	require.NoError(t, l.FinishSeed(ctx, 3))

	recs, err := ReadSnapshotLog(SnapshotLogPath(dir, 3))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, int64(3), first.Seed)
	assert.Equal(t, 0, first.Timestep)
	require.NotNil(t, first.Record.Snapshot)
	assert.Equal(t, testSnapshot(3, 0).Agents, first.Record.Snapshot.Agents)
	assert.Equal(t, testSnapshot(3, 0).Edges, first.Record.Snapshot.Edges)

	second := recs[1]
	assert.Nil(t, second.Record.Snapshot)
	assert.Equal(t, 1, second.Timestep)
	assert.Equal(t, 2, second.Record.Counts[disease.Exposed])
	assert.Greater(t, second.Seq, first.Seq)
}

func TestSnapshotLog_ReopenAppends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l := NewSnapshotLog(dir, true)
	require.NoError(t, l.Emit(ctx, 0, 0, countsRecord(3, 0)))
	require.NoError(t, l.Close())

	l = NewSnapshotLog(dir, true)
	require.NoError(t, l.Emit(ctx, 0, 1, countsRecord(2, 1)))
	require.NoError(t, l.Close())

	recs, err := ReadSnapshotLog(SnapshotLogPath(dir, 0))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[1].Timestep)
}

func TestReadSnapshotLog_Missing(t *testing.T) {
	recs, err := ReadSnapshotLog(SnapshotLogPath(t.TempDir(), 0))
	require.NoError(t, err)
	assert.Empty(t, recs)
}
