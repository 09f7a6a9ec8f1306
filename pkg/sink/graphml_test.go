package sink

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphML_WritesOneFilePerSnapshot(t *testing.T) {
	dir := t.TempDir()
	g := NewGraphML(dir)
	ctx := context.Background()

	require.NoError(t, g.Emit(ctx, 2, 0, testRecord(2, 0)))
	require.NoError(t, g.Emit(ctx, 2, 13, testRecord(2, 13)))
	require.NoError(t, g.Emit(ctx, 2, 14, countsRecord(3, 0)))
	require.NoError(t, g.Close())

	assert.Equal(t, filepath.Join(dir, "seed2", "network_time0013.graphml"), GraphMLPath(dir, 2, 13))
	assert.FileExists(t, GraphMLPath(dir, 2, 0))
	assert.FileExists(t, GraphMLPath(dir, 2, 13))
	assert.NoFileExists(t, GraphMLPath(dir, 2, 14), "count-only records have no network")

	data, err := os.ReadFile(GraphMLPath(dir, 2, 13))
	require.NoError(t, err)
	assert.Contains(t, string(data), `<?xml version="1.0" encoding="UTF-8"?>`)

	var doc graphMLDoc
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "undirected", doc.Graph.EdgeDefault)
	require.Len(t, doc.Graph.Nodes, 3)
	require.Len(t, doc.Graph.Edges, 2)

	node := doc.Graph.Nodes[1]
	assert.Equal(t, "1", node.ID)
	assert.Equal(t, []graphMLData{
		{Key: "ward", Value: "E01"},
		{Key: "age", Value: "36"},
		{Key: "state", Value: "Exposed"},
	}, node.Data)

	edge := doc.Graph.Edges[1]
	assert.Equal(t, "1", edge.Source)
	assert.Equal(t, "2", edge.Target)
	assert.Equal(t, []graphMLData{
		{Key: "layer", Value: "random"},
		{Key: "weight", Value: "0.25"},
	}, edge.Data)
}

func TestGraphML_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "seed0")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := NewGraphML(dir).Emit(context.Background(), 0, 0, testRecord(0, 0))
	require.Error(t, err)
}
