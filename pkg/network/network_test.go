package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

func lineNetwork(t *testing.T, n int) *ContactNetwork {
	t.Helper()
	net := New()
	for i := range n {
		require.NoError(t, net.AddAgent(disease.NewAgent(int64(i), "W1", 30, "30-39")))
	}
	for i := 0; i+1 < n; i++ {
		_, err := net.AddEdge(int64(i), int64(i+1), "household", 1)
		require.NoError(t, err)
	}
	return net
}

func TestAddEdge(t *testing.T) {
	net := lineNetwork(t, 3)

	tests := []struct {
		name    string
		a, b    int64
		layer   string
		weight  float64
		added   bool
		wantErr bool
	}{
		{"new layer on existing pair", 0, 1, "work", 0.5, true, false},
		{"duplicate pair and layer", 1, 0, "household", 1, false, false},
		{"self loop", 2, 2, "work", 1, false, true},
		{"zero weight", 0, 2, "work", 0, false, true},
		{"weight above one", 0, 2, "work", 1.5, false, true},
		{"unknown agent", 0, 99, "work", 1, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, err := net.AddEdge(tt.a, tt.b, tt.layer, tt.weight)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, simerr.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.added, added)
		})
	}

	counts := net.LayerCounts()
	assert.Equal(t, 2, counts["household"])
	assert.Equal(t, 1, counts["work"])
}

func TestAddAgent_Duplicate(t *testing.T) {
	net := New()
	require.NoError(t, net.AddAgent(disease.NewAgent(1, "W1", 10, "")))
	err := net.AddAgent(disease.NewAgent(1, "W2", 20, ""))
	require.Error(t, err)
	assert.True(t, simerr.IsConfiguration(err))
}

func TestFinalize_OrdersAgentsAndIncidence(t *testing.T) {
	net := New()
	for _, id := range []int64{5, 2, 9} {
		require.NoError(t, net.AddAgent(disease.NewAgent(id, "W1", 30, "")))
	}
	_, err := net.AddEdge(5, 9, "work", 1)
	require.NoError(t, err)
	_, err = net.AddEdge(5, 2, "work", 1)
	require.NoError(t, err)
	_, err = net.AddEdge(5, 2, "household", 1)
	require.NoError(t, err)
	net.Finalize()

	var ids []int64
	for _, a := range net.Agents() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{2, 5, 9}, ids)

	inc := net.Incident(5)
	require.Len(t, inc, 3)
	assert.Equal(t, int64(2), inc[0].Neighbour)
	assert.Equal(t, "household", net.Edge(inc[0].Edge).Layer)
	assert.Equal(t, "work", net.Edge(inc[1].Edge).Layer)
	assert.Equal(t, int64(9), inc[2].Neighbour)

	for _, e := range net.Edges() {
		assert.Less(t, e.A, e.B)
	}

	_, err = net.AddEdge(2, 9, "work", 1)
	assert.Error(t, err, "finalized networks are immutable")
}

func TestGraph_CollapsesLayers(t *testing.T) {
	net := lineNetwork(t, 4)
	_, err := net.AddEdge(0, 1, "work", 1)
	require.NoError(t, err)
	net.Finalize()

	g := net.Graph()
	assert.Equal(t, 4, g.Nodes().Len())
	assert.Equal(t, 3, g.Edges().Len())
	assert.True(t, g.HasEdgeBetween(2, 3))
}

func TestReset(t *testing.T) {
	net := lineNetwork(t, 2)
	net.Finalize()
	a, ok := net.Agent(0)
	require.True(t, ok)
	a.Isolate(0)
	net.Reset()
	assert.False(t, a.Isolated())
	assert.Equal(t, 2, net.Counts()[disease.Susceptible])
}

func TestMix_Distinct(t *testing.T) {
	seen := make(map[uint64]bool)
	for step := range 50 {
		for id := int64(0); id < 50; id++ {
			k := Mix(step, id)
			assert.False(t, seen[k], "collision at t=%d id=%d", step, id)
			seen[k] = true
		}
	}
}
