// Package network holds the multi-layer contact graph and its builder.
//
// A ContactNetwork is constructed once per seed, then frozen by Finalize.
// After that the agent set and the edge set never change; only agent disease
// state and per-run intervention modifiers vary during a run.
package network

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// Edge is an undirected, layer-tagged contact. A < B always holds.
type Edge struct {
	ID     int     `json:"id"`
	A      int64   `json:"a"`
	B      int64   `json:"b"`
	Layer  string  `json:"layer"`
	Weight float64 `json:"weight"`
}

// Other returns the endpoint that is not id.
func (e Edge) Other(id int64) int64 {
	if e.A == id {
		return e.B
	}
	return e.A
}

// Incidence is one entry in an agent's adjacency list.
type Incidence struct {
	Neighbour int64
	Edge      int
}

type edgeKey struct {
	a, b  int64
	layer string
}

// ContactNetwork is an undirected weighted multigraph of agents, at most one
// edge per (pair, layer).
type ContactNetwork struct {
	agents   []*disease.Agent
	index    map[int64]int
	edges    []Edge
	incident [][]Incidence
	seen     map[edgeKey]struct{}
	layers   map[string]int
	frozen   bool
}

// New returns an empty, mutable network.
func New() *ContactNetwork {
	return &ContactNetwork{
		index:  make(map[int64]int),
		seen:   make(map[edgeKey]struct{}),
		layers: make(map[string]int),
	}
}

// AddAgent inserts an agent. Ids must be unique.
func (n *ContactNetwork) AddAgent(a *disease.Agent) error {
	if n.frozen {
		return simerr.Config("add agent").Agent(a.ID).Msg("network is finalized")
	}
	if _, ok := n.index[a.ID]; ok {
		return simerr.Config("add agent").Agent(a.ID).Msg("duplicate agent id")
	}
	n.index[a.ID] = len(n.agents)
	n.agents = append(n.agents, a)
	n.incident = append(n.incident, nil)
	return nil
}

// AddEdge connects a and b on layer. It reports false without error when the
// pair is already connected on that layer.
func (n *ContactNetwork) AddEdge(a, b int64, layer string, weight float64) (bool, error) {
	if n.frozen {
		return false, simerr.Config("add edge").Msg("network is finalized")
	}
	if a == b {
		return false, simerr.Config("add edge").Agent(a).Msg("self loop")
	}
	if !(weight > 0 && weight <= 1) {
		return false, simerr.Config("add edge").Field("weight").Msg("weight %g outside (0,1]", weight)
	}
	ia, okA := n.index[a]
	ib, okB := n.index[b]
	if !okA || !okB {
		return false, simerr.Config("add edge").Msg("unknown endpoint in %d-%d", a, b)
	}
	if a > b {
		a, b = b, a
		ia, ib = ib, ia
	}
	key := edgeKey{a, b, layer}
	if _, dup := n.seen[key]; dup {
		return false, nil
	}
	n.seen[key] = struct{}{}

	id := len(n.edges)
	n.edges = append(n.edges, Edge{ID: id, A: a, B: b, Layer: layer, Weight: weight})
	n.incident[ia] = append(n.incident[ia], Incidence{Neighbour: b, Edge: id})
	n.incident[ib] = append(n.incident[ib], Incidence{Neighbour: a, Edge: id})
	n.layers[layer]++
	return true, nil
}

// Finalize freezes the network, ordering agents by id and each incidence
// list by (neighbour, layer).
func (n *ContactNetwork) Finalize() {
	if n.frozen {
		return
	}
	order := make([]int, len(n.agents))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(x, y int) int { return cmp.Compare(n.agents[x].ID, n.agents[y].ID) })

	agents := make([]*disease.Agent, len(order))
	incident := make([][]Incidence, len(order))
	for pos, old := range order {
		agents[pos] = n.agents[old]
		incident[pos] = n.incident[old]
		n.index[agents[pos].ID] = pos
	}
	n.agents, n.incident = agents, incident

	for _, list := range n.incident {
		slices.SortFunc(list, func(x, y Incidence) int {
			if c := cmp.Compare(x.Neighbour, y.Neighbour); c != 0 {
				return c
			}
			return cmp.Compare(n.edges[x.Edge].Layer, n.edges[y.Edge].Layer)
		})
	}
	n.seen = nil
	n.frozen = true
}

// Finalized reports whether the network is frozen.
func (n *ContactNetwork) Finalized() bool { return n.frozen }

// Len returns the number of agents.
func (n *ContactNetwork) Len() int { return len(n.agents) }

// Agents returns agents in id order once finalized. Do not modify the slice.
func (n *ContactNetwork) Agents() []*disease.Agent { return n.agents }

// Agent looks up an agent by id.
func (n *ContactNetwork) Agent(id int64) (*disease.Agent, bool) {
	i, ok := n.index[id]
	if !ok {
		return nil, false
	}
	return n.agents[i], true
}

// Edges returns the edge list ordered by edge id. Do not modify the slice.
func (n *ContactNetwork) Edges() []Edge { return n.edges }

// Edge returns the edge with the given id.
func (n *ContactNetwork) Edge(id int) Edge { return n.edges[id] }

// Incident returns the adjacency list of an agent, or nil for unknown ids.
func (n *ContactNetwork) Incident(id int64) []Incidence {
	i, ok := n.index[id]
	if !ok {
		return nil
	}
	return n.incident[i]
}

// Degree returns the number of incident edges of an agent.
func (n *ContactNetwork) Degree(id int64) int { return len(n.Incident(id)) }

// LayerCounts returns the number of edges per layer.
func (n *ContactNetwork) LayerCounts() map[string]int {
	out := make(map[string]int, len(n.layers))
	for k, v := range n.layers {
		out[k] = v
	}
	return out
}

// Counts tallies agents per disease state.
func (n *ContactNetwork) Counts() disease.Counts {
	var c disease.Counts
	for _, a := range n.agents {
		c[a.State()]++
	}
	return c
}

// Reset returns every agent to Susceptible so the structure can be reused.
func (n *ContactNetwork) Reset() {
	for _, a := range n.agents {
		a.Reset()
	}
}

// Graph returns a gonum view with one node per agent and one edge per
// connected pair, regardless of how many layers join them.
func (n *ContactNetwork) Graph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for _, a := range n.agents {
		g.AddNode(simple.Node(a.ID))
	}
	for _, e := range n.edges {
		if !g.HasEdgeBetween(e.A, e.B) {
			g.SetEdge(g.NewEdge(simple.Node(e.A), simple.Node(e.B)))
		}
	}
	return g
}

// Equal reports structural equality: same agents (identity fields) and the
// same edges in the same order.
func Equal(a, b *ContactNetwork) bool {
	if a.Len() != b.Len() || len(a.edges) != len(b.edges) {
		return false
	}
	for i, x := range a.agents {
		y := b.agents[i]
		if x.ID != y.ID || x.Ward != y.Ward || x.Age != y.Age || x.Bracket != y.Bracket {
			return false
		}
	}
	return slices.Equal(a.edges, b.edges)
}
