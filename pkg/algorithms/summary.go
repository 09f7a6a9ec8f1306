// Package algorithms computes structural summaries of contact networks.
package algorithms

import (
	"slices"

	"gonum.org/v1/gonum/graph/topo"

	"github.com/dd0wney/cluso-epinet/pkg/network"
)

// Summary describes a built network.
type Summary struct {
	Agents           int            `json:"agents"`
	Edges            int            `json:"edges"`
	EdgesByLayer     map[string]int `json:"edges_by_layer"`
	MeanDegree       float64        `json:"mean_degree"`
	MaxDegree        int            `json:"max_degree"`
	Isolated         int            `json:"isolated"`
	Components       int            `json:"components"`
	LargestComponent int            `json:"largest_component"`
	Triangles        int            `json:"triangles"`
	Clustering       float64        `json:"clustering"`
}

// Summarize computes degree, component and clustering statistics.
// Degrees count edges, so a pair joined on two layers contributes two.
func Summarize(net *network.ContactNetwork) Summary {
	s := Summary{
		Agents:       net.Len(),
		Edges:        len(net.Edges()),
		EdgesByLayer: net.LayerCounts(),
	}
	if s.Agents == 0 {
		return s
	}

	for _, a := range net.Agents() {
		d := net.Degree(a.ID)
		s.MaxDegree = max(s.MaxDegree, d)
		if d == 0 {
			s.Isolated++
		}
	}
	s.MeanDegree = 2 * float64(s.Edges) / float64(s.Agents)

	components := ConnectedComponents(net)
	s.Components = len(components)
	if s.Components > 0 {
		s.LargestComponent = len(components[0])
	}

	tri := CountTriangles(net)
	s.Triangles = tri.GlobalCount
	s.Clustering = tri.GlobalClustering
	return s
}

// ConnectedComponents returns agent ids per component, largest first; ties
// are ordered by smallest member id.
func ConnectedComponents(net *network.ContactNetwork) [][]int64 {
	cc := topo.ConnectedComponents(net.Graph())
	out := make([][]int64, 0, len(cc))
	for _, nodes := range cc {
		ids := make([]int64, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID()
		}
		slices.Sort(ids)
		out = append(out, ids)
	}
	slices.SortFunc(out, func(a, b []int64) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return int(a[0] - b[0])
	})
	return out
}
