package algorithms

import (
	"github.com/dd0wney/cluso-epinet/pkg/network"
)

// TriangleCountResult holds triangle counts over the layer-collapsed contact
// graph: per-agent counts, the global count and clustering coefficients.
type TriangleCountResult struct {
	PerNode                map[int64]int
	GlobalCount            int
	ClusteringCoefficients map[int64]float64
	// GlobalClustering is 3 × triangles / connected triples.
	GlobalClustering float64
}

// neighbourSets builds undirected neighbour sets, collapsing parallel edges
// from different layers.
func neighbourSets(net *network.ContactNetwork) map[int64]map[int64]bool {
	sets := make(map[int64]map[int64]bool, net.Len())
	for _, a := range net.Agents() {
		nb := make(map[int64]bool)
		for _, inc := range net.Incident(a.ID) {
			nb[inc.Neighbour] = true
		}
		sets[a.ID] = nb
	}
	return sets
}

// CountTriangles counts triangles in the contact graph. For each agent u, it
// checks every pair (v,w) of u's neighbours; if v and w are adjacent that's a
// triangle. Each triangle is counted once per participating agent, so
// GlobalCount = sum(PerNode) / 3.
func CountTriangles(net *network.ContactNetwork) *TriangleCountResult {
	sets := neighbourSets(net)

	perNode := make(map[int64]int, len(sets))
	coefficients := make(map[int64]float64, len(sets))
	total, triples := 0, 0
	for _, a := range net.Agents() {
		u := a.ID
		neighbours := make([]int64, 0, len(sets[u]))
		for v := range sets[u] {
			neighbours = append(neighbours, v)
		}

		count := 0
		for i := 0; i < len(neighbours); i++ {
			for j := i + 1; j < len(neighbours); j++ {
				if sets[neighbours[i]][neighbours[j]] {
					count++
				}
			}
		}
		perNode[u] = count
		total += count

		k := len(neighbours)
		if k < 2 {
			coefficients[u] = 0
			continue
		}
		possible := k * (k - 1) / 2
		triples += possible
		coefficients[u] = float64(count) / float64(possible)
	}

	result := &TriangleCountResult{
		PerNode:                perNode,
		GlobalCount:            total / 3,
		ClusteringCoefficients: coefficients,
	}
	if triples > 0 {
		result.GlobalClustering = float64(total) / float64(triples)
	}
	return result
}
