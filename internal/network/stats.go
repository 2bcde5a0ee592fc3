package network

import (
	"slices"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the structure of a graph.
type Stats struct {
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	MeanDegree float64 `json:"mean_degree"`
	MaxDegree  int     `json:"max_degree"`
	MinDegree  int     `json:"min_degree"`
	Isolated   int     `json:"isolated"`
	Components int     `json:"components"`

	// Clustering is the average local clustering coefficient. Nodes with
	// degree below 2 contribute 0.
	Clustering float64 `json:"clustering"`
}

// Stats computes structural statistics for g.
func (g *Graph) Stats() Stats {
	n := g.NodeCount()
	s := Stats{
		Nodes:      n,
		Edges:      g.EdgeCount(),
		Components: len(topo.ConnectedComponents(g.g)),
	}
	if n == 0 {
		return s
	}

	degrees := make([]float64, n)
	coeffs := make([]float64, n)
	s.MinDegree = g.Degree(0)
	for i := 0; i < n; i++ {
		d := g.Degree(i)
		degrees[i] = float64(d)
		s.MaxDegree = max(s.MaxDegree, d)
		s.MinDegree = min(s.MinDegree, d)
		if d == 0 {
			s.Isolated++
		}
		coeffs[i] = g.LocalClustering(i)
	}
	s.MeanDegree = stat.Mean(degrees, nil)
	s.Clustering = stat.Mean(coeffs, nil)
	return s
}

// LocalClustering returns the fraction of pairs of id's neighbours that are
// themselves adjacent.
func (g *Graph) LocalClustering(id int) float64 {
	nbrs := g.Neighbors(id)
	k := len(nbrs)
	if k < 2 {
		return 0
	}
	links := 0
	for i, u := range nbrs {
		for _, v := range nbrs[i+1:] {
			if g.HasEdge(u, v) {
				links++
			}
		}
	}
	return float64(2*links) / float64(k*(k-1))
}

// PageRank returns a PageRank score per node, treating every undirected edge
// as a pair of directed edges.
func (g *Graph) PageRank(damping, tolerance float64) []float64 {
	directed := simple.NewDirectedGraph()
	for i := 0; i < g.NodeCount(); i++ {
		directed.AddNode(simple.Node(int64(i)))
	}
	for _, e := range g.Edges() {
		u, v := simple.Node(int64(e[0])), simple.Node(int64(e[1]))
		directed.SetEdge(simple.Edge{F: u, T: v})
		directed.SetEdge(simple.Edge{F: v, T: u})
	}

	ranks := network.PageRank(directed, damping, tolerance)
	out := make([]float64, g.NodeCount())
	for id, score := range ranks {
		out[id] = score
	}
	return out
}

// Hubs returns up to k node ids ordered by descending degree, ties broken by id.
func (g *Graph) Hubs(k int) []int {
	ids := make([]int, g.NodeCount())
	for i := range ids {
		ids[i] = i
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		return g.Degree(b) - g.Degree(a)
	})
	if k < len(ids) {
		ids = ids[:k]
	}
	return ids
}
