// Package network generates the social graph agents sit on. Graphs are built
// with the Holme-Kim power-law cluster model on top of gonum's simple graph
// types and then frozen into a sorted adjacency list, so that neighbour
// iteration order is stable for a given seed.
package network

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/nvandessel/bankrun/internal/constants"
)

// ErrTooFewNodes is returned when the requested node count is below the
// generator's minimum.
var ErrTooFewNodes = errors.New("network: too few nodes")

// Graph is an immutable undirected simple graph over nodes 0..n-1.
type Graph struct {
	g   *simple.UndirectedGraph
	adj [][]int
}

// Generate builds a Holme-Kim power-law cluster graph on n nodes using
// constants.EdgesPerNode new edges per added node and
// constants.TriangleProbability as the triad closing probability.
//
// The construction is deterministic for a given rng state. Every node ends
// with degree >= 1.
func Generate(n int, rng *rand.Rand) (*Graph, error) {
	return generate(n, constants.EdgesPerNode, constants.TriangleProbability, rng)
}

func generate(n, m int, p float64, rng *rand.Rand) (*Graph, error) {
	if n < m+1 {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewNodes, n, m+1)
	}
	if rng == nil {
		return nil, errors.New("network: nil random source")
	}

	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(int64(i)))
	}

	// Each node appears once per incident edge, so uniform sampling from
	// this list is degree-proportional (preferential attachment).
	repeated := make([]int, 0, 2*m*n)
	for i := 0; i < m; i++ {
		repeated = append(repeated, i)
	}

	link := func(u, v int) {
		g.SetEdge(simple.Edge{F: simple.Node(int64(u)), T: simple.Node(int64(v))})
	}

	for source := m; source < n; source++ {
		targets := randomSubset(repeated, m, rng)

		target := targets[len(targets)-1]
		targets = targets[:len(targets)-1]
		link(source, target)
		repeated = append(repeated, target)

		for count := 1; count < m; count++ {
			if rng.Float64() < p {
				if nbr, ok := triadCandidate(g, source, target, rng); ok {
					link(source, nbr)
					repeated = append(repeated, nbr)
					continue
				}
			}
			target = targets[len(targets)-1]
			targets = targets[:len(targets)-1]
			link(source, target)
			repeated = append(repeated, target)
		}

		for i := 0; i < m; i++ {
			repeated = append(repeated, source)
		}
	}

	return freeze(g, n), nil
}

// randomSubset draws m distinct elements from seq by repeated uniform
// choice, in first-drawn order.
func randomSubset(seq []int, m int, rng *rand.Rand) []int {
	out := make([]int, 0, m)
	seen := make(map[int]struct{}, m)
	for len(out) < m {
		x := seq[rng.IntN(len(seq))]
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

// triadCandidate picks a neighbour of target that is not yet linked to source.
func triadCandidate(g *simple.UndirectedGraph, source, target int, rng *rand.Rand) (int, bool) {
	var candidates []int
	it := g.From(int64(target))
	for it.Next() {
		nbr := int(it.Node().ID())
		if nbr == source || g.HasEdgeBetween(int64(source), int64(nbr)) {
			continue
		}
		candidates = append(candidates, nbr)
	}
	if len(candidates) == 0 {
		return 0, false
	}
	// gonum iteration order is not stable; sort before choosing.
	slices.Sort(candidates)
	return candidates[rng.IntN(len(candidates))], true
}

// FromEdges builds a graph over n nodes from an explicit edge list.
// Self loops are rejected; duplicate edges are collapsed.
func FromEdges(n int, edges [][2]int) (*Graph, error) {
	if n < 0 {
		return nil, fmt.Errorf("network: negative node count %d", n)
	}
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range edges {
		u, v := e[0], e[1]
		if u < 0 || v < 0 || u >= n || v >= n {
			return nil, fmt.Errorf("network: edge (%d,%d) out of range [0,%d)", u, v, n)
		}
		if u == v {
			return nil, fmt.Errorf("network: self loop on node %d", u)
		}
		g.SetEdge(simple.Edge{F: simple.Node(int64(u)), T: simple.Node(int64(v))})
	}
	return freeze(g, n), nil
}

func freeze(g *simple.UndirectedGraph, n int) *Graph {
	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		it := g.From(int64(i))
		nbrs := make([]int, 0, it.Len())
		for it.Next() {
			nbrs = append(nbrs, int(it.Node().ID()))
		}
		slices.Sort(nbrs)
		adj[i] = nbrs
	}
	return &Graph{g: g, adj: adj}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.adj)
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, nbrs := range g.adj {
		total += len(nbrs)
	}
	return total / 2
}

// Neighbors returns the sorted neighbour ids of node id.
// The returned slice is shared and must not be modified.
func (g *Graph) Neighbors(id int) []int {
	if id < 0 || id >= len(g.adj) {
		return nil
	}
	return g.adj[id]
}

// Degree returns the number of neighbours of node id.
func (g *Graph) Degree(id int) int {
	return len(g.Neighbors(id))
}

// HasEdge reports whether u and v are adjacent.
func (g *Graph) HasEdge(u, v int) bool {
	_, found := slices.BinarySearch(g.Neighbors(u), v)
	return found
}

// Edges returns every edge once as (u, v) with u < v, sorted.
func (g *Graph) Edges() [][2]int {
	out := make([][2]int, 0, g.EdgeCount())
	for u, nbrs := range g.adj {
		for _, v := range nbrs {
			if u < v {
				out = append(out, [2]int{u, v})
			}
		}
	}
	return out
}

// Undirected exposes the underlying gonum graph for read-only analysis.
func (g *Graph) Undirected() *simple.UndirectedGraph {
	return g.g
}
