// Package graph provides the in-process customer relationship graph:
// an adjacency snapshot used by the analytics, centrality computations,
// and a thread-safe store implementing domain.GraphStore.
package graph

import (
	"sort"
)

// Graph is an undirected weighted adjacency snapshot. It is the working
// representation for pruning, community detection and centrality; it is
// not safe for concurrent mutation.
type Graph struct {
	nodes map[string]struct{}
	adj   map[string]map[string]float64

	totalWeight float64 // sum of edge weights, each edge counted once
	edgeCount   int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		adj:   make(map[string]map[string]float64),
	}
}

// AddNode ensures a node exists, with or without edges.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		g.nodes[id] = struct{}{}
		g.adj[id] = make(map[string]float64)
	}
}

// AddEdge adds an undirected weighted edge, creating endpoints as needed.
// Adding the same pair again accumulates weight.
func (g *Graph) AddEdge(a, b string, weight float64) {
	if a == b {
		// Self-loops carry no structural information here.
		g.AddNode(a)
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	if _, ok := g.adj[a][b]; !ok {
		g.edgeCount++
	}
	g.adj[a][b] += weight
	g.adj[b][a] += weight
	g.totalWeight += weight
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct undirected edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// TotalWeight returns the sum of edge weights (each edge once).
func (g *Graph) TotalWeight() float64 { return g.totalWeight }

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Degree returns the number of neighbors of a node.
func (g *Graph) Degree(id string) int { return len(g.adj[id]) }

// WeightedDegree returns the sum of incident edge weights of a node.
func (g *Graph) WeightedDegree(id string) float64 {
	var sum float64
	for _, w := range g.adj[id] {
		sum += w
	}
	return sum
}

// Weight returns the weight of edge (a,b), or 0 if absent.
func (g *Graph) Weight(a, b string) float64 { return g.adj[a][b] }

// Neighbors returns the neighbor ids of a node in sorted order.
// Sorted iteration keeps the algorithms deterministic.
func (g *Graph) Neighbors(id string) []string {
	out := make([]string, 0, len(g.adj[id]))
	for n := range g.adj[id] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EdgePair is one undirected edge with its weight, Source < Target.
type EdgePair struct {
	Source string
	Target string
	Weight float64
}

// EdgePairs returns every edge exactly once, ordered by (Source, Target).
func (g *Graph) EdgePairs() []EdgePair {
	out := make([]EdgePair, 0, g.edgeCount)
	for _, a := range g.NodeIDs() {
		for _, b := range g.Neighbors(a) {
			if a < b {
				out = append(out, EdgePair{Source: a, Target: b, Weight: g.adj[a][b]})
			}
		}
	}
	return out
}
