// Package community implements Louvain-style community detection over
// the relationship graph.
package community

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// maxSweepsPerPass bounds the local-moving sweeps within one pass.
const maxSweepsPerPass = 100

// Detector runs iterative modularity optimization. Identical input and
// configuration produce identical output: nodes are visited in sorted
// order, moves apply immediately within a sweep, and ties keep the
// current community.
type Detector struct {
	MaxIterations     int
	MinModularityGain float64
}

// NewDetector creates a detector with the given limits.
func NewDetector(maxIterations int, minModularityGain float64) *Detector {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Detector{
		MaxIterations:     maxIterations,
		MinModularityGain: minModularityGain,
	}
}

// Result is the outcome of one detection run. Community ids are the
// representative node id (smallest member) chosen during aggregation and
// are stable only within this run.
type Result struct {
	Assignment domain.CommunityAssignment
	Modularity float64
	Iterations int
}

// Detect partitions the graph into communities. A graph with zero edges
// yields each node in its own singleton community and modularity 0.
// Cancellation is checked at pass boundaries.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph) (*Result, error) {
	start := time.Now()

	assignment := make(domain.CommunityAssignment, g.NodeCount())
	for _, id := range g.NodeIDs() {
		assignment[id] = id
	}

	if g.EdgeCount() == 0 {
		return &Result{Assignment: assignment, Modularity: 0}, nil
	}

	working := g
	labels := singletonLabels(working)
	modularity := computeModularity(g, map[string]string(assignment))

	iterations := 0
	for iterations < d.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("community detection canceled: %w", err)
		}

		moved := d.localMoving(working, labels)
		next, nextLabels, candidate := aggregate(working, labels, assignment)

		// Modularity is always evaluated on the original graph under the
		// flattened candidate assignment; the collapsed graph drops
		// intra-community weight and would misstate Q. A pass that does
		// not improve Q on the original graph is discarded, which keeps
		// the collapse step from over-merging across bridge edges.
		newModularity := computeModularity(g, map[string]string(candidate))
		gain := newModularity - modularity
		iterations++

		if !moved || gain < d.MinModularityGain {
			if gain > 0 {
				assignment = candidate
				modularity = newModularity
			}
			break
		}

		working, labels = next, nextLabels
		assignment = candidate
		modularity = newModularity
	}

	slog.Debug("community detection finished",
		"iterations", iterations,
		"communities", countCommunities(assignment),
		"modularity", modularity,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Assignment: assignment,
		Modularity: modularity,
		Iterations: iterations,
	}, nil
}

// singletonLabels assigns every node of g to its own community.
func singletonLabels(g *graph.Graph) map[string]string {
	labels := make(map[string]string, g.NodeCount())
	for _, id := range g.NodeIDs() {
		labels[id] = id
	}
	return labels
}

// localMoving sweeps the nodes in sorted order, greedily relocating each
// into the neighboring community with the largest positive modularity
// delta. Moves apply immediately so later nodes in the sweep see them;
// sweeps repeat until a full sweep makes no move. Returns whether any
// node moved during the pass.
func (d *Detector) localMoving(g *graph.Graph, labels map[string]string) bool {
	twoM := 2 * g.TotalWeight()
	if twoM == 0 {
		return false
	}
	ids := g.NodeIDs()
	totals := communityTotals(g, labels)
	anyMoved := false

	for sweep := 0; sweep < maxSweepsPerPass; sweep++ {
		moved := false
		for _, node := range ids {
			target, ok := d.bestMove(g, labels, totals, node, twoM)
			if !ok {
				continue
			}
			ki := g.WeightedDegree(node)
			totals[labels[node]] -= ki
			totals[target] += ki
			labels[node] = target
			moved = true
		}
		if !moved {
			break
		}
		anyMoved = true
	}
	return anyMoved
}

// bestMove evaluates the modularity delta of moving node into each
// neighboring community against staying put. It returns the target and
// true only for a strictly positive improvement; ties keep the current
// community, and equal positive gains prefer the smallest community id.
func (d *Detector) bestMove(g *graph.Graph, labels map[string]string, totals map[string]float64, node string, twoM float64) (string, bool) {
	current := labels[node]
	ki := g.WeightedDegree(node)

	// Edge weight from node into each adjacent community.
	links := make(map[string]float64)
	for _, nb := range g.Neighbors(node) {
		links[labels[nb]] += g.Weight(node, nb)
	}

	// Gain of community c, with node's own contribution removed from its
	// current community total.
	gainOf := func(c string) float64 {
		tot := totals[c]
		if c == current {
			tot -= ki
		}
		return links[c] - tot*ki/twoM
	}

	stay := gainOf(current)
	best := current
	bestGain := stay
	for c := range links {
		if c == current {
			continue
		}
		gain := gainOf(c)
		if gain > bestGain || (gain == bestGain && best != current && c < best) {
			best = c
			bestGain = gain
		}
	}

	if best == current || bestGain <= stay {
		return "", false
	}
	return best, true
}

// communityTotals sums weighted degrees per community.
func communityTotals(g *graph.Graph, labels map[string]string) map[string]float64 {
	totals := make(map[string]float64)
	for _, id := range g.NodeIDs() {
		totals[labels[id]] += g.WeightedDegree(id)
	}
	return totals
}

// aggregate collapses each community into a super-node named after its
// smallest member and builds the next-level graph. Inter-community
// edges sum their weights; intra-community edges carry no weight into
// the collapsed graph. The input assignment is left untouched; the
// flattened candidate covering the original nodes is returned for the
// caller to commit or discard.
func aggregate(g *graph.Graph, labels map[string]string, assignment domain.CommunityAssignment) (*graph.Graph, map[string]string, domain.CommunityAssignment) {
	// Representative = smallest member id per community label.
	reps := make(map[string]string)
	for _, id := range g.NodeIDs() {
		c := labels[id]
		if rep, ok := reps[c]; !ok || id < rep {
			reps[c] = id
		}
	}

	// Re-point original nodes to the representative of their community.
	flat := make(domain.CommunityAssignment, len(assignment))
	for node, community := range assignment {
		if rep, ok := reps[labels[community]]; ok {
			flat[node] = rep
		} else {
			flat[node] = community
		}
	}

	next := graph.New()
	for _, rep := range reps {
		next.AddNode(rep)
	}
	for _, e := range g.EdgePairs() {
		a := reps[labels[e.Source]]
		b := reps[labels[e.Target]]
		if a != b {
			next.AddEdge(a, b, e.Weight)
		}
	}
	return next, singletonLabels(next), flat
}

// computeModularity evaluates Q = Σ_c [in_c/m − (tot_c/2m)²] over the
// given labeling, equivalent to the pairwise definition.
func computeModularity(g *graph.Graph, labels map[string]string) float64 {
	m := g.TotalWeight()
	if m == 0 {
		return 0
	}

	in := make(map[string]float64)
	tot := make(map[string]float64)
	for _, id := range g.NodeIDs() {
		tot[labels[id]] += g.WeightedDegree(id)
	}
	for _, e := range g.EdgePairs() {
		if labels[e.Source] == labels[e.Target] {
			in[labels[e.Source]] += e.Weight
		}
	}

	var q float64
	for c, t := range tot {
		q += in[c]/m - (t/(2*m))*(t/(2*m))
	}
	return q
}

func countCommunities(assignment domain.CommunityAssignment) int {
	seen := make(map[string]struct{}, len(assignment))
	for _, c := range assignment {
		seen[c] = struct{}{}
	}
	return len(seen)
}
