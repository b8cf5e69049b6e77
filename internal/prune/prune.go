// Package prune filters a relationship graph down to its structurally
// significant edges before community detection.
package prune

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// CentralityFunc scores every edge of a graph, keyed by the sorted
// (source, target) pair. Production deployments can point this at an
// external graph-compute substrate; the default uses the in-process
// edge betweenness.
type CentralityFunc func(ctx context.Context, g *graph.Graph) (map[[2]string]float64, error)

// DefaultCentrality computes edge betweenness locally.
func DefaultCentrality(ctx context.Context, g *graph.Graph) (map[[2]string]float64, error) {
	return g.EdgeBetweenness(), nil
}

// Pruner retains only edges whose significance score strictly exceeds
// the threshold. Nodes are always retained, even when they lose every
// edge.
type Pruner struct {
	Threshold  float64
	Centrality CentralityFunc
}

// NewPruner creates a pruner with the given significance threshold.
func NewPruner(threshold float64) *Pruner {
	return &Pruner{
		Threshold:  threshold,
		Centrality: DefaultCentrality,
	}
}

// Prune returns a new graph containing all original nodes and only the
// edges scoring strictly above the threshold. An edge missing from the
// centrality result scores 0 and is pruned; a failed centrality pass is
// propagated as a computation error.
func (p *Pruner) Prune(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	scores, err := p.Centrality(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("%w: edge centrality: %v", domain.ErrComputation, err)
	}

	out := graph.New()
	for _, id := range g.NodeIDs() {
		out.AddNode(id)
	}

	kept := 0
	for _, e := range g.EdgePairs() {
		score := scores[[2]string{e.Source, e.Target}]
		if score > p.Threshold {
			out.AddEdge(e.Source, e.Target, e.Weight)
			kept++
		}
	}

	slog.Debug("graph pruned",
		"threshold", p.Threshold,
		"edges_in", g.EdgeCount(),
		"edges_kept", kept,
	)

	return out, nil
}
