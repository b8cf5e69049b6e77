package community

import (
	"context"
	"math"
	"testing"

	"github.com/opensource-finance/harrier/internal/graph"
)

// twoTriangles builds two 3-cliques joined by a single bridge edge.
func twoTriangles() *graph.Graph {
	g := graph.New()
	g.AddEdge("a", "b", 1)
	g.AddEdge("b", "c", 1)
	g.AddEdge("a", "c", 1)
	g.AddEdge("d", "e", 1)
	g.AddEdge("e", "f", 1)
	g.AddEdge("d", "f", 1)
	g.AddEdge("c", "d", 1)
	return g
}

func TestDetect(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyGraph", func(t *testing.T) {
		d := NewDetector(10, 0.0001)
		result, err := d.Detect(ctx, graph.New())
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(result.Assignment) != 0 {
			t.Errorf("expected empty assignment, got %v", result.Assignment)
		}
		if result.Modularity != 0 {
			t.Errorf("expected modularity 0, got %f", result.Modularity)
		}
	})

	t.Run("ZeroEdgesYieldsSingletons", func(t *testing.T) {
		g := graph.New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")

		d := NewDetector(10, 0.0001)
		result, err := d.Detect(ctx, g)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		for _, id := range []string{"a", "b", "c"} {
			if result.Assignment[id] != id {
				t.Errorf("expected %s in its own community, got %s", id, result.Assignment[id])
			}
		}
		if result.Modularity != 0 {
			t.Errorf("expected modularity 0 with no edges, got %f", result.Modularity)
		}
	})

	t.Run("SingleEdgeMergesPair", func(t *testing.T) {
		g := graph.New()
		g.AddEdge("a", "b", 1)

		d := NewDetector(10, 0.0001)
		result, err := d.Detect(ctx, g)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if result.Assignment["a"] != result.Assignment["b"] {
			t.Errorf("expected a and b merged, got %v", result.Assignment)
		}
		// Community id is the smallest member.
		if result.Assignment["a"] != "a" {
			t.Errorf("expected community id a, got %s", result.Assignment["a"])
		}
		// A single all-covering community has modularity 0.
		if math.Abs(result.Modularity) > 1e-9 {
			t.Errorf("expected modularity 0, got %f", result.Modularity)
		}
	})

	t.Run("TwoCliquesSplit", func(t *testing.T) {
		d := NewDetector(10, 0.0001)
		result, err := d.Detect(ctx, twoTriangles())
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}

		left := result.Assignment["a"]
		right := result.Assignment["d"]
		if left == right {
			t.Fatalf("expected two communities, got one: %v", result.Assignment)
		}
		for _, id := range []string{"a", "b", "c"} {
			if result.Assignment[id] != left {
				t.Errorf("expected %s with the left clique, got %s", id, result.Assignment[id])
			}
		}
		for _, id := range []string{"d", "e", "f"} {
			if result.Assignment[id] != right {
				t.Errorf("expected %s with the right clique, got %s", id, result.Assignment[id])
			}
		}

		// Representatives are the smallest member ids.
		if left != "a" || right != "d" {
			t.Errorf("expected representatives a and d, got %s and %s", left, right)
		}

		// Q = 2*(3/7) - 2*(7/14)^2 for this partition.
		want := 6.0/7.0 - 0.5
		if math.Abs(result.Modularity-want) > 1e-9 {
			t.Errorf("expected modularity %f, got %f", want, result.Modularity)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		d := NewDetector(10, 0.0001)
		first, err := d.Detect(ctx, twoTriangles())
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		for i := 0; i < 5; i++ {
			again, err := d.Detect(ctx, twoTriangles())
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if len(again.Assignment) != len(first.Assignment) {
				t.Fatalf("assignment size changed between runs")
			}
			for node, community := range first.Assignment {
				if again.Assignment[node] != community {
					t.Errorf("run %d: node %s moved from %s to %s",
						i, node, community, again.Assignment[node])
				}
			}
			if again.Modularity != first.Modularity {
				t.Errorf("run %d: modularity changed from %f to %f",
					i, first.Modularity, again.Modularity)
			}
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		d := NewDetector(10, 0.0001)
		if _, err := d.Detect(canceled, twoTriangles()); err == nil {
			t.Error("expected error from canceled context")
		}
	})

	t.Run("EveryNodeAssigned", func(t *testing.T) {
		g := twoTriangles()
		g.AddNode("island")

		d := NewDetector(10, 0.0001)
		result, err := d.Detect(ctx, g)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(result.Assignment) != g.NodeCount() {
			t.Errorf("expected %d assignments, got %d", g.NodeCount(), len(result.Assignment))
		}
		if result.Assignment["island"] != "island" {
			t.Errorf("expected isolated node in its own community, got %s",
				result.Assignment["island"])
		}
	})
}
