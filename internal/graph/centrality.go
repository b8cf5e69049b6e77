package graph

// Centrality computations over an adjacency snapshot. Shortest paths are
// unweighted (hop count); edge weights only matter to the community
// detector and the modularity computation.

// DegreeCentrality returns deg(v)/(n-1), or 0 for a graph with fewer
// than two nodes.
func (g *Graph) DegreeCentrality(id string) float64 {
	n := g.NodeCount()
	if n < 2 || !g.HasNode(id) {
		return 0
	}
	return float64(g.Degree(id)) / float64(n-1)
}

// ClosenessCentrality returns (r-1)/Σd over the r nodes reachable from
// id, scaled by (r-1)/(n-1) so scores on small components stay
// comparable across the graph (Wasserman-Faust).
func (g *Graph) ClosenessCentrality(id string) float64 {
	n := g.NodeCount()
	if n < 2 || !g.HasNode(id) {
		return 0
	}

	dist := g.bfsDistances(id)
	var sum float64
	reachable := 0
	for other, d := range dist {
		if other == id {
			continue
		}
		sum += float64(d)
		reachable++
	}
	if reachable == 0 || sum == 0 {
		return 0
	}
	r := float64(reachable)
	return (r / sum) * (r / float64(n-1))
}

// BetweennessCentrality returns normalized node betweenness for every
// node, computed with Brandes' accumulation over unweighted shortest
// paths. Scores are in [0,1].
func (g *Graph) BetweennessCentrality() map[string]float64 {
	nodeBC, _ := g.brandes(false)
	return nodeBC
}

// EdgeBetweenness returns normalized betweenness per undirected edge,
// keyed by edgeKey(a,b) with a < b. Scores are in [0,1]; an edge on
// every shortest path between all pairs scores 1.
func (g *Graph) EdgeBetweenness() map[[2]string]float64 {
	_, edgeBC := g.brandes(true)
	return edgeBC
}

// brandes runs Brandes' algorithm accumulating node and, optionally,
// edge dependencies.
func (g *Graph) brandes(withEdges bool) (map[string]float64, map[[2]string]float64) {
	nodeBC := make(map[string]float64, g.NodeCount())
	var edgeBC map[[2]string]float64
	if withEdges {
		edgeBC = make(map[[2]string]float64, g.EdgeCount())
	}
	for id := range g.nodes {
		nodeBC[id] = 0
	}

	ids := g.NodeIDs()
	for _, s := range ids {
		// Single-source shortest paths.
		stack := make([]string, 0, len(ids))
		preds := make(map[string][]string, len(ids))
		sigma := map[string]float64{s: 1}
		dist := map[string]int{s: 0}

		queue := []string{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.Neighbors(v) {
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		// Dependency accumulation in reverse BFS order.
		delta := make(map[string]float64, len(stack))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				c := sigma[v] / sigma[w] * (1 + delta[w])
				delta[v] += c
				if withEdges {
					edgeBC[edgeKeyPair(v, w)] += c
				}
			}
			if w != s {
				nodeBC[w] += delta[w]
			}
		}
	}

	n := float64(g.NodeCount())
	if n > 2 {
		// Each pair counted twice on an undirected graph.
		norm := 1.0 / ((n - 1) * (n - 2))
		for id := range nodeBC {
			nodeBC[id] *= norm
		}
	}
	if withEdges && n > 1 {
		norm := 1.0 / (n * (n - 1))
		for k := range edgeBC {
			edgeBC[k] *= norm
		}
	}
	return nodeBC, edgeBC
}

func edgeKeyPair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// bfsDistances returns hop distances from src to every reachable node.
func (g *Graph) bfsDistances(src string) map[string]int {
	dist := map[string]int{src: 0}
	queue := []string{src}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.Neighbors(v) {
			if _, seen := dist[w]; !seen {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
		}
	}
	return dist
}
