package depgraph

// BeginPass starts a new traversal. Nodes stamped in earlier passes count as unvisited,
// so no per-node state has to be cleared between traversals.
func (g *DependencyGraph) BeginPass() {
	g.generation++
	if g.generation == 0 {
		// wrapped: stale stamps could collide with the new generation
		for i := range g.nodes {
			g.nodes[i].stamp = 0
		}
		g.generation = 1
	}
}

// Visit marks id as visited in the current pass. It returns false when the node was
// already visited.
func (g *DependencyGraph) Visit(id NodeID) bool {
	n := &g.nodes[id]
	if n.stamp == g.generation {
		return false
	}
	n.stamp = g.generation
	return true
}

// Visited reports whether id was visited in the current pass.
func (g *DependencyGraph) Visited(id NodeID) bool {
	return g.nodes[id].stamp == g.generation
}

// Reachable returns every node reachable from roots, roots included, in discovery order.
func (g *DependencyGraph) Reachable(roots ...NodeID) []NodeID {
	g.BeginPass()
	var order []NodeID
	stack := make([]NodeID, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !g.Visit(id) {
			continue
		}
		order = append(order, id)
		rels := g.nodes[id].Relations
		for i := len(rels) - 1; i >= 0; i-- {
			if !g.Visited(rels[i].To) {
				stack = append(stack, rels[i].To)
			}
		}
	}
	return order
}

// LiveSubset returns the nodes reachable from roots in ID order.
func (g *DependencyGraph) LiveSubset(roots []NodeID) []NodeID {
	g.Reachable(roots...)
	var live []NodeID
	for id := NodeID(1); int(id) < len(g.nodes); id++ {
		if g.Visited(id) {
			live = append(live, id)
		}
	}
	return live
}

// reachableAvoiding reports whether to is reachable from from without using the direct
// edge from→to.
func (g *DependencyGraph) reachableAvoiding(from, to NodeID) bool {
	g.BeginPass()
	g.Visit(from)
	var stack []NodeID
	for _, rel := range g.nodes[from].Relations {
		if rel.To == to || rel.To == from {
			continue
		}
		stack = append(stack, rel.To)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if !g.Visit(id) {
			continue
		}
		for _, rel := range g.nodes[id].Relations {
			if rel.To == to {
				return true
			}
			if !g.Visited(rel.To) {
				stack = append(stack, rel.To)
			}
		}
	}
	return false
}

// TransitiveReduction removes every relation u→v for which v stays reachable from u
// through another path. Each relation is checked against the graph as already reduced,
// which keeps reachability intact on cyclic graphs. Self-loops are kept. It returns the
// number of removed relations.
func (g *DependencyGraph) TransitiveReduction() int {
	removed := 0
	for i := 1; i < len(g.nodes); i++ {
		from := NodeID(i)
		j := 0
		for j < len(g.nodes[from].Relations) {
			rel := g.nodes[from].Relations[j]
			if rel.To != from && g.reachableAvoiding(from, rel.To) {
				rels := g.nodes[from].Relations
				g.nodes[from].Relations = append(rels[:j:j], rels[j+1:]...)
				delete(g.edges, edgeKey{from: from, to: rel.To})
				removed++
				continue
			}
			j++
		}
	}
	return removed
}
