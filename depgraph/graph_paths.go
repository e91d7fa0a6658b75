package depgraph

// FindPathNodes returns all nodes on any path between the specified targets, in ID order.
// Treats the graph bidirectionally (paths from A to B OR from B to A).
// A node X is included if it lies on any directed path between any pair of targets.
// Targets that were never issued by this graph are skipped.
func (g *DependencyGraph) FindPathNodes(targets []NodeID) []NodeID {
	var validTargets []NodeID
	for _, id := range targets {
		if g.Has(id) {
			validTargets = append(validTargets, id)
		}
	}

	nodesToKeep := make(map[NodeID]bool)
	for _, id := range validTargets {
		nodesToKeep[id] = true
	}

	if len(validTargets) >= 2 {
		forward, reverse := g.buildAdjacencyLists()

		for i := 0; i < len(validTargets); i++ {
			for j := i + 1; j < len(validTargets); j++ {
				for node := range findDirectedPathNodes(forward, reverse, validTargets[i], validTargets[j]) {
					nodesToKeep[node] = true
				}
				for node := range findDirectedPathNodes(forward, reverse, validTargets[j], validTargets[i]) {
					nodesToKeep[node] = true
				}
			}
		}
	}

	result := make([]NodeID, 0, len(nodesToKeep))
	for id := NodeID(1); int(id) < len(g.nodes); id++ {
		if nodesToKeep[id] {
			result = append(result, id)
		}
	}
	return result
}

// buildAdjacencyLists creates forward and reverse adjacency lists indexed by NodeID.
// Forward: A→B means forward[A] contains B
// Reverse: A→B means reverse[B] contains A
func (g *DependencyGraph) buildAdjacencyLists() (forward, reverse [][]NodeID) {
	forward = make([][]NodeID, len(g.nodes))
	reverse = make([][]NodeID, len(g.nodes))

	for _, n := range g.nodes[1:] {
		for _, rel := range n.Relations {
			forward[rel.From] = append(forward[rel.From], rel.To)
			reverse[rel.To] = append(reverse[rel.To], rel.From)
		}
	}

	return forward, reverse
}

// findDirectedPathNodes finds all nodes on any directed path from source to target.
// A node X is on a path from source to target if:
// 1. X is reachable from source (following forward edges)
// 2. Target is reachable from X (following forward edges)
func findDirectedPathNodes(forward, reverse [][]NodeID, source, target NodeID) map[NodeID]bool {
	result := make(map[NodeID]bool)

	reachableFromSource := bfsReachable(forward, source)
	canReachTarget := bfsReachable(reverse, target)

	for node := range reachableFromSource {
		if canReachTarget[node] {
			result[node] = true
		}
	}

	return result
}

// bfsReachable returns all nodes reachable from source.
func bfsReachable(adjacency [][]NodeID, source NodeID) map[NodeID]bool {
	reachable := make(map[NodeID]bool)
	reachable[source] = true

	queue := []NodeID{source}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, neighbor := range adjacency[current] {
			if !reachable[neighbor] {
				reachable[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}

	return reachable
}
