package depgraph

import (
	"errors"
	"fmt"
	"sort"

	graphlib "github.com/dominikbraun/graph"
)

// Export returns a directed graphlib view of the graph keyed by NodeID. Vertices carry a
// "label" attribute and edges a "label" attribute naming the relation kind.
func (g *DependencyGraph) Export() (graphlib.Graph[NodeID, Node], error) {
	return g.ExportSubset(nil)
}

// ExportSubset is like Export but keeps only the given nodes and the relations between
// them. A nil subset keeps every node.
func (g *DependencyGraph) ExportSubset(subset []NodeID) (graphlib.Graph[NodeID, Node], error) {
	out := graphlib.New(func(n Node) NodeID { return n.ID }, graphlib.Directed())

	keep := make(map[NodeID]bool)
	if subset == nil {
		for id := NodeID(1); int(id) < len(g.nodes); id++ {
			keep[id] = true
		}
	} else {
		for _, id := range subset {
			if g.Has(id) {
				keep[id] = true
			}
		}
	}

	ids := make([]NodeID, 0, len(keep))
	for id := range keep {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := g.nodes[id]
		if err := out.AddVertex(n,
			graphlib.VertexAttribute("label", g.Label(id)),
			graphlib.VertexAttribute("shape", shapeFor(n.Kind)),
		); err != nil && !errors.Is(err, graphlib.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("add vertex %d: %w", id, err)
		}
	}

	for _, id := range ids {
		for _, rel := range g.nodes[id].Relations {
			if !keep[rel.To] {
				continue
			}
			if err := out.AddEdge(rel.From, rel.To,
				graphlib.EdgeAttribute("label", rel.Kind.String()),
			); err != nil && !errors.Is(err, graphlib.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("add edge %d -> %d: %w", rel.From, rel.To, err)
			}
		}
	}

	return out, nil
}

func shapeFor(k NodeKind) string {
	switch k {
	case KindType:
		return "ellipse"
	case KindGlobal:
		return "diamond"
	default:
		return "box"
	}
}

// ShortestPath returns the shortest uses-path from one node to another.
func (g *DependencyGraph) ShortestPath(from, to NodeID) ([]NodeID, error) {
	exported, err := g.Export()
	if err != nil {
		return nil, err
	}
	path, err := graphlib.ShortestPath(exported, from, to)
	if err != nil {
		return nil, fmt.Errorf("no path from %s to %s: %w", g.Label(from), g.Label(to), err)
	}
	return path, nil
}

// Cycles returns the strongly connected components that contain more than one node or
// a self-loop. Components and their members are sorted by NodeID.
func (g *DependencyGraph) Cycles() ([][]NodeID, error) {
	exported, err := g.Export()
	if err != nil {
		return nil, err
	}
	sccs, err := graphlib.StronglyConnectedComponents(exported)
	if err != nil {
		return nil, fmt.Errorf("strongly connected components: %w", err)
	}

	var cycles [][]NodeID
	for _, scc := range sccs {
		if len(scc) == 1 && !g.HasRelation(scc[0], scc[0]) {
			continue
		}
		sort.Slice(scc, func(i, j int) bool { return scc[i] < scc[j] })
		cycles = append(cycles, scc)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles, nil
}
