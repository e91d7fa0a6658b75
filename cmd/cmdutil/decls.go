package cmdutil

import (
	"fmt"
	"path/filepath"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/program"
)

// LookupDecl finds the function or global named by root.
func LookupDecl(g *depgraph.DependencyGraph, root program.Root) (depgraph.NodeID, error) {
	sym := depgraph.Symbol{Scope: filepath.ToSlash(root.File), Name: root.Name}
	if id, ok := g.Lookup(depgraph.KindFunction, sym); ok {
		return id, nil
	}
	if id, ok := g.Lookup(depgraph.KindGlobal, sym); ok {
		return id, nil
	}
	return depgraph.NoNode, fmt.Errorf("declaration not found in graph: %s", sym.Key())
}

// LookupDecls finds every root, reporting all the missing ones together.
func LookupDecls(g *depgraph.DependencyGraph, roots []program.Root) ([]depgraph.NodeID, error) {
	ids := make([]depgraph.NodeID, 0, len(roots))
	var missing []string
	for _, root := range roots {
		id, err := LookupDecl(g, root)
		if err != nil {
			missing = append(missing, root.File+":"+root.Name)
			continue
		}
		ids = append(ids, id)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("declarations not found in graph: %v", missing)
	}
	return ids, nil
}
