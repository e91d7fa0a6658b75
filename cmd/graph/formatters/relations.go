package formatters

import (
	"sort"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

// SortedRelations returns the outgoing relations of n ordered by destination.
func SortedRelations(n depgraph.Node) []depgraph.Relation {
	rels := append([]depgraph.Relation(nil), n.Relations...)
	sort.Slice(rels, func(i, j int) bool { return rels[i].To < rels[j].To })
	return rels
}
