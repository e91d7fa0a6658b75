package formatters

import (
	"sort"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

// OutputFormat represents an output format type
type OutputFormat string

const (
	OutputFormatDOT     OutputFormat = "dot"
	OutputFormatJSON    OutputFormat = "json"
	OutputFormatMermaid OutputFormat = "mermaid"
)

// String returns the string representation of the format
func (f OutputFormat) String() string {
	return string(f)
}

var supported = []OutputFormat{OutputFormatDOT, OutputFormatJSON, OutputFormatMermaid}

// ParseOutputFormat matches s against the supported formats.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	for _, f := range supported {
		if strings.EqualFold(s, f.String()) {
			return f, true
		}
	}
	return "", false
}

// SupportedFormats lists the supported formats for help and error messages.
func SupportedFormats() string {
	names := make([]string, len(supported))
	for i, f := range supported {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}

// FormatOptions contains optional parameters for formatting dependency graphs.
type FormatOptions struct {
	// Label is an optional title or label for the graph
	Label string
	// Subset restricts the output to these nodes and the relations between them. Nil keeps
	// every node.
	Subset []depgraph.NodeID
	// Highlight marks nodes to emphasise, such as the live set or a path.
	Highlight []depgraph.NodeID
}

// Formatter is the interface that all graph formatters must implement.
type Formatter interface {
	// Format converts a dependency graph to a formatted string representation.
	Format(g *depgraph.DependencyGraph, opts FormatOptions) (string, error)
	// GenerateURL returns a link that renders output, when the format has an online viewer.
	GenerateURL(output string) (string, bool)
}

// NodeName is the display name of a node: file:name for declarations and declared types, the
// structural spelling for other types.
func NodeName(n depgraph.Node) string {
	if n.Kind == depgraph.KindType && n.Symbol == (depgraph.Symbol{}) {
		return n.Name
	}
	return n.Symbol.Key()
}

// SelectNodes returns the nodes kept by subset in ID order.
func SelectNodes(g *depgraph.DependencyGraph, subset []depgraph.NodeID) []depgraph.Node {
	if subset == nil {
		return g.Nodes()
	}
	ids := make([]depgraph.NodeID, 0, len(subset))
	seen := make(map[depgraph.NodeID]bool, len(subset))
	for _, id := range subset {
		if g.Has(id) && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	nodes := make([]depgraph.Node, len(ids))
	for i, id := range ids {
		nodes[i] = g.Node(id)
	}
	return nodes
}

// Keep returns membership for the selected nodes.
func Keep(nodes []depgraph.Node) map[depgraph.NodeID]bool {
	keep := make(map[depgraph.NodeID]bool, len(nodes))
	for _, n := range nodes {
		keep[n.ID] = true
	}
	return keep
}

// HighlightSet turns opts.Highlight into a lookup.
func (o FormatOptions) HighlightSet() map[depgraph.NodeID]bool {
	set := make(map[depgraph.NodeID]bool, len(o.Highlight))
	for _, id := range o.Highlight {
		set[id] = true
	}
	return set
}
