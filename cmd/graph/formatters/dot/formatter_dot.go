package dot

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"

	graphlib "github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/LegacyCodeHQ/sequencer/cmd/graph/formatters"
	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

// Formatter formats dependency graphs as Graphviz DOT.
type Formatter struct{}

var fillColors = map[depgraph.NodeKind]string{
	depgraph.KindFunction: "white",
	depgraph.KindGlobal:   "lightyellow",
	depgraph.KindType:     "lightblue",
}

const highlightColor = "lightgreen"

// Format converts the dependency graph to Graphviz DOT format.
func (f *Formatter) Format(g *depgraph.DependencyGraph, opts formatters.FormatOptions) (string, error) {
	nodes := formatters.SelectNodes(g, opts.Subset)
	keep := formatters.Keep(nodes)
	highlight := opts.HighlightSet()

	out := graphlib.New(func(n depgraph.Node) depgraph.NodeID { return n.ID }, graphlib.Directed())
	for _, n := range nodes {
		color := fillColors[n.Kind]
		if highlight[n.ID] {
			color = highlightColor
		}
		err := out.AddVertex(n,
			graphlib.VertexAttribute("label", formatters.NodeName(n)),
			graphlib.VertexAttribute("shape", shape(n.Kind)),
			graphlib.VertexAttribute("style", "filled"),
			graphlib.VertexAttribute("fillcolor", color),
		)
		if err != nil && !errors.Is(err, graphlib.ErrVertexAlreadyExists) {
			return "", fmt.Errorf("add node %d: %w", n.ID, err)
		}
	}
	for _, n := range nodes {
		for _, rel := range formatters.SortedRelations(n) {
			if !keep[rel.To] {
				continue
			}
			err := out.AddEdge(rel.From, rel.To, graphlib.EdgeAttribute("label", rel.Kind.String()))
			if err != nil && !errors.Is(err, graphlib.ErrEdgeAlreadyExists) {
				return "", fmt.Errorf("add relation %d -> %d: %w", rel.From, rel.To, err)
			}
		}
	}

	var buf bytes.Buffer
	var err error
	if opts.Label != "" {
		err = draw.DOT(out, &buf,
			draw.GraphAttribute("rankdir", "LR"),
			draw.GraphAttribute("label", opts.Label),
			draw.GraphAttribute("labelloc", "t"),
		)
	} else {
		err = draw.DOT(out, &buf, draw.GraphAttribute("rankdir", "LR"))
	}
	if err != nil {
		return "", fmt.Errorf("failed to render dot: %w", err)
	}
	return buf.String(), nil
}

func shape(k depgraph.NodeKind) string {
	switch k {
	case depgraph.KindType:
		return "ellipse"
	case depgraph.KindGlobal:
		return "diamond"
	default:
		return "box"
	}
}

// GenerateURL creates a GraphvizOnline URL with the DOT graph embedded.
func (f *Formatter) GenerateURL(output string) (string, bool) {
	encoded := url.PathEscape(output)
	return fmt.Sprintf("https://dreampuf.github.io/GraphvizOnline/?engine=dot#%s", encoded), true
}
