package formatters

import (
	"encoding/json"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

type jsonNode struct {
	ID          depgraph.NodeID `json:"id"`
	Kind        string          `json:"kind"`
	Name        string          `json:"name"`
	Highlighted bool            `json:"highlighted,omitempty"`
}

type jsonEdge struct {
	From depgraph.NodeID `json:"from"`
	To   depgraph.NodeID `json:"to"`
	Kind string          `json:"kind"`
}

type jsonGraph struct {
	Label string     `json:"label,omitempty"`
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

// JSONFormatter formats dependency graphs as JSON.
type JSONFormatter struct{}

// Format converts the dependency graph to JSON format. Nodes and edges are in ID order.
func (f *JSONFormatter) Format(g *depgraph.DependencyGraph, opts FormatOptions) (string, error) {
	nodes := SelectNodes(g, opts.Subset)
	keep := Keep(nodes)
	highlight := opts.HighlightSet()

	out := jsonGraph{Label: opts.Label, Nodes: []jsonNode{}, Edges: []jsonEdge{}}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, jsonNode{
			ID:          n.ID,
			Kind:        n.Kind.String(),
			Name:        NodeName(n),
			Highlighted: highlight[n.ID],
		})
	}
	for _, n := range nodes {
		for _, rel := range SortedRelations(n) {
			if keep[rel.To] {
				out.Edges = append(out.Edges, jsonEdge{From: rel.From, To: rel.To, Kind: rel.Kind.String()})
			}
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateURL returns false as JSON format does not support URL generation.
func (f *JSONFormatter) GenerateURL(output string) (string, bool) {
	return "", false
}
