package mermaid

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/cmd/graph/formatters"
	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

// Formatter formats dependency graphs as Mermaid.js flowcharts.
type Formatter struct{}

// Format converts the dependency graph to Mermaid.js flowchart format.
func (f *Formatter) Format(g *depgraph.DependencyGraph, opts formatters.FormatOptions) (string, error) {
	nodes := formatters.SelectNodes(g, opts.Subset)
	keep := formatters.Keep(nodes)
	highlight := opts.HighlightSet()

	var sb strings.Builder

	// Add title if label provided
	if opts.Label != "" {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", opts.Label))
		sb.WriteString("---\n")
	}

	sb.WriteString("flowchart LR\n")

	// Mermaid node IDs can't have dots or colons, so nodes are named by graph ID.
	for _, n := range nodes {
		label := strings.ReplaceAll(formatters.NodeName(n), "\"", "#quot;")
		sb.WriteString(fmt.Sprintf("    n%d%s\n", n.ID, shape(n.Kind, label)))
	}

	var edges strings.Builder
	for _, n := range nodes {
		for _, rel := range formatters.SortedRelations(n) {
			if keep[rel.To] {
				edges.WriteString(fmt.Sprintf("    n%d -->|%s| n%d\n", rel.From, rel.Kind, rel.To))
			}
		}
	}
	if edges.Len() > 0 {
		sb.WriteString("\n")
		sb.WriteString(edges.String())
	}

	var highlighted []string
	for _, n := range nodes {
		if highlight[n.ID] {
			highlighted = append(highlighted, fmt.Sprintf("n%d", n.ID))
		}
	}
	if len(highlighted) > 0 {
		sb.WriteString("\n")
		sb.WriteString("    classDef highlighted fill:#90EE90,stroke:#228B22,color:#000000\n")
		sb.WriteString(fmt.Sprintf("    class %s highlighted\n", strings.Join(highlighted, ",")))
	}

	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func shape(k depgraph.NodeKind, label string) string {
	switch k {
	case depgraph.KindType:
		return fmt.Sprintf("([\"%s\"])", label)
	case depgraph.KindGlobal:
		return fmt.Sprintf("{\"%s\"}", label)
	default:
		return fmt.Sprintf("[\"%s\"]", label)
	}
}

// GenerateURL creates a mermaid.live URL with the diagram embedded.
func (f *Formatter) GenerateURL(output string) (string, bool) {
	payload := map[string]interface{}{
		"code": output,
		"mermaid": map[string]interface{}{
			"theme": "default",
		},
		"autoSync":      true,
		"updateDiagram": true,
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		// Fallback: just return the code URL-encoded
		return fmt.Sprintf("https://mermaid.live/edit#%s", url.PathEscape(output)), true
	}

	encoded := base64.URLEncoding.EncodeToString(jsonBytes)
	return fmt.Sprintf("https://mermaid.live/edit#base64:%s", encoded), true
}
