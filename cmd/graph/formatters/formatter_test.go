package formatters

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

func testGraph() *depgraph.DependencyGraph {
	g := depgraph.New()
	main := g.FunctionNode(depgraph.Symbol{Scope: "a.go", Name: "main"})
	helper := depgraph.Symbol{Scope: "a.go", Name: "helper"}
	limit := depgraph.Symbol{Scope: "b.go", Name: "limit"}
	g.Fold(main, []depgraph.Use{depgraph.FunctionUse(helper), depgraph.GlobalUse(limit)})
	h, _ := g.Lookup(depgraph.KindFunction, helper)
	g.Fold(h, []depgraph.Use{depgraph.TypeUse(depgraph.Named("int"))})
	return g
}

func TestParseOutputFormat(t *testing.T) {
	f, ok := ParseOutputFormat("Mermaid")
	require.True(t, ok)
	assert.Equal(t, OutputFormatMermaid, f)

	_, ok = ParseOutputFormat("svg")
	assert.False(t, ok)
	assert.Equal(t, "dot, json, mermaid", SupportedFormats())
}

func TestSelectNodes_SubsetIsSortedAndDeduplicated(t *testing.T) {
	g := testGraph()

	nodes := SelectNodes(g, []depgraph.NodeID{4, 1, 4, 99})

	require.Len(t, nodes, 2)
	assert.Equal(t, depgraph.NodeID(1), nodes[0].ID)
	assert.Equal(t, "a.go:main", NodeName(nodes[0]))
	assert.Equal(t, "int", NodeName(nodes[1]))
}

func TestJSONFormatter_Format(t *testing.T) {
	output, err := (&JSONFormatter{}).Format(testGraph(), FormatOptions{Label: "demo"})
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithNameSuffix(".gold.txt"))
	g.Assert(t, t.Name(), []byte(output))
}

func TestJSONFormatter_SubsetDropsOutsideRelations(t *testing.T) {
	output, err := (&JSONFormatter{}).Format(testGraph(), FormatOptions{Subset: []depgraph.NodeID{1, 2}, Highlight: []depgraph.NodeID{2}})
	require.NoError(t, err)

	assert.Contains(t, output, `"uses-function"`)
	assert.NotContains(t, output, `"uses-global"`)
	assert.NotContains(t, output, `"int"`)
	assert.Contains(t, output, `"highlighted": true`)
}

func TestJSONFormatter_NoURL(t *testing.T) {
	_, ok := (&JSONFormatter{}).GenerateURL("{}")
	assert.False(t, ok)
}
