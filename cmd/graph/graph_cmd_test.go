package graph

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonGraph struct {
	Nodes []struct {
		Name        string `json:"name"`
		Kind        string `json:"kind"`
		Highlighted bool   `json:"highlighted"`
	} `json:"nodes"`
	Edges []struct {
		Kind string `json:"kind"`
	} `json:"edges"`
}

func (g jsonGraph) names() []string {
	var names []string
	for _, n := range g.Nodes {
		names = append(names, n.Name)
	}
	return names
}

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.go":    "package main\n\nfunc leaf() {}\n\nfunc mid() {\n\tleaf()\n}\n\nfunc unused() {}\n",
		"main.go": "package main\n\nimport \"a.go\"\n\nfunc main() {\n\tmid()\n\tleaf()\n}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decode(t *testing.T, out string) jsonGraph {
	t.Helper()
	var g jsonGraph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	return g
}

func TestGraph_JSONListsDeclarations(t *testing.T) {
	dir := project(t)

	out, _, err := execute(t, dir, "--format", "json")
	require.NoError(t, err)

	g := decode(t, out)
	names := g.names()
	assert.Contains(t, names, filepath.Join(dir, "main.go")+":main")
	assert.Contains(t, names, filepath.Join(dir, "a.go")+":unused")
	assert.Contains(t, names, "() -> ()")
}

func TestGraph_ReduceRemovesImpliedRelations(t *testing.T) {
	dir := project(t)

	full, _, err := execute(t, dir, "--format", "json")
	require.NoError(t, err)
	reduced, stderr, err := execute(t, dir, "--format", "json", "--reduce")
	require.NoError(t, err)

	assert.Less(t, len(decode(t, reduced).Edges), len(decode(t, full).Edges))
	assert.Contains(t, stderr, "implied relation")
}

func TestGraph_LiveKeepsReachableDeclarations(t *testing.T) {
	dir := project(t)
	main := filepath.Join(dir, "main.go")

	out, _, err := execute(t, main, "--entry", main+":main", "--live", "--format", "json")
	require.NoError(t, err)

	g := decode(t, out)
	names := g.names()
	assert.Contains(t, names, filepath.Join(dir, "a.go")+":leaf")
	assert.NotContains(t, names, filepath.Join(dir, "a.go")+":unused")
	assert.True(t, g.Nodes[0].Highlighted)
}

func TestGraph_BetweenKeepsConnectingDeclarations(t *testing.T) {
	dir := project(t)
	main := filepath.Join(dir, "main.go")
	a := filepath.Join(dir, "a.go")

	out, _, err := execute(t, dir, "--between", main+":main,"+a+":leaf", "--format", "json")
	require.NoError(t, err)

	names := decode(t, out).names()
	assert.ElementsMatch(t, []string{main + ":main", a + ":mid", a + ":leaf"}, names)
}

func TestGraph_MermaidURL(t *testing.T) {
	dir := project(t)

	out, _, err := execute(t, dir, "--format", "mermaid", "--url")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "https://mermaid.live/edit#base64:"))
}

func TestGraph_Errors(t *testing.T) {
	dir := project(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown format", args: []string{dir, "--format", "svg"}, want: "unknown format: svg"},
		{name: "live without entry", args: []string{dir, "--live"}, want: "--live needs at least one --entry"},
		{name: "single between", args: []string{dir, "--between", "a.go:leaf"}, want: "at least 2 declarations"},
		{name: "missing between", args: []string{dir, "--between", "a.go:leaf,b.go:nope"}, want: "declarations not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
