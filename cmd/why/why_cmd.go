package why

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/cmd/cmdutil"
	"github.com/LegacyCodeHQ/sequencer/cmd/graph"
	"github.com/LegacyCodeHQ/sequencer/cmd/graph/formatters"
	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

const formatText = "text"

type whyOptions struct {
	sources      cmdutil.SourceFlags
	outputFormat string
}

// Cmd represents the why command.
var Cmd = NewCommand()

// NewCommand returns a new why command instance.
func NewCommand() *cobra.Command {
	opts := &whyOptions{
		outputFormat: formatText,
	}

	cmd := &cobra.Command{
		Use:   "why <from> <to> [files or directories...]",
		Short: "Show how one declaration comes to depend on another",
		Long: `Compile the given files and explain the uses-relations between two
declarations, given as file:name. The shortest path is printed in each
direction; dot and mermaid output draw every declaration on a path
between the two.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhy(cmd, opts, args[0], args[1], args[2:])
		},
	}

	opts.sources.Register(cmd)
	cmd.Flags().StringVarP(
		&opts.outputFormat,
		"format",
		"f",
		opts.outputFormat,
		fmt.Sprintf("Output format (%s)", supportedFormats()))

	return cmd
}

func supportedFormats() string {
	return formatText + ", " + formatters.OutputFormatDOT.String() + ", " + formatters.OutputFormatMermaid.String()
}

func runWhy(cmd *cobra.Command, opts *whyOptions, fromArg, toArg string, args []string) error {
	format := strings.ToLower(opts.outputFormat)
	var formatter formatters.Formatter
	switch format {
	case formatText:
	case formatters.OutputFormatDOT.String(), formatters.OutputFormatMermaid.String():
		var err error
		if formatter, err = graph.NewFormatter(format); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format: %s (valid options: %s)", opts.outputFormat, supportedFormats())
	}

	ends, err := opts.sources.ResolveRoots([]string{fromArg, toArg})
	if err != nil {
		return err
	}

	compilation, err := opts.sources.Prepare(cmd, args, nil)
	if err != nil {
		return err
	}
	result, err := compilation.Run(cmd, nil)
	if err != nil {
		return err
	}
	if result.Err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: compilation did not finish cleanly: %v\n\n", result.Err)
	}

	g, err := result.Graph()
	if err != nil {
		return err
	}
	ids, err := cmdutil.LookupDecls(g, ends)
	if err != nil {
		return err
	}
	from, to := ids[0], ids[1]

	if formatter != nil {
		output, err := formatter.Format(g, formatters.FormatOptions{
			Subset:    g.FindPathNodes(ids),
			Highlight: ids,
		})
		if err != nil {
			return fmt.Errorf("failed to format paths: %w", err)
		}
		return cmdutil.Emit(cmd, output)
	}

	base := opts.sources.Repo
	if base == "" {
		base = "."
	}
	return cmdutil.Emit(cmd, explain(g, base, from, to))
}

// explain describes the direct relations and the shortest path in each direction.
func explain(g *depgraph.DependencyGraph, base string, from, to depgraph.NodeID) string {
	name := func(id depgraph.NodeID) string { return displayName(base, g.Node(id)) }

	var lines []string
	for _, pair := range [][2]depgraph.NodeID{{from, to}, {to, from}} {
		a, b := pair[0], pair[1]
		path, err := g.ShortestPath(a, b)
		if err != nil || len(path) < 2 {
			lines = append(lines, fmt.Sprintf("%s does not depend on %s.", name(a), name(b)))
			continue
		}

		if len(path) == 2 {
			lines = append(lines, fmt.Sprintf("%s depends directly on %s:", name(a), name(b)))
		} else {
			lines = append(lines, fmt.Sprintf("%s depends on %s through %d declaration(s):", name(a), name(b), len(path)-2))
		}
		lines = append(lines, "  "+name(path[0]))
		for i := 1; i < len(path); i++ {
			lines = append(lines, fmt.Sprintf("    %s %s", relationKind(g, path[i-1], path[i]), name(path[i])))
		}
	}

	if onPath := g.FindPathNodes([]depgraph.NodeID{from, to}); len(onPath) > 2 {
		lines = append(lines, fmt.Sprintf("%d declarations lie on some path between them.", len(onPath)))
	}
	return strings.Join(lines, "\n")
}

func relationKind(g *depgraph.DependencyGraph, from, to depgraph.NodeID) string {
	for _, rel := range g.Relations(from) {
		if rel.To == to {
			return rel.Kind.String()
		}
	}
	return "uses"
}

// displayName shortens the declaring file of n relative to base when it lies inside it.
func displayName(base string, n depgraph.Node) string {
	if n.Kind == depgraph.KindType && n.Symbol == (depgraph.Symbol{}) {
		return n.Name
	}
	scope := n.Symbol.Scope
	if absBase, err := filepath.Abs(base); err == nil {
		if rel, err := filepath.Rel(absBase, scope); err == nil && !strings.HasPrefix(rel, "..") {
			scope = filepath.ToSlash(rel)
		}
	}
	return scope + ":" + n.Symbol.Name
}
