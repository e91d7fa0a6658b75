package graph

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/cmd/cmdutil"
	"github.com/LegacyCodeHQ/sequencer/cmd/graph/formatters"
	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/vcs/git"
)

type graphOptions struct {
	sources      cmdutil.SourceFlags
	outputFormat string
	generateURL  bool
	reduce       bool
	live         bool
	between      []string
}

// Cmd represents the graph command.
var Cmd = NewCommand()

// NewCommand returns a new graph command instance.
func NewCommand() *cobra.Command {
	opts := &graphOptions{}

	cmd := &cobra.Command{
		Use:   "graph [files or directories...]",
		Short: "Print the declaration dependency graph of a compilation",
		Long: `Compile the given files and print the graph of uses-relations between their
functions, globals and types.

Examples:
  sequencer graph .
  sequencer graph . --reduce --format mermaid --url
  sequencer graph main.go --entry main.go:main --live
  sequencer graph . --between a.go:f,b.go:g`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args, opts)
		},
	}

	opts.sources.Register(cmd)
	cmd.Flags().StringVarP(&opts.outputFormat, "format", "f", formatters.OutputFormatDOT.String(),
		fmt.Sprintf("Output format (%s)", formatters.SupportedFormats()))
	cmd.Flags().BoolVarP(&opts.generateURL, "url", "u", false, "Generate visualization URL (supported formats: dot, mermaid)")
	cmd.Flags().BoolVar(&opts.reduce, "reduce", false, "Remove relations implied by longer paths")
	cmd.Flags().BoolVar(&opts.live, "live", false, "Keep only declarations reachable from --entry")
	cmd.Flags().StringSliceVar(&opts.between, "between", nil, "Keep only declarations on paths between these file:name declarations (comma-separated)")

	return cmd
}

func runGraph(cmd *cobra.Command, args []string, opts *graphOptions) error {
	formatter, err := NewFormatter(opts.outputFormat)
	if err != nil {
		return err
	}
	if opts.live && len(opts.sources.Entries) == 0 {
		return fmt.Errorf("--live needs at least one --entry")
	}
	between, err := opts.sources.ResolveRoots(opts.between)
	if err != nil {
		return err
	}
	if len(between) == 1 {
		return fmt.Errorf("at least 2 declarations required for --between, got 1")
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

	var formatOpts formatters.FormatOptions
	if opts.reduce {
		removed := g.TransitiveReduction()
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed %d implied relation(s)\n", removed)
	}
	if opts.live {
		roots, err := cmdutil.LookupDecls(g, compilation.Roots)
		if err != nil {
			return err
		}
		formatOpts.Subset = g.LiveSubset(roots)
		formatOpts.Highlight = roots
	}
	if len(between) > 0 {
		targets, err := cmdutil.LookupDecls(g, between)
		if err != nil {
			return err
		}
		formatOpts.Subset = intersect(formatOpts.Subset, g.FindPathNodes(targets))
		formatOpts.Highlight = targets
	}

	format, _ := formatters.ParseOutputFormat(opts.outputFormat)
	if format != formatters.OutputFormatJSON {
		formatOpts.Label = graphLabel(opts.sources.Repo, opts.sources.Commit, g, formatOpts.Subset)
	}

	output, err := formatter.Format(g, formatOpts)
	if err != nil {
		return fmt.Errorf("failed to format graph: %w", err)
	}

	if opts.generateURL {
		if urlStr, ok := formatter.GenerateURL(output); ok {
			output = urlStr
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: URL generation is not supported for %s format\n\n", format)
		}
	}
	return cmdutil.Emit(cmd, output)
}

// intersect keeps the nodes of b that are also in a. A nil a keeps all of b.
func intersect(a, b []depgraph.NodeID) []depgraph.NodeID {
	if a == nil {
		return b
	}
	in := make(map[depgraph.NodeID]bool, len(a))
	for _, id := range a {
		in[id] = true
	}
	out := make([]depgraph.NodeID, 0, len(b))
	for _, id := range b {
		if in[id] {
			out = append(out, id)
		}
	}
	return out
}

// graphLabel describes the graph as "project • commit • N nodes". Parts that cannot be
// read from git are left out.
func graphLabel(repoPath, commitID string, g *depgraph.DependencyGraph, subset []depgraph.NodeID) string {
	if repoPath == "" {
		repoPath = "."
	}

	var label string
	if root, err := git.RepositoryRoot(repoPath); err == nil {
		label = filepath.Base(root) + " • "
		rev := commitID
		if rev == "" {
			rev = "HEAD"
		}
		if hash, err := git.ShortCommitHash(repoPath, rev); err == nil {
			label += hash + " • "
		}
	}

	count := g.Len()
	if subset != nil {
		count = len(subset)
	}
	if count == 1 {
		return label + "1 node"
	}
	return label + fmt.Sprintf("%d nodes", count)
}
