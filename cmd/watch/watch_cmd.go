package watch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/cmd/cmdutil"
)

type watchOptions struct {
	sources cmdutil.SourceFlags
	port    int
}

// Cmd represents the watch command.
var Cmd = NewCommand()

// NewCommand returns a new watch command instance.
func NewCommand() *cobra.Command {
	opts := &watchOptions{
		port: 4900,
	}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompile on file changes and serve a live view of the run",
		Long: `Watch a project directory for source changes, recompile it, and serve a
live-updating view of the dependency graph, the run summary and the scheduler
events at localhost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	opts.sources.Register(cmd)
	cmd.Flags().IntVarP(&opts.port, "port", "P", opts.port, "HTTP server port")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	if opts.sources.Commit != "" {
		return fmt.Errorf("--commit cannot be used with watch")
	}

	repoPath := opts.sources.Repo
	if repoPath == "" {
		repoPath = "."
	}
	absRepoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return fmt.Errorf("failed to resolve repo path: %w", err)
	}
	repoPath = absRepoPath

	compilation, err := opts.sources.Prepare(cmd, []string{repoPath}, nil)
	if err != nil {
		return err
	}

	b := newBroker()
	srv := newServer(b, opts.port)
	bl := newBuilder(repoPath, compilation.Options, b)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", opts.port, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			bl.logger.Error("server stopped", "error", err)
		}
	}()

	if _, err := bl.build(ctx); errors.Is(err, errNoSources) {
		b.publish(message{Event: sseEventGraph, Data: emptyDOTGraph})
		fmt.Fprintf(cmd.OutOrStdout(), "No source files yet, waiting for file changes...\n")
	} else if err != nil {
		srv.Close()
		return fmt.Errorf("initial build failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", repoPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving at http://localhost:%d\n", opts.port)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl+C to stop\n")

	err = watchAndRebuild(ctx, repoPath, bl)

	srv.Close()
	return err
}
