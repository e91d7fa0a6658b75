package cmdutil

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LegacyCodeHQ/sequencer/compile"
	"github.com/LegacyCodeHQ/sequencer/config"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/scheduler"
)

// SourceFlags are the flags that select what to compile.
type SourceFlags struct {
	Repo         string
	Commit       string
	Entries      []string
	Metaprograms []string
	Workers      int
}

// Register adds the source flags to cmd.
func (f *SourceFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Repo, "repo", "r", "", "Git repository path (default: current directory)")
	cmd.Flags().StringVarP(&f.Commit, "commit", "c", "", "Compile the files as they were at this commit")
	cmd.Flags().StringSliceVarP(&f.Entries, "entry", "e", nil, "Declarations to compile from, as file:name (comma-separated)")
	cmd.Flags().StringSliceVar(&f.Metaprograms, "meta", nil, "Metaprogram entry points to run during compilation, as file:name (comma-separated)")
	cmd.Flags().IntVarP(&f.Workers, "workers", "w", 0, "Number of workers (default from config)")
}

// ResolveRoots parses file:name references and resolves their files against --repo.
func (f *SourceFlags) ResolveRoots(refs []string) ([]program.Root, error) {
	roots, err := compile.ParseRoots(refs)
	if err != nil {
		return nil, err
	}
	return RootArgs(f.Repo, f.Commit, roots)
}

// Compilation is a prepared run.
type Compilation struct {
	Options compile.Options
	Roots   []program.Root
}

// Prepare loads the config, lets adjust change it and resolves the sources named by args.
func (f *SourceFlags) Prepare(cmd *cobra.Command, args []string, adjust func(*config.Config)) (*Compilation, error) {
	cfg, err := LoadConfig(cmd, f.Repo)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = f.Workers
	}
	if adjust != nil {
		adjust(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	args, err = SourceArgs(f.Repo, f.Commit, args)
	if err != nil {
		return nil, err
	}
	files, err := compile.Sources(args, f.Repo, f.Commit)
	if err != nil {
		return nil, err
	}
	roots, err := f.ResolveRoots(f.Entries)
	if err != nil {
		return nil, err
	}
	metas, err := f.ResolveRoots(f.Metaprograms)
	if err != nil {
		return nil, err
	}

	return &Compilation{
		Options: compile.Options{
			Files:        files,
			Repo:         f.Repo,
			Commit:       f.Commit,
			Roots:        roots,
			Metaprograms: metas,
			Config:       cfg,
			Logger:       Logger(cmd, cfg),
		},
		Roots: roots,
	}, nil
}

// Run compiles until done or interrupted.
func (c *Compilation) Run(cmd *cobra.Command, notifier scheduler.Notifier) (*compile.Result, error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := c.Options
	opts.Notifier = notifier
	return compile.Run(ctx, opts)
}
