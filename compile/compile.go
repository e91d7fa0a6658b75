// Package compile wires configuration, sources, the scheduler and the front end into one run.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LegacyCodeHQ/sequencer/config"
	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/frontend"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/report"
	"github.com/LegacyCodeHQ/sequencer/scheduler"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/vcs"
	"github.com/LegacyCodeHQ/sequencer/vcs/git"
)

const sourceExtension = ".go"

// Options describes one compilation.
type Options struct {
	Files []string
	// Reader overrides how sources are read. When nil, files come from Commit in Repo, or from
	// the working tree when Commit is empty.
	Reader vcs.ContentReader
	Repo   string
	Commit string
	// Roots are the declarations to type check and, with emit, generate code from. Without
	// roots every declaration is type checked.
	Roots []program.Root
	// Metaprograms are entry points run during compilation. Files they add join the main program.
	Metaprograms []program.Root
	Config       config.Config
	Logger       *slog.Logger
	Notifier     scheduler.Notifier
}

// Result is a finished compilation.
type Result struct {
	Scheduler    *scheduler.Scheduler
	Frontend     *frontend.Frontend
	Main         *program.Program
	Metaprograms []*program.Program
	// Err is the error Run returned: aborted programs or cancellation.
	Err error
}

// Summary builds the run report.
func (r *Result) Summary() report.Summary {
	return report.Build(r.Scheduler, r.Err)
}

// Graph returns the dependency graph of the main program.
func (r *Result) Graph() (*depgraph.DependencyGraph, error) {
	return r.Scheduler.Graph(r.Main.ID)
}

// Run compiles opts.Files. Setup problems are returned as the error; compilation failures are
// reported in Result.Err.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Files) == 0 && len(opts.Roots) == 0 {
		return nil, fmt.Errorf("no source files to compile")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	reader := opts.Reader
	if reader == nil {
		var err error
		if reader, err = contentReader(opts.Repo, opts.Commit); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = cfg.NewLogger(os.Stderr)
	}

	s := scheduler.New(scheduler.Options{
		Workers:        cfg.Workers,
		StallSweeps:    cfg.StallSweeps,
		QueueCapacity:  cfg.QueueCapacity,
		MessageTimeout: cfg.MessageTimeout,
		Temporizer: scheduler.RandomTemporizer(
			cfg.Temporize.BaseSweeps,
			cfg.Temporize.JitterSweeps,
			cfg.Temporize.MaxAttempts,
			rand.New(rand.NewSource(time.Now().UnixNano())),
		),
		Logger:   logger,
		Notifier: opts.Notifier,
	})

	var programOpts []scheduler.ProgramOption
	if cfg.Emit {
		programOpts = append(programOpts, scheduler.WithEmit())
	}
	if len(opts.Roots) > 0 {
		programOpts = append(programOpts, scheduler.WithRoots(opts.Roots...))
	}
	main := s.NewProgram("main", program.Executable, programOpts...)

	fe := frontend.New(frontend.Options{
		Reader:   reader,
		CheckAll: cfg.CheckAll || len(opts.Roots) == 0,
		Target:   main.ID,
		Send:     s.Send,
	})
	defer fe.Close()

	result := &Result{Scheduler: s, Frontend: fe, Main: main}

	for _, file := range opts.Files {
		if _, err := s.Request(main.ID, unit.FileTarget(filepath.ToSlash(file)), unit.Parse); err != nil {
			return nil, fmt.Errorf("failed to request %s: %w", file, err)
		}
	}
	for _, root := range opts.Roots {
		if _, err := s.Request(main.ID, unit.DeclTarget(filepath.ToSlash(root.File), root.Name), unit.TypeCheck); err != nil {
			return nil, fmt.Errorf("failed to request %s:%s: %w", root.File, root.Name, err)
		}
	}
	for _, entry := range opts.Metaprograms {
		meta := s.NewProgram("meta "+entry.Name, program.Metaprogram)
		if _, err := s.Request(meta.ID, unit.DeclTarget(filepath.ToSlash(entry.File), entry.Name), unit.RunMetaprogram); err != nil {
			return nil, fmt.Errorf("failed to request metaprogram %s:%s: %w", entry.File, entry.Name, err)
		}
		result.Metaprograms = append(result.Metaprograms, meta)
	}

	result.Err = s.Run(ctx, fe)
	return result, nil
}

func contentReader(repo, commit string) (vcs.ContentReader, error) {
	if commit == "" {
		return vcs.FilesystemContentReader(), nil
	}
	if repo == "" {
		repo = "."
	}
	reader, err := git.CommitContentReader(repo, commit)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", commit, err)
	}
	return reader, nil
}

// ParseRoot parses a file:name declaration reference.
func ParseRoot(s string) (program.Root, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return program.Root{}, fmt.Errorf("invalid declaration %q: expected file:name", s)
	}
	return program.Root{File: s[:i], Name: s[i+1:]}, nil
}

// ParseRoots parses every reference in refs.
func ParseRoots(refs []string) ([]program.Root, error) {
	roots := make([]program.Root, 0, len(refs))
	for _, ref := range refs {
		root, err := ParseRoot(ref)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	return roots, nil
}
