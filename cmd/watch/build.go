package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LegacyCodeHQ/sequencer/cmd/cmdutil"
	"github.com/LegacyCodeHQ/sequencer/cmd/graph/formatters"
	"github.com/LegacyCodeHQ/sequencer/cmd/graph/formatters/dot"
	"github.com/LegacyCodeHQ/sequencer/compile"
	"github.com/LegacyCodeHQ/sequencer/report"
	"github.com/LegacyCodeHQ/sequencer/scheduler"
)

const emptyDOTGraph = "digraph {}"

var errNoSources = errors.New("no source files")

// builder recompiles the watched directory and publishes the results. Builds never overlap.
type builder struct {
	mu       sync.Mutex
	repoPath string
	options  compile.Options
	broker   *broker
	logger   *slog.Logger
}

func newBuilder(repoPath string, options compile.Options, b *broker) *builder {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &builder{
		repoPath: repoPath,
		options:  options,
		broker:   b,
		logger:   logger,
	}
}

// build compiles the current working tree and publishes its graph and summary.
func (bl *builder) build(ctx context.Context) (report.Summary, error) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	files, err := compile.Sources([]string{bl.repoPath}, "", "")
	if err != nil {
		return report.Summary{}, err
	}
	if len(files) == 0 && len(bl.options.Roots) == 0 {
		return report.Summary{}, errNoSources
	}

	opts := bl.options
	opts.Files = files
	opts.Notifier = scheduler.NotifierFunc(bl.forward)

	result, err := compile.Run(ctx, opts)
	if err != nil {
		return report.Summary{}, err
	}
	summary := result.Summary()

	g, err := result.Graph()
	if err != nil {
		return summary, err
	}
	formatOpts := formatters.FormatOptions{Label: fmt.Sprintf("run %s", summary.RunID)}
	if ids, err := cmdutil.LookupDecls(g, opts.Roots); err == nil {
		formatOpts.Highlight = ids
	}
	dotOutput, err := (&dot.Formatter{}).Format(g, formatOpts)
	if err != nil {
		return summary, fmt.Errorf("failed to format graph: %w", err)
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, summary, report.FormatJSON); err != nil {
		return summary, err
	}

	bl.broker.publish(message{Event: sseEventSummary, Data: buf.String()})
	bl.broker.publish(message{Event: sseEventGraph, Data: dotOutput})
	return summary, nil
}

// publish rebuilds and logs the outcome.
func (bl *builder) publish(ctx context.Context) {
	summary, err := bl.build(ctx)
	switch {
	case errors.Is(err, errNoSources):
		bl.broker.reset()
		bl.broker.publish(message{Event: sseEventGraph, Data: emptyDOTGraph})
		bl.logger.Info("no source files yet, waiting for changes", "dir", bl.repoPath)
	case err != nil:
		bl.logger.Error("rebuild failed", "error", err)
	case !summary.Succeeded():
		bl.logger.Warn("compilation failed", "run_id", summary.RunID, "error", summary.Error)
	default:
		bl.logger.Info("compiled", "run_id", summary.RunID)
	}
}

// forward runs on the scheduler goroutine; publish does not block it.
func (bl *builder) forward(e scheduler.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	bl.broker.publish(message{Event: sseEventScheduler, Data: string(data)})
}
