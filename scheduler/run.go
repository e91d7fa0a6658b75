package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/LegacyCodeHQ/sequencer/internal/ctxlog"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
)

// DefaultIdleSweepInterval is how long Run waits for external input between idle sweeps.
const DefaultIdleSweepInterval = 5 * time.Millisecond

// Executor runs one phase of one unit. Implementations are called from worker goroutines and
// must not touch scheduler state.
type Executor interface {
	Execute(ctx context.Context, task Task) unit.Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task Task) unit.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, task Task) unit.Outcome { return f(ctx, task) }

// Run dispatches units to Options.Workers workers until every program is finished or ctx is
// cancelled. It returns the errors of aborted programs joined together.
func (s *Scheduler) Run(ctx context.Context, exec Executor) error {
	s.runID = uuid.NewString()
	logger := s.logger.With("run", s.runID)
	s.logger = logger
	ctx = ctxlog.WithLogger(ctx, logger)

	interval := s.opts.IdleSweepInterval
	if interval <= 0 {
		interval = DefaultIdleSweepInterval
	}

	runCtx, cancel := context.WithCancel(ctx)
	tasks := make(chan Task)
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < s.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			return s.work(gctx, worker, exec, tasks)
		})
	}
	logger.Info("run started", "workers", s.opts.Workers, "programs", len(s.programs)-1)

	loopErr := s.loop(ctx, tasks, interval)

	cancel()
	close(tasks)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		loopErr = errors.Join(loopErr, err)
	}

	if loopErr != nil {
		logger.Warn("run stopped", "error", loopErr)
		return loopErr
	}
	logger.Info("run finished", "units", len(s.units)-1, "stalled", len(s.stalled))
	return s.Err()
}

func (s *Scheduler) loop(ctx context.Context, tasks chan<- Task, interval time.Duration) error {
	var pending []Task
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		for _, r := range s.outcomes.Drain() {
			s.applyResult(r)
		}
		s.Sweep()
		pending = append(pending, s.DrainReadyUnitsForDispatch()...)
		pending = s.dropStale(pending)

		if len(pending) == 0 && s.Finished() {
			return nil
		}

		if len(pending) > 0 {
			select {
			case tasks <- pending[0]:
				pending = pending[1:]
			case r := <-s.outcomes.Ready():
				s.applyResult(r)
			case id := <-s.resolutions.Ready():
				s.post(id)
			case m := <-s.inbound.Ready():
				s.handle(m)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if s.running == 0 {
			resetTimer(timer, interval)
			select {
			case r := <-s.outcomes.Ready():
				s.applyResult(r)
			case id := <-s.resolutions.Ready():
				s.post(id)
			case m := <-s.inbound.Ready():
				s.handle(m)
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		select {
		case r := <-s.outcomes.Ready():
			s.applyResult(r)
		case id := <-s.resolutions.Ready():
			s.post(id)
		case m := <-s.inbound.Ready():
			s.handle(m)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// dropStale removes tasks whose unit was cancelled before a worker picked it up.
func (s *Scheduler) dropStale(pending []Task) []Task {
	kept := pending[:0]
	for _, t := range pending {
		if s.units[t.Unit].State == unit.Running {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Scheduler) applyResult(r Result) {
	u := s.units[r.Unit]
	if u.State == unit.Cancelled || u.State == unit.Unresolved {
		s.logger.Debug("dropping late result", "unit", r.Unit, "status", r.Outcome.Status.String())
		s.unitEvent(EventDropped, u)
		return
	}
	if u.State != unit.Running {
		s.logger.Error("result for unit that is not running", "unit", r.Unit, "state", u.State.String())
		return
	}
	s.apply(u, r.Outcome)
}

func (s *Scheduler) work(ctx context.Context, worker int, exec Executor, tasks <-chan Task) error {
	logger := ctxlog.FromContext(ctx).With("worker", worker)
	for task := range tasks {
		outcome := s.execute(ctxlog.WithLogger(ctx, logger), exec, task)
		if err := s.outcomes.PushContext(ctx, Result{Unit: task.Unit, Outcome: outcome}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, exec Executor, task Task) (outcome unit.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = unit.Fail(fmt.Errorf("panic in %s of %s: %v", task.Phase, task.Target, r))
		}
	}()
	return exec.Execute(ctx, task)
}

// Err joins the errors of every aborted program.
func (s *Scheduler) Err() error {
	var errs []error
	for _, ps := range s.programs[1:] {
		if ps.State == program.Aborted && ps.Err != nil {
			errs = append(errs, fmt.Errorf("program %s: %w", ps.Name, ps.Err))
		}
	}
	return errors.Join(errs...)
}
