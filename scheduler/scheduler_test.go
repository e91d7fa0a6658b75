package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// fixture is an in-memory front end: files declare functions, and type checking a function
// waits until every function it uses has been type checked.
type fixture struct {
	decls    map[string][]string
	uses     map[string][]string
	checkAll bool
}

func (f fixture) exec(task Task) unit.Outcome {
	switch task.Phase {
	case unit.PhaseParse:
		out := unit.Complete()
		for _, name := range f.decls[task.Target.File] {
			out.Declares = append(out.Declares, unit.Declaration{Name: name, Kind: depgraph.KindFunction})
			if f.checkAll {
				out.Requests = append(out.Requests, unit.Request{Target: unit.DeclTarget(task.Target.File, name), Purpose: unit.TypeCheck})
			}
		}
		return out
	case unit.PhaseTypeCheck:
		var out unit.Outcome
		file := task.Target.File
		for _, dep := range f.uses[task.Target.Name] {
			sym := depgraph.Symbol{Scope: file, Name: dep}
			cond := wait.OnDeclTyped(sym.Key())
			if wait.Contains(task.Cleared, cond) {
				out.Uses = append(out.Uses, depgraph.FunctionUse(sym))
				continue
			}
			out.Waits = append(out.Waits, cond)
			out.Requests = append(out.Requests, unit.Request{Target: unit.DeclTarget(file, dep), Purpose: unit.TypeCheck})
		}
		if len(out.Waits) > 0 {
			out.Status = unit.Blocked
			return out
		}
		out.Status = unit.Completed
		return out
	default:
		return unit.Complete()
	}
}

// step dispatches every ready unit and reports each outcome synchronously.
func step(t *testing.T, s *Scheduler, exec func(Task) unit.Outcome) []Task {
	t.Helper()
	tasks := s.DrainReadyUnitsForDispatch()
	for _, task := range tasks {
		require.NoError(t, s.NotifyUnitComplete(task.Unit, exec(task)))
	}
	return tasks
}

func runAll(t *testing.T, s *Scheduler, exec func(Task) unit.Outcome) []Task {
	t.Helper()
	var all []Task
	for i := 0; i < 100; i++ {
		tasks := step(t, s, exec)
		if len(tasks) == 0 {
			return all
		}
		all = append(all, tasks...)
	}
	t.Fatal("scheduler did not settle")
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) index(kind EventKind, target, phase string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.Kind == kind && e.Target == target && (phase == "" || e.Phase == phase) {
			return i
		}
	}
	return -1
}

func TestRequest_Idempotent(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)

	first, err := s.Request(p.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)
	second, err := s.Request(p.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	units := s.Units()
	require.Len(t, units, 2)
	assert.Equal(t, unit.FileTarget("a.go"), units[0].Target)
	assert.Equal(t, unit.Parse, units[0].Purpose)
	assert.Equal(t, unit.TypeCheck, units[1].Purpose)
}

func TestRequest_UnknownProgram(t *testing.T) {
	s := New(Options{})

	_, err := s.Request(7, unit.FileTarget("a.go"), unit.Parse)

	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestBlock_RequiresRunningUnit(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	u, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Parse)
	require.NoError(t, err)

	err = s.Block(u.ID, wait.OnMessage("m"))

	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestBarrier_HoldsTypeCheckUntilFilesFinish(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	tc, err := s.Request(p.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)
	assert.Equal(t, unit.Held, tc.State)

	exec := func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseParse && task.Target.File == "a.go" {
			out := unit.Complete()
			out.Declares = []unit.Declaration{{Name: "f", Kind: depgraph.KindFunction}}
			out.Requests = []unit.Request{{Target: unit.FileTarget("b.go"), Purpose: unit.Parse}}
			return out
		}
		return unit.Complete()
	}

	var typeCheckedWhileParsing bool
	filesDone := map[string]bool{}
	for i := 0; i < 20; i++ {
		tasks := s.DrainReadyUnitsForDispatch()
		if len(tasks) == 0 {
			break
		}
		for _, task := range tasks {
			if task.Phase == unit.PhaseTypeCheck && !(filesDone["a.go"] && filesDone["b.go"]) {
				typeCheckedWhileParsing = true
			}
			if task.Phase == unit.PhaseParse {
				filesDone[task.Target.File] = true
			}
			require.NoError(t, s.NotifyUnitComplete(task.Unit, exec(task)))
		}
	}

	assert.False(t, typeCheckedWhileParsing)
	got, err := s.Unit(tc.ID)
	require.NoError(t, err)
	assert.Equal(t, unit.Done, got.State)
}

func TestConjunction_PromotesOnlyWhenAllConditionsHold(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	g, err := s.Request(p.ID, unit.DeclTarget("a.go", "g"), unit.TypeCheck)
	require.NoError(t, err)

	m1, m2 := wait.OnMessage("m1"), wait.OnMessage("m2")
	exec := func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseTypeCheck && len(task.Cleared) < 2 {
			return unit.BlockOn(m1, m2)
		}
		return unit.Complete()
	}
	runAll(t, s, exec)

	got, _ := s.Unit(g.ID)
	require.Equal(t, unit.Waiting, got.State)
	assert.Equal(t, []wait.Condition{m1, m2}, got.Waits)

	s.PostMessage("m1")
	s.Sweep()
	got, _ = s.Unit(g.ID)
	assert.Equal(t, unit.Waiting, got.State)
	assert.Equal(t, []wait.Condition{m2}, got.Waits)

	s.PostMessage("m2")
	s.Sweep()
	got, _ = s.Unit(g.ID)
	assert.Equal(t, unit.Ready, got.State)

	tasks := s.DrainReadyUnitsForDispatch()
	require.Len(t, tasks, 1)
	assert.ElementsMatch(t, []wait.Condition{m1, m2}, tasks[0].Cleared)
}

func TestUses_StructuralTypesAreShared(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	sig := depgraph.FuncType(
		[]depgraph.TypeExpr{depgraph.Named("Int32"), depgraph.Named("Int32")},
		[]depgraph.TypeExpr{depgraph.Named("Bool")},
	)
	exec := func(task Task) unit.Outcome {
		switch task.Phase {
		case unit.PhaseParse:
			out := unit.Complete()
			for _, name := range []string{"less", "greater"} {
				out.Declares = append(out.Declares, unit.Declaration{Name: name, Kind: depgraph.KindFunction})
				out.Requests = append(out.Requests, unit.Request{Target: unit.DeclTarget("a.go", name), Purpose: unit.TypeCheck})
			}
			return out
		case unit.PhaseTypeCheck:
			out := unit.Complete()
			out.Uses = []depgraph.Use{depgraph.TypeUse(sig)}
			return out
		}
		return unit.Complete()
	}
	_, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Parse)
	require.NoError(t, err)

	runAll(t, s, exec)

	graph, err := s.Graph(p.ID)
	require.NoError(t, err)
	sigNode, ok := graph.LookupType(sig)
	require.True(t, ok)
	less, ok := graph.Lookup(depgraph.KindFunction, depgraph.Symbol{Scope: "a.go", Name: "less"})
	require.True(t, ok)
	greater, ok := graph.Lookup(depgraph.KindFunction, depgraph.Symbol{Scope: "a.go", Name: "greater"})
	require.True(t, ok)
	assert.True(t, graph.HasRelation(less, sigNode))
	assert.True(t, graph.HasRelation(greater, sigNode))

	types := 0
	for _, n := range graph.Nodes() {
		if n.Kind == depgraph.KindType {
			types++
		}
	}
	// Int32, Bool and the function type
	assert.Equal(t, 3, types)
}

func TestRecord_DeclaredTypesKeepTheirFile(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	exec := func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseParse {
			out := unit.Complete()
			out.Declares = []unit.Declaration{{Name: "Point", Kind: depgraph.KindType}}
			return out
		}
		return unit.Complete()
	}
	for _, file := range []string{"a.go", "b.go"} {
		_, err := s.Request(p.ID, unit.FileTarget(file), unit.Parse)
		require.NoError(t, err)
	}

	runAll(t, s, exec)

	graph, err := s.Graph(p.ID)
	require.NoError(t, err)
	a, ok := graph.Lookup(depgraph.KindType, depgraph.Symbol{Scope: "a.go", Name: "Point"})
	require.True(t, ok)
	b, ok := graph.Lookup(depgraph.KindType, depgraph.Symbol{Scope: "b.go", Name: "Point"})
	require.True(t, ok)
	assert.NotEqual(t, a, b)
}

func TestDependencyOrder_UsedFunctionCheckedFirst(t *testing.T) {
	rec := &recorder{}
	s := New(Options{Notifier: rec})
	p := s.NewProgram("main", program.Executable)
	fx := fixture{
		decls: map[string][]string{"a.go": {"f", "g"}},
		uses:  map[string][]string{"g": {"f"}},
	}
	_, err := s.Request(p.ID, unit.DeclTarget("a.go", "g"), unit.TypeCheck)
	require.NoError(t, err)

	runAll(t, s, fx.exec)

	fDone := rec.index(EventPhaseDone, "a.go:f", unit.PhaseTypeCheck.String())
	gPromoted := rec.index(EventPromoted, "a.go:g", "")
	require.NotEqual(t, -1, fDone)
	require.NotEqual(t, -1, gPromoted)
	assert.Less(t, fDone, gPromoted)

	graph, _ := s.Graph(p.ID)
	f, _ := graph.Lookup(depgraph.KindFunction, depgraph.Symbol{Scope: "a.go", Name: "f"})
	g, _ := graph.Lookup(depgraph.KindFunction, depgraph.Symbol{Scope: "a.go", Name: "g"})
	require.True(t, graph.HasRelation(g, f))
	assert.Equal(t, depgraph.UsesFunction, graph.Relations(g)[0].Kind)
	assert.Equal(t, program.Done, p.State)
}

func TestStall(t *testing.T) {
	tests := []struct {
		name       string
		uses       map[string][]string
		exec       func(fixture) func(Task) unit.Outcome
		deadlocked bool
		stalled    int
	}{
		{
			name:       "mutual use is a deadlock",
			uses:       map[string][]string{"f": {"g"}, "g": {"f"}},
			deadlocked: true,
			stalled:    2,
		},
		{
			name:       "self use is a deadlock",
			uses:       map[string][]string{"f": {"f"}},
			deadlocked: true,
			stalled:    1,
		},
		{
			name: "missing symbol is unresolved",
			exec: func(fx fixture) func(Task) unit.Outcome {
				return func(task Task) unit.Outcome {
					if task.Phase == unit.PhaseTypeCheck && task.Target.Name == "f" {
						return unit.BlockOn(wait.OnSymbol("missing"))
					}
					return fx.exec(task)
				}
			},
			deadlocked: false,
			stalled:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{StallSweeps: 3})
			p := s.NewProgram("main", program.Executable)
			fx := fixture{decls: map[string][]string{"a.go": {"f", "g"}}, uses: tt.uses}
			exec := fx.exec
			if tt.exec != nil {
				exec = tt.exec(fx)
			}
			_, err := s.Request(p.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
			require.NoError(t, err)

			runAll(t, s, exec)
			assert.False(t, s.Finished())

			stalledAt := -1
			for i := 1; i <= 3; i++ {
				if s.Sweep().Stalled {
					stalledAt = i
					break
				}
			}

			require.NotEqual(t, -1, stalledAt, "no stall within the configured sweeps")
			assert.True(t, s.Finished())
			assert.Equal(t, program.Aborted, p.State)
			assert.Len(t, s.Stalled(), tt.stalled)

			var stallErr *StallError
			require.ErrorAs(t, p.Err, &stallErr)
			assert.Equal(t, tt.deadlocked, errors.Is(p.Err, ErrDeadlock))
			assert.Equal(t, !tt.deadlocked, errors.Is(p.Err, ErrUnresolved))
			for _, su := range s.Stalled() {
				u, _ := s.Unit(su.Unit)
				assert.Equal(t, unit.Unresolved, u.State)
				assert.Equal(t, []wait.Condition{wait.Never()}, u.Waits)
			}
		})
	}
}

func TestStall_ReportsOriginalConditions(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	_, err := s.Request(p.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)
	runAll(t, s, func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseTypeCheck {
			return unit.BlockOn(wait.OnSymbol("missing"))
		}
		return unit.Complete()
	})

	for i := 0; i < 3; i++ {
		s.Sweep()
	}

	stalled := s.Stalled()
	require.Len(t, stalled, 1)
	assert.Equal(t, []wait.Condition{wait.OnSymbol("missing")}, stalled[0].Waits)
	assert.False(t, stalled[0].Deadlocked)
	assert.Contains(t, stalled[0].String(), "symbol(missing)")
}

func TestStall_MessageWaitsAreExemptUntilTimeout(t *testing.T) {
	s := New(Options{StallSweeps: 1, MessageTimeout: time.Minute})
	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }

	ready := wait.OnMessage("ready")
	fx := fixture{decls: map[string][]string{"a.go": {"f", "g"}}, uses: map[string][]string{"g": {"f"}}}
	exec := func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseTypeCheck && task.Target.Name == "f" && !wait.Contains(task.Cleared, ready) {
			return unit.BlockOn(ready)
		}
		return fx.exec(task)
	}
	waiting := s.NewProgram("waiting", program.Executable)
	_, err := s.Request(waiting.ID, unit.DeclTarget("a.go", "g"), unit.TypeCheck)
	require.NoError(t, err)
	stuck := s.NewProgram("stuck", program.Executable)
	_, err = s.Request(stuck.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)
	runAll(t, s, func(task Task) unit.Outcome {
		if task.Program == stuck.ID && task.Phase == unit.PhaseTypeCheck {
			return unit.BlockOn(wait.OnSymbol("missing"))
		}
		return exec(task)
	})

	for i := 0; i < 5; i++ {
		s.Sweep()
	}

	assert.Equal(t, program.Aborted, stuck.State)
	assert.ErrorIs(t, stuck.Err, ErrUnresolved)
	assert.False(t, waiting.State.Terminal())
	assert.False(t, s.Finished())

	clock = clock.Add(2 * time.Minute)
	stalled := false
	for i := 0; i < 3 && !stalled; i++ {
		stalled = s.Sweep().Stalled
	}

	require.True(t, stalled)
	assert.Equal(t, program.Aborted, waiting.State)
	assert.ErrorIs(t, waiting.Err, ErrUnresolved)
	assert.True(t, s.Finished())
	var reported []string
	for _, su := range s.Stalled() {
		if su.Program == waiting.ID {
			reported = append(reported, su.Target.String())
		}
	}
	assert.ElementsMatch(t, []string{"a.go:f", "a.go:g"}, reported)
}

func TestStall_PostedMessageResumesExemptUnits(t *testing.T) {
	s := New(Options{StallSweeps: 1})
	p := s.NewProgram("main", program.Executable)
	_, err := s.Request(p.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)
	ready := wait.OnMessage("ready")
	exec := func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseTypeCheck && !wait.Contains(task.Cleared, ready) {
			return unit.BlockOn(ready)
		}
		return unit.Complete()
	}
	runAll(t, s, exec)
	for i := 0; i < 10; i++ {
		assert.False(t, s.Sweep().Stalled)
	}

	s.PostMessage("ready")
	s.Sweep()
	runAll(t, s, exec)
	for i := 0; i < 5 && !s.Finished(); i++ {
		s.Sweep()
	}

	assert.Empty(t, s.Stalled())
	assert.True(t, s.Finished())
	assert.Equal(t, program.Done, p.State)
}

func TestAbort_PrunesProgramAndDropsLateResults(t *testing.T) {
	rec := &recorder{}
	s := New(Options{Notifier: rec})
	p1 := s.NewProgram("one", program.Executable)
	p2 := s.NewProgram("two", program.Executable)
	_, err := s.Request(p1.ID, unit.DeclTarget("a.go", "f"), unit.TypeCheck)
	require.NoError(t, err)
	_, err = s.Request(p2.ID, unit.FileTarget("b.go"), unit.Parse)
	require.NoError(t, err)

	tasks := s.DrainReadyUnitsForDispatch()
	require.Len(t, tasks, 2)

	cause := errors.New("stop")
	require.NoError(t, s.Abort(p1.ID, cause))

	for _, task := range tasks {
		require.NoError(t, s.NotifyUnitComplete(task.Unit, unit.Complete()))
	}
	runAll(t, s, func(Task) unit.Outcome { return unit.Complete() })

	assert.Equal(t, program.Aborted, p1.State)
	assert.ErrorIs(t, p1.Err, cause)
	assert.Equal(t, program.Done, p2.State)
	for _, u := range s.Units() {
		if u.Program == p1.ID {
			assert.Equal(t, unit.Cancelled, u.State, u.Target.String())
			assert.ErrorIs(t, u.Err, ErrProgramAborted)
			assert.ErrorIs(t, u.Err, cause)
		} else {
			assert.Equal(t, unit.Done, u.State)
		}
	}
	assert.NotEqual(t, -1, rec.index(EventDropped, "a.go", ""))

	_, err = s.Request(p1.ID, unit.FileTarget("c.go"), unit.Parse)
	assert.ErrorIs(t, err, ErrProgramAborted)
	_, err = s.Request(p2.ID, unit.FileTarget("c.go"), unit.Parse)
	assert.ErrorIs(t, err, ErrProgramClosed)
	assert.True(t, s.Finished())
}

func TestFatalOutcome_AbortsProgram(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable)
	_, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Parse)
	require.NoError(t, err)
	boom := errors.New("syntax error")

	runAll(t, s, func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseLex {
			return unit.Fail(boom)
		}
		return unit.Complete()
	})

	assert.Equal(t, program.Aborted, p.State)
	var phaseErr *PhaseError
	require.ErrorAs(t, p.Err, &phaseErr)
	assert.Equal(t, unit.PhaseLex, phaseErr.Phase)
	assert.ErrorIs(t, s.Err(), boom)
}

func TestTemporization(t *testing.T) {
	s := New(Options{Temporizer: FixedTemporizer(2, 3)})
	p := s.NewProgram("main", program.Executable)
	u, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Load)
	require.NoError(t, err)
	retry := func(Task) unit.Outcome { return unit.RetryLater() }

	state := func() unit.State {
		got, _ := s.Unit(u.ID)
		return got.State
	}

	for attempt := 1; attempt < 3; attempt++ {
		tasks := step(t, s, retry)
		require.Len(t, tasks, 1)
		assert.Equal(t, attempt-1, tasks[0].Attempt)
		assert.Equal(t, unit.Parked, state(), "attempt %d", attempt)

		s.Sweep()
		assert.Equal(t, unit.Parked, state(), "attempt %d", attempt)
		s.Sweep()
		assert.Equal(t, unit.Ready, state(), "attempt %d", attempt)
	}

	step(t, s, retry)

	assert.Equal(t, unit.Unresolved, state())
	assert.Equal(t, program.Aborted, p.State)
	assert.ErrorIs(t, p.Err, ErrUnresolved)
}

func TestTemporization_EmptyBlockGivesUp(t *testing.T) {
	s := New(Options{Temporizer: FixedTemporizer(0, 3)})
	p := s.NewProgram("main", program.Executable)
	u, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Load)
	require.NoError(t, err)
	blockOnNothing := func(Task) unit.Outcome { return unit.BlockOn() }

	dispatched := 0
	for i := 0; i < 20 && !s.Finished(); i++ {
		dispatched += len(step(t, s, blockOnNothing))
		s.Sweep()
	}

	got, err := s.Unit(u.ID)
	require.NoError(t, err)
	assert.Equal(t, unit.Unresolved, got.State)
	assert.Equal(t, 3, dispatched)
	assert.True(t, s.Finished())
	assert.ErrorIs(t, p.Err, ErrUnresolved)
}

func TestBlock_WithoutConditionsParksAndCounts(t *testing.T) {
	s := New(Options{Temporizer: FixedTemporizer(1, 5)})
	p := s.NewProgram("main", program.Executable)
	u, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Load)
	require.NoError(t, err)

	tasks := s.DrainReadyUnitsForDispatch()
	require.Len(t, tasks, 1)
	require.NoError(t, s.Block(u.ID))

	got, err := s.Unit(u.ID)
	require.NoError(t, err)
	assert.Equal(t, unit.Parked, got.State)
	assert.Equal(t, 1, got.Attempts)
}

func TestEmitLifecycle(t *testing.T) {
	s := New(Options{})
	p := s.NewProgram("main", program.Executable, WithEmit(), WithRoots(program.Root{File: "a.go", Name: "main"}))
	fx := fixture{
		decls:    map[string][]string{"a.go": {"main", "helper", "unused"}},
		uses:     map[string][]string{"main": {"helper"}},
		checkAll: true,
	}
	_, err := s.Request(p.ID, unit.FileTarget("a.go"), unit.Parse)
	require.NoError(t, err)

	tasks := runAll(t, s, fx.exec)

	var generated []string
	var linked int
	for _, task := range tasks {
		switch task.Phase {
		case unit.PhaseGenerateMachineCode:
			generated = append(generated, task.Target.Name)
		case unit.PhaseLink:
			linked++
		}
	}
	assert.ElementsMatch(t, []string{"main", "helper"}, generated)
	assert.Equal(t, 1, linked)
	assert.Equal(t, program.Done, p.State)
	assert.Len(t, s.Live(p.ID), 2)
	assert.True(t, s.Finished())
}

func TestExecutableWaitsForMetaprogram(t *testing.T) {
	s := New(Options{})
	exe := s.NewProgram("main", program.Executable)
	meta := s.NewProgram("meta", program.Metaprogram)
	_, err := s.Request(exe.ID, unit.FileTarget("a.go"), unit.Parse)
	require.NoError(t, err)
	_, err = s.Request(meta.ID, unit.DeclTarget("m.go", "gen"), unit.RunMetaprogram)
	require.NoError(t, err)

	exec := func(task Task) unit.Outcome {
		if task.Phase == unit.PhaseRunMetaprogram {
			s.Send(Message{Kind: AddFile, Program: exe.ID, File: "extra.go"})
		}
		return unit.Complete()
	}
	runAll(t, s, exec)
	s.Sweep()
	runAll(t, s, exec)

	assert.Equal(t, program.Done, meta.State)
	assert.Equal(t, program.Done, exe.State)
	var files []string
	for _, u := range s.Units() {
		if u.Program == exe.ID {
			files = append(files, u.Target.File)
		}
	}
	assert.Equal(t, []string{"a.go", "extra.go"}, files)
}
