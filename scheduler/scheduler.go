// Package scheduler decides which compilation unit runs next, resumes suspended units when their
// prerequisites hold and detects units that never will.
//
// All scheduler state is owned by a single goroutine. Workers only see Task values and report
// back through queues.
package scheduler

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/internal/ctxlog"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/resultq"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// DefaultStallSweeps is the number of consecutive idle sweeps after which waiting units are
// declared unresolved.
const DefaultStallSweeps = 3

// DefaultMessageTimeout is how long units waiting on external messages are exempt from stall
// detection once nothing else can move.
const DefaultMessageTimeout = 30 * time.Second

// Options configures a Scheduler. Zero values select defaults.
type Options struct {
	Workers       int
	StallSweeps   int
	QueueCapacity int
	Temporizer    Temporizer
	// IdleSweepInterval is how long Run waits for external input before sweeping again when
	// no unit is running.
	IdleSweepInterval time.Duration
	// MessageTimeout bounds how long the scheduler sits idle on units that wait, directly or
	// through other units, for a message that only the outside world can post.
	MessageTimeout time.Duration
	Logger         *slog.Logger
	Notifier       Notifier
}

// Task is the work handed to a worker: run one phase of one unit.
type Task struct {
	Unit    unit.ID
	Program program.ID
	Kind    program.Kind
	Target  unit.Target
	Purpose unit.Purpose
	Phase   unit.Phase
	Attempt int
	// Cleared lists the conditions satisfied since the phase started.
	Cleared []wait.Condition
}

// Result is a worker's report for one task.
type Result struct {
	Unit    unit.ID
	Outcome unit.Outcome
}

type unitKey struct {
	program program.ID
	target  unit.Target
	purpose unit.Purpose
}

type targetKey struct {
	program program.ID
	target  unit.Target
}

type waitKey struct {
	program program.ID
	cond    wait.Condition
}

type symbolEntry struct {
	file string
	kind depgraph.NodeKind
}

type parkEntry struct {
	remaining int
}

type programState struct {
	*program.Program
	graph    *depgraph.DependencyGraph
	units    []unit.ID
	symbols  map[string]symbolEntry
	typed    map[string]bool
	held     []unit.ID
	active   int
	files    int
	removed  int
	live     []depgraph.NodeID
	reported bool
}

// Scheduler is the compilation-unit scheduler. Create it with New.
type Scheduler struct {
	opts     Options
	logger   *slog.Logger
	notifier Notifier

	programs []*programState
	units    []*unit.Unit
	index    map[unitKey]unit.ID
	done     map[targetKey]unit.PhaseSet

	ready     []unit.ID
	running   int
	waiting   map[unit.ID]struct{}
	waitIndex map[waitKey]map[unit.ID]struct{}
	parked    map[unit.ID]*parkEntry
	messages  map[string]bool

	outcomes    *resultq.Queue[Result]
	resolutions *resultq.Queue[string]
	inbound     *resultq.Queue[Message]

	dirty      bool
	idleSweeps int
	// externalSince is when the scheduler first went idle with only message waits left.
	externalSince time.Time
	now           func() time.Time
	stalled       []StalledUnit
	runID         string
}

// New returns an empty scheduler.
func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.StallSweeps <= 0 {
		opts.StallSweeps = DefaultStallSweeps
	}
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = DefaultMessageTimeout
	}
	if opts.Temporizer.Delay == nil {
		opts.Temporizer = RandomTemporizer(1, 2, 8, rand.New(rand.NewSource(1)))
	}
	if opts.Temporizer.MaxAttempts <= 0 {
		opts.Temporizer.MaxAttempts = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = ctxlog.Discard()
	}
	var notifier Notifier = nopNotifier{}
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}

	return &Scheduler{
		opts:        opts,
		logger:      logger,
		notifier:    notifier,
		programs:    []*programState{nil},
		units:       []*unit.Unit{nil},
		index:       make(map[unitKey]unit.ID),
		done:        make(map[targetKey]unit.PhaseSet),
		waiting:     make(map[unit.ID]struct{}),
		waitIndex:   make(map[waitKey]map[unit.ID]struct{}),
		parked:      make(map[unit.ID]*parkEntry),
		messages:    make(map[string]bool),
		outcomes:    resultq.New[Result](opts.QueueCapacity),
		resolutions: resultq.New[string](opts.QueueCapacity),
		inbound:     resultq.New[Message](opts.QueueCapacity),
		now:         time.Now,
	}
}

// ProgramOption customizes a program at registration.
type ProgramOption func(*program.Program)

// WithEmit requests code generation and linking once analysis is complete.
func WithEmit() ProgramOption {
	return func(p *program.Program) { p.Emit = true }
}

// WithRoots sets the declarations code generation starts from.
func WithRoots(roots ...program.Root) ProgramOption {
	return func(p *program.Program) { p.Roots = append(p.Roots, roots...) }
}

// NewProgram registers a program.
func (s *Scheduler) NewProgram(name string, kind program.Kind, opts ...ProgramOption) *program.Program {
	id := program.ID(len(s.programs))
	p := program.New(id, name, kind)
	for _, opt := range opts {
		opt(p)
	}
	s.programs = append(s.programs, &programState{
		Program: p,
		graph:   depgraph.New(),
		symbols: make(map[string]symbolEntry),
		typed:   make(map[string]bool),
	})
	s.dirty = true
	s.logger.Debug("program registered", "program", id, "name", name, "kind", kind.String(), "emit", p.Emit)
	s.programEvent(p)
	return p
}

func (s *Scheduler) program(id program.ID) (*programState, error) {
	if id == 0 || int(id) >= len(s.programs) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProgram, id)
	}
	return s.programs[id], nil
}

func (s *Scheduler) unit(id unit.ID) (*unit.Unit, error) {
	if id == 0 || int(id) >= len(s.units) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, id)
	}
	return s.units[id], nil
}

// Request returns the unit for (program, target, purpose), creating it when needed.
// Requesting a declaration also requests parsing of its file.
func (s *Scheduler) Request(programID program.ID, target unit.Target, purpose unit.Purpose) (*unit.Unit, error) {
	ps, err := s.program(programID)
	if err != nil {
		return nil, err
	}
	switch ps.State {
	case program.Aborted:
		return nil, fmt.Errorf("%w: %s", ErrProgramAborted, ps.Name)
	case program.Done:
		return nil, fmt.Errorf("%w: %s", ErrProgramClosed, ps.Name)
	}

	key := unitKey{program: programID, target: target, purpose: purpose}
	if id, ok := s.index[key]; ok {
		return s.units[id], nil
	}

	if target.Kind == unit.Decl {
		if _, err := s.Request(programID, unit.FileTarget(target.File), unit.Parse); err != nil {
			return nil, err
		}
	}

	id := unit.ID(len(s.units))
	u := unit.New(id, programID, target, purpose, s.done[targetKey{program: programID, target: target}])
	s.units = append(s.units, u)
	s.index[key] = id
	ps.units = append(ps.units, id)
	s.dirty = true

	s.logger.Debug("unit created", "unit", id, "program", programID, "target", target.String(), "purpose", purpose.String(), "phase", u.Phase.String())
	s.unitEvent(EventCreated, u)

	if u.State == unit.Done {
		return u, nil
	}
	ps.active++
	if target.Kind == unit.File {
		ps.files++
		s.closeBarrier(ps)
	}
	s.makeReady(u)
	return u, nil
}

// makeReady queues u for dispatch, or holds it when it is about to type check while files of its
// program are still being processed.
func (s *Scheduler) makeReady(u *unit.Unit) {
	ps := s.programs[u.Program]
	if u.Phase == unit.PhaseTypeCheck && ps.files > 0 {
		u.State = unit.Held
		ps.held = append(ps.held, u.ID)
		return
	}
	u.State = unit.Ready
	s.ready = append(s.ready, u.ID)
}

// closeBarrier moves queued units of ps that have not started type checking back behind the barrier.
func (s *Scheduler) closeBarrier(ps *programState) {
	kept := s.ready[:0]
	for _, id := range s.ready {
		u := s.units[id]
		if u.Program == ps.ID && u.Phase == unit.PhaseTypeCheck {
			u.State = unit.Held
			ps.held = append(ps.held, id)
			continue
		}
		kept = append(kept, id)
	}
	s.ready = kept
}

// retire records that u reached a terminal state.
func (s *Scheduler) retire(u *unit.Unit) {
	ps := s.programs[u.Program]
	ps.active--
	if u.Target.Kind == unit.File {
		ps.files--
	}
}

// Graph returns the dependency graph of a program.
func (s *Scheduler) Graph(programID program.ID) (*depgraph.DependencyGraph, error) {
	ps, err := s.program(programID)
	if err != nil {
		return nil, err
	}
	return ps.graph, nil
}

// Programs returns every registered program in ID order.
func (s *Scheduler) Programs() []*program.Program {
	out := make([]*program.Program, 0, len(s.programs)-1)
	for _, ps := range s.programs[1:] {
		out = append(out, ps.Program)
	}
	return out
}

// Units returns copies of every unit in ID order.
func (s *Scheduler) Units() []unit.Unit {
	out := make([]unit.Unit, 0, len(s.units)-1)
	for _, u := range s.units[1:] {
		out = append(out, *u)
	}
	return out
}

// Unit returns a copy of the unit with the given ID.
func (s *Scheduler) Unit(id unit.ID) (unit.Unit, error) {
	u, err := s.unit(id)
	if err != nil {
		return unit.Unit{}, err
	}
	return *u, nil
}

// RemovedEdges returns how many relations transitive reduction removed from a program's graph.
func (s *Scheduler) RemovedEdges(programID program.ID) int {
	ps, err := s.program(programID)
	if err != nil {
		return 0
	}
	return ps.removed
}

// Live returns the declarations selected for code generation.
func (s *Scheduler) Live(programID program.ID) []depgraph.NodeID {
	ps, err := s.program(programID)
	if err != nil {
		return nil
	}
	return append([]depgraph.NodeID(nil), ps.live...)
}

// Stalled returns the units declared unresolved or deadlocked.
func (s *Scheduler) Stalled() []StalledUnit {
	return append([]StalledUnit(nil), s.stalled...)
}

// RunID returns the identifier of the last Run.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Declaration looks up a name declared by any parsed file of a program.
func (s *Scheduler) Declaration(programID program.ID, name string) (file string, kind depgraph.NodeKind, ok bool) {
	ps, err := s.program(programID)
	if err != nil {
		return "", 0, false
	}
	e, ok := ps.symbols[name]
	return e.file, e.kind, ok
}

// Finished reports whether the run is over: nothing ready, running, parked or held, every
// program terminal, and no unit waiting unless a stall was declared.
func (s *Scheduler) Finished() bool {
	if len(s.ready) > 0 || s.running > 0 || len(s.parked) > 0 {
		return false
	}
	for _, ps := range s.programs[1:] {
		if len(ps.held) > 0 || !ps.State.Terminal() {
			return false
		}
	}
	return len(s.waiting) == 0 || len(s.stalled) > 0
}

func sortedIDs(set map[unit.ID]struct{}) []unit.ID {
	ids := make([]unit.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
