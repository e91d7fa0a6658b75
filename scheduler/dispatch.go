package scheduler

import (
	"fmt"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// DrainReadyUnitsForDispatch marks every ready unit Running and returns one task per unit.
func (s *Scheduler) DrainReadyUnitsForDispatch() []Task {
	if len(s.ready) == 0 {
		return nil
	}
	tasks := make([]Task, 0, len(s.ready))
	for _, id := range s.ready {
		u := s.units[id]
		if u.State != unit.Ready {
			continue
		}
		u.State = unit.Running
		s.running++
		tasks = append(tasks, Task{
			Unit:    u.ID,
			Program: u.Program,
			Kind:    s.programs[u.Program].Kind,
			Target:  u.Target,
			Purpose: u.Purpose,
			Phase:   u.Phase,
			Attempt: u.Attempts,
			Cleared: append([]wait.Condition(nil), u.Cleared...),
		})
		s.unitEvent(EventDispatched, u)
	}
	s.ready = s.ready[:0]
	s.dirty = true
	return tasks
}

// Block moves a running unit to Waiting until every condition holds.
func (s *Scheduler) Block(id unit.ID, conds ...wait.Condition) error {
	u, err := s.unit(id)
	if err != nil {
		return err
	}
	if u.State != unit.Running {
		return fmt.Errorf("%w: %s", ErrNotRunning, u)
	}
	s.running--
	s.dirty = true
	u.Block(conds...)
	s.settle(u, unit.Outcome{Status: unit.Blocked})
	return nil
}

// NotifyUnitComplete applies a worker's outcome for a running unit, records what it declared
// and used, files its requests and sweeps. Outcomes for cancelled units are dropped.
func (s *Scheduler) NotifyUnitComplete(id unit.ID, outcome unit.Outcome) error {
	u, err := s.unit(id)
	if err != nil {
		return err
	}
	if u.State == unit.Cancelled || u.State == unit.Unresolved {
		s.logger.Debug("dropping late result", "unit", id, "status", outcome.Status.String())
		s.unitEvent(EventDropped, u)
		return nil
	}
	if u.State != unit.Running {
		return fmt.Errorf("%w: %s", ErrNotRunning, u)
	}

	s.apply(u, outcome)
	s.Sweep()
	return nil
}

func (s *Scheduler) apply(u *unit.Unit, outcome unit.Outcome) {
	s.running--
	s.dirty = true
	ps := s.programs[u.Program]

	s.record(ps, u, outcome)

	phase := u.Apply(outcome)
	if outcome.Status == unit.Completed {
		s.completePhase(ps, u, phase)
	}
	s.settle(u, outcome)

	if ps.State == program.Aborted {
		return
	}
	for _, req := range outcome.Requests {
		target := req.Program
		if target == 0 {
			target = u.Program
		}
		if _, err := s.Request(target, req.Target, req.Purpose); err != nil {
			s.logger.Warn("request rejected", "unit", u.ID, "target", req.Target.String(), "purpose", req.Purpose.String(), "error", err)
		}
	}
}

// record folds declarations and uses reported by a phase into the program's tables and graph.
func (s *Scheduler) record(ps *programState, u *unit.Unit, outcome unit.Outcome) {
	for _, d := range outcome.Declares {
		if _, exists := ps.symbols[d.Name]; !exists {
			ps.symbols[d.Name] = symbolEntry{file: u.Target.File, kind: d.Kind}
		}
		s.declNode(ps, depgraph.Symbol{Scope: u.Target.File, Name: d.Name}, d.Kind)
	}

	if len(outcome.Uses) > 0 && u.Target.Kind == unit.Decl {
		kind := depgraph.KindFunction
		if e, ok := ps.symbols[u.Target.Name]; ok && e.file == u.Target.File {
			kind = e.kind
		}
		from := s.declNode(ps, u.Target.Symbol(), kind)
		added := ps.graph.Fold(from, outcome.Uses)
		s.logger.Debug("uses recorded", "unit", u.ID, "decl", u.Target.String(), "relations", added)
	}
}

func (s *Scheduler) declNode(ps *programState, sym depgraph.Symbol, kind depgraph.NodeKind) depgraph.NodeID {
	switch kind {
	case depgraph.KindGlobal:
		return ps.graph.GlobalNode(sym)
	case depgraph.KindType:
		return ps.graph.DeclaredTypeNode(sym)
	default:
		return ps.graph.FunctionNode(sym)
	}
}

// completePhase records a finished phase and skips phases a sibling unit already finished.
func (s *Scheduler) completePhase(ps *programState, u *unit.Unit, phase unit.Phase) {
	tk := targetKey{program: u.Program, target: u.Target}
	s.done[tk] = s.done[tk].With(phase)

	switch phase {
	case unit.PhaseTypeCheck:
		if u.Target.Kind == unit.Decl {
			ps.typed[u.Target.Symbol().Key()] = true
		}
	case unit.PhaseSendOrReceiveMessage:
		s.post(u.Target.Name)
	}
	e := newUnitEvent(EventPhaseDone, u)
	e.Phase = phase.String()
	s.notifier.Notify(e)

	for u.Phase != unit.PhaseDone && s.done[tk].Has(u.Phase) {
		u.Phase = u.Purpose.Next(u.Phase)
	}
	if u.Phase == unit.PhaseDone {
		u.State = unit.Done
	}
}

// settle files u according to the state Apply left it in.
func (s *Scheduler) settle(u *unit.Unit, outcome unit.Outcome) {
	switch u.State {
	case unit.Ready:
		s.makeReady(u)
	case unit.Done:
		s.retire(u)
		s.logger.Debug("unit done", "unit", u.ID, "target", u.Target.String(), "purpose", u.Purpose.String())
		s.unitEvent(EventUnitDone, u)
	case unit.Waiting:
		s.unitEvent(EventBlocked, u)
		s.registerWaits(u)
	case unit.Parked:
		s.park(u)
	case unit.Cancelled:
		s.retire(u)
		err := &PhaseError{Unit: u.ID, Phase: u.Phase, Target: u.Target, Err: outcome.Err}
		u.Err = err
		s.logger.Warn("phase failed", "unit", u.ID, "target", u.Target.String(), "phase", u.Phase.String(), "error", outcome.Err)
		if abortErr := s.Abort(u.Program, err); abortErr != nil {
			s.logger.Error("abort failed", "program", u.Program, "error", abortErr)
		}
	}
}

// registerWaits clears conditions that already hold and indexes the rest.
func (s *Scheduler) registerWaits(u *unit.Unit) {
	for _, c := range append([]wait.Condition(nil), u.Waits...) {
		if s.satisfied(u.Program, c) {
			u.Clear(c)
		}
	}
	if len(u.Waits) == 0 {
		s.makeReady(u)
		s.unitEvent(EventPromoted, u)
		return
	}
	s.waiting[u.ID] = struct{}{}
	for _, c := range u.Waits {
		key := waitKey{program: u.Program, cond: c}
		if s.waitIndex[key] == nil {
			s.waitIndex[key] = make(map[unit.ID]struct{})
		}
		s.waitIndex[key][u.ID] = struct{}{}
	}
}

func (s *Scheduler) unregisterWaits(u *unit.Unit) {
	delete(s.waiting, u.ID)
	for _, c := range u.Waits {
		key := waitKey{program: u.Program, cond: c}
		if set, ok := s.waitIndex[key]; ok {
			delete(set, u.ID)
			if len(set) == 0 {
				delete(s.waitIndex, key)
			}
		}
	}
}

func (s *Scheduler) park(u *unit.Unit) {
	if u.Attempts >= s.opts.Temporizer.MaxAttempts {
		s.giveUp(u)
		return
	}
	delay := s.opts.Temporizer.Delay(u.Attempts)
	if delay < 0 {
		delay = 0
	}
	s.parked[u.ID] = &parkEntry{remaining: delay}
	s.logger.Debug("unit parked", "unit", u.ID, "attempt", u.Attempts, "sweeps", delay)
	s.unitEvent(EventParked, u)
}

// giveUp declares a unit that exhausted its retries unresolved and aborts its program.
func (s *Scheduler) giveUp(u *unit.Unit) {
	u.State = unit.Unresolved
	u.Waits = []wait.Condition{wait.Never()}
	s.retire(u)
	stalled := StalledUnit{
		Unit:    u.ID,
		Program: u.Program,
		Target:  u.Target,
		Purpose: u.Purpose,
		Phase:   u.Phase,
		Waits:   u.Waits,
	}
	s.stalled = append(s.stalled, stalled)
	u.Err = fmt.Errorf("%w: %s gave up after %d attempts", ErrUnresolved, u.Target, u.Attempts)
	s.logger.Warn("unit unresolved", "unit", u.ID, "target", u.Target.String(), "attempts", u.Attempts)
	s.unitEvent(EventUnresolved, u)
	if err := s.Abort(u.Program, &StallError{Units: []StalledUnit{stalled}}); err != nil {
		s.logger.Error("abort failed", "program", u.Program, "error", err)
	}
}

// satisfied reports whether c holds for units of the given program.
func (s *Scheduler) satisfied(programID program.ID, c wait.Condition) bool {
	ps := s.programs[programID]
	switch c.Kind {
	case wait.FileStage:
		return s.done[targetKey{program: programID, target: unit.FileTarget(c.Target)}].Has(unit.Phase(c.Stage))
	case wait.Symbol:
		_, ok := ps.symbols[c.Target]
		return ok
	case wait.DeclTyped:
		return ps.typed[c.Target]
	case wait.Message:
		return s.messages[c.Target]
	default:
		return false
	}
}
