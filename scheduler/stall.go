package scheduler

import (
	"errors"
	"time"

	graphlib "github.com/dominikbraun/graph"

	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// declareStall marks every suspended unit unresolved and aborts the programs they belong to.
// Units on a cycle of the wait-for graph are reported as deadlocked. Units that wait on an
// external message, directly or through other suspended units, are left alone until
// MessageTimeout has passed. It reports whether any unit was declared.
func (s *Scheduler) declareStall() bool {
	suspended := s.suspendedUnits()
	if external := s.awaitingExternal(suspended); len(external) > 0 {
		now := s.now()
		if s.externalSince.IsZero() {
			s.externalSince = now
		}
		if now.Sub(s.externalSince) < s.opts.MessageTimeout {
			for id := range external {
				delete(suspended, id)
			}
		} else {
			s.logger.Warn("message wait timed out", "units", len(external), "timeout", s.opts.MessageTimeout)
			s.externalSince = time.Time{}
		}
	}
	if len(suspended) == 0 {
		return false
	}

	deadlocked, err := s.deadlockedUnits(suspended)
	if err != nil {
		s.logger.Error("wait-for graph", "error", err)
	}

	byProgram := make(map[program.ID][]StalledUnit)
	var order []program.ID
	for _, id := range sortedIDs(suspended) {
		u := s.units[id]
		if u.State == unit.Waiting {
			s.unregisterWaits(u)
		}
		if u.State == unit.Held {
			s.dropHeld(u)
		}
		stalled := StalledUnit{
			Unit:       u.ID,
			Program:    u.Program,
			Target:     u.Target,
			Purpose:    u.Purpose,
			Phase:      u.Phase,
			Waits:      append([]wait.Condition(nil), u.Waits...),
			Deadlocked: deadlocked[id],
		}
		u.State = unit.Unresolved
		u.Waits = []wait.Condition{wait.Never()}
		if stalled.Deadlocked {
			u.Err = ErrDeadlock
		} else {
			u.Err = ErrUnresolved
		}
		s.retire(u)
		s.stalled = append(s.stalled, stalled)
		s.logger.Warn("unit stalled", "unit", u.ID, "target", u.Target.String(), "phase", u.Phase.String(), "deadlocked", stalled.Deadlocked)
		s.unitEvent(EventUnresolved, u)

		if _, seen := byProgram[u.Program]; !seen {
			order = append(order, u.Program)
		}
		byProgram[u.Program] = append(byProgram[u.Program], stalled)
	}

	for _, pid := range order {
		if err := s.Abort(pid, &StallError{Units: byProgram[pid]}); err != nil {
			s.logger.Error("abort failed", "program", pid, "error", err)
		}
	}
	return true
}

// awaitingExternal returns the suspended units waiting on nothing but messages, together with every
// suspended unit that waits on one of them.
func (s *Scheduler) awaitingExternal(suspended map[unit.ID]struct{}) map[unit.ID]struct{} {
	external := make(map[unit.ID]struct{})
	for id := range suspended {
		u := s.units[id]
		if u.State == unit.Waiting && onlyMessages(u.Waits) {
			external[id] = struct{}{}
		}
	}
	if len(external) == 0 {
		return external
	}

	for changed := true; changed; {
		changed = false
		for _, id := range sortedIDs(suspended) {
			if _, ok := external[id]; ok {
				continue
			}
			for _, dep := range s.waitsFor(s.units[id]) {
				if _, ok := external[dep]; ok {
					external[id] = struct{}{}
					changed = true
					break
				}
			}
		}
	}
	return external
}

func (s *Scheduler) suspendedUnits() map[unit.ID]struct{} {
	set := make(map[unit.ID]struct{}, len(s.waiting))
	for id := range s.waiting {
		set[id] = struct{}{}
	}
	for _, ps := range s.programs[1:] {
		for _, id := range ps.held {
			if s.units[id].State == unit.Held {
				set[id] = struct{}{}
			}
		}
	}
	return set
}

func (s *Scheduler) dropHeld(u *unit.Unit) {
	ps := s.programs[u.Program]
	kept := ps.held[:0]
	for _, id := range ps.held {
		if id != u.ID {
			kept = append(kept, id)
		}
	}
	ps.held = kept
}

// deadlockedUnits builds the wait-for graph over the suspended units and returns those that sit
// on a cycle.
func (s *Scheduler) deadlockedUnits(suspended map[unit.ID]struct{}) (map[unit.ID]bool, error) {
	g := graphlib.New(func(id unit.ID) unit.ID { return id }, graphlib.Directed())
	for _, id := range sortedIDs(suspended) {
		if err := g.AddVertex(id); err != nil && !errors.Is(err, graphlib.ErrVertexAlreadyExists) {
			return nil, err
		}
	}

	selfLoops := make(map[unit.ID]bool)
	for _, id := range sortedIDs(suspended) {
		for _, dep := range s.waitsFor(s.units[id]) {
			if _, ok := suspended[dep]; !ok {
				continue
			}
			if dep == id {
				selfLoops[id] = true
				continue
			}
			if err := g.AddEdge(id, dep); err != nil && !errors.Is(err, graphlib.ErrEdgeAlreadyExists) {
				return nil, err
			}
		}
	}

	sccs, err := graphlib.StronglyConnectedComponents(g)
	if err != nil {
		return nil, err
	}
	deadlocked := make(map[unit.ID]bool)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		for _, id := range scc {
			deadlocked[id] = true
		}
	}
	for id := range selfLoops {
		deadlocked[id] = true
	}
	return deadlocked, nil
}

func onlyMessages(conds []wait.Condition) bool {
	for _, c := range conds {
		if c.Kind != wait.Message {
			return false
		}
	}
	return len(conds) > 0
}

// waitsFor lists the units whose progress could satisfy what u is waiting on.
func (s *Scheduler) waitsFor(u *unit.Unit) []unit.ID {
	ps := s.programs[u.Program]
	var deps []unit.ID
	add := func(match func(*unit.Unit) bool) {
		for _, id := range ps.units {
			other := s.units[id]
			if !other.State.Terminal() && match(other) {
				deps = append(deps, id)
			}
		}
	}
	pendingFile := func(o *unit.Unit) bool { return o.Target.Kind == unit.File }

	if u.State == unit.Held {
		add(pendingFile)
		return deps
	}
	for _, c := range u.Waits {
		switch c.Kind {
		case wait.FileStage:
			file := c.Target
			add(func(o *unit.Unit) bool { return o.Target.Kind == unit.File && o.Target.File == file })
		case wait.DeclTyped:
			key := c.Target
			add(func(o *unit.Unit) bool { return o.Target.Kind == unit.Decl && o.Target.Symbol().Key() == key })
		case wait.Symbol:
			add(pendingFile)
		}
	}
	return deps
}
