package scheduler

import (
	"sort"
	"time"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Promoted int
	Unparked int
	Released int
	Advanced int
	// Stalled is set on the sweep that declared the remaining waiting units stuck.
	Stalled bool
}

// Progress reports whether the sweep moved anything.
func (r SweepResult) Progress() bool {
	return r.Promoted+r.Unparked+r.Released+r.Advanced > 0
}

// Sweep applies queued external input, re-evaluates waits, counts down parked units, releases
// barrier holds, advances program lifecycles and detects stalls.
func (s *Scheduler) Sweep() SweepResult {
	var res SweepResult

	s.drainExternal()
	res.Promoted = s.promoteSatisfied()
	res.Unparked = s.countDownParked()
	res.Released = s.releaseBarriers()
	res.Advanced = s.advancePrograms()

	progress := res.Progress() || s.dirty || len(s.parked) > 0
	s.dirty = false

	idle := len(s.ready) == 0 && s.running == 0 && !progress
	if idle && s.hasSuspended() {
		s.idleSweeps++
	} else {
		s.idleSweeps = 0
		s.externalSince = time.Time{}
	}
	if s.idleSweeps >= s.opts.StallSweeps {
		s.idleSweeps = 0
		if s.declareStall() {
			res.Stalled = true
			// aborted programs may now be able to finish
			s.advancePrograms()
		}
	}
	return res
}

func (s *Scheduler) hasSuspended() bool {
	if len(s.waiting) > 0 {
		return true
	}
	for _, ps := range s.programs[1:] {
		if len(ps.held) > 0 {
			return true
		}
	}
	return false
}

// promoteSatisfied clears every indexed condition that now holds and readies units with no
// waits left, in unit ID order.
func (s *Scheduler) promoteSatisfied() int {
	candidates := make(map[unit.ID]struct{})
	for key, ids := range s.waitIndex {
		if !s.satisfied(key.program, key.cond) {
			continue
		}
		for id := range ids {
			s.units[id].Clear(key.cond)
			candidates[id] = struct{}{}
		}
		delete(s.waitIndex, key)
	}

	promoted := 0
	for _, id := range sortedIDs(candidates) {
		u := s.units[id]
		if u.State != unit.Waiting || len(u.Waits) > 0 {
			continue
		}
		delete(s.waiting, id)
		s.makeReady(u)
		s.unitEvent(EventPromoted, u)
		promoted++
	}
	return promoted
}

func (s *Scheduler) countDownParked() int {
	ids := make([]unit.ID, 0, len(s.parked))
	for id := range s.parked {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unparked := 0
	for _, id := range ids {
		e := s.parked[id]
		if e.remaining > 0 {
			e.remaining--
			continue
		}
		delete(s.parked, id)
		s.makeReady(s.units[id])
		unparked++
	}
	return unparked
}

func (s *Scheduler) releaseBarriers() int {
	released := 0
	for _, ps := range s.programs[1:] {
		if ps.files > 0 || len(ps.held) == 0 {
			continue
		}
		held := ps.held
		ps.held = nil
		for _, id := range held {
			u := s.units[id]
			if u.State != unit.Held {
				continue
			}
			u.State = unit.Ready
			s.ready = append(s.ready, id)
			released++
		}
		s.logger.Debug("barrier released", "program", ps.ID, "units", len(held))
	}
	return released
}

// quiescent reports whether a program has no unit that could still run. Executables also wait
// for every metaprogram, since a running metaprogram may add files to them.
func (s *Scheduler) quiescent(ps *programState) bool {
	if ps.active > 0 {
		return false
	}
	if ps.Kind == program.Executable {
		for _, other := range s.programs[1:] {
			if other.Kind == program.Metaprogram && !other.State.Terminal() {
				return false
			}
		}
	}
	return true
}

func (s *Scheduler) advancePrograms() int {
	advanced := 0
	for _, ps := range s.programs[1:] {
		if ps.State.Terminal() || !s.quiescent(ps) {
			continue
		}
		if s.advance(ps) {
			advanced++
		}
	}
	// metaprograms finishing can unblock executables in the same sweep
	if advanced > 0 {
		for _, ps := range s.programs[1:] {
			if ps.Kind == program.Executable && ps.State == program.Accumulating && s.quiescent(ps) {
				if s.advance(ps) {
					advanced++
				}
			}
		}
	}
	return advanced
}

// advance moves a quiescent program one step through its lifecycle.
func (s *Scheduler) advance(ps *programState) bool {
	var next program.State
	switch {
	case ps.State == program.Accumulating && (!ps.Emit || ps.Kind == program.Metaprogram):
		next = program.Done
	case ps.State == program.Accumulating:
		s.prepareCodegen(ps)
		if err := ps.Advance(program.ReadyForCodegen); err != nil {
			s.logger.Error("lifecycle", "program", ps.ID, "error", err)
			return false
		}
		s.programEvent(ps.Program)
		next = program.GeneratingMachineCode
	case ps.State == program.ReadyForCodegen:
		next = program.GeneratingMachineCode
	case ps.State == program.GeneratingMachineCode:
		next = program.Linking
	case ps.State == program.Linking:
		next = program.Done
	default:
		return false
	}

	if err := ps.Advance(next); err != nil {
		s.logger.Error("lifecycle", "program", ps.ID, "error", err)
		return false
	}
	s.logger.Info("program state", "program", ps.ID, "name", ps.Name, "state", next.String())
	s.programEvent(ps.Program)

	switch next {
	case program.GeneratingMachineCode:
		for _, id := range ps.live {
			n := ps.graph.Node(id)
			if n.Kind == depgraph.KindType {
				continue
			}
			if _, err := s.Request(ps.ID, unit.DeclTarget(n.Symbol.Scope, n.Symbol.Name), unit.GenerateMachineCode); err != nil {
				s.logger.Warn("codegen request rejected", "program", ps.ID, "decl", n.Symbol.Key(), "error", err)
			}
		}
	case program.Linking:
		if _, err := s.Request(ps.ID, unit.LinkTarget(), unit.Link); err != nil {
			s.logger.Warn("link request rejected", "program", ps.ID, "error", err)
		}
	}
	return true
}

// prepareCodegen reduces the program's graph and selects the declarations reachable from its roots.
func (s *Scheduler) prepareCodegen(ps *programState) {
	ps.removed += ps.graph.TransitiveReduction()

	var roots []depgraph.NodeID
	if len(ps.Roots) > 0 {
		for _, r := range ps.Roots {
			sym := depgraph.Symbol{Scope: r.File, Name: r.Name}
			if id, ok := ps.graph.Lookup(depgraph.KindFunction, sym); ok {
				roots = append(roots, id)
			} else if id, ok := ps.graph.Lookup(depgraph.KindGlobal, sym); ok {
				roots = append(roots, id)
			} else {
				s.logger.Warn("root not found", "program", ps.ID, "root", sym.Key())
			}
		}
	} else {
		for _, n := range ps.graph.Nodes() {
			if n.Kind != depgraph.KindType {
				roots = append(roots, n.ID)
			}
		}
	}

	ps.live = nil
	for _, id := range ps.graph.LiveSubset(roots) {
		n := ps.graph.Node(id)
		if n.Kind == depgraph.KindType {
			continue
		}
		// only declarations some parsed file actually declares
		if e, ok := ps.symbols[n.Symbol.Name]; ok && e.file == n.Symbol.Scope {
			ps.live = append(ps.live, id)
		}
	}
	s.logger.Debug("codegen prepared", "program", ps.ID, "removed_edges", ps.removed, "live", len(ps.live))
}
