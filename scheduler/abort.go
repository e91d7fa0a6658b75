package scheduler

import (
	"fmt"

	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
)

// MessageKind selects what an inbound Message asks for.
type MessageKind int

const (
	// AddFile asks for a file to be parsed as part of a program.
	AddFile MessageKind = iota + 1
	// AbortProgram asks for a program to be aborted.
	AbortProgram
)

// Message is external input for the scheduler, sent from any goroutine with Send.
type Message struct {
	Kind    MessageKind
	Program program.ID
	File    string
	Err     error
}

// Send queues a message for the next sweep. It is safe to call from any goroutine.
func (s *Scheduler) Send(m Message) {
	s.inbound.Push(m)
}

// PostMessage marks a message identifier as resolved on the next sweep. It is safe to call from
// any goroutine.
func (s *Scheduler) PostMessage(id string) {
	s.resolutions.Push(id)
}

func (s *Scheduler) post(id string) {
	if s.messages[id] {
		return
	}
	s.messages[id] = true
	s.dirty = true
	s.logger.Debug("message resolved", "message", id)
	s.notifier.Notify(Event{Kind: EventMessage, Message: id})
}

// drainExternal applies resolutions and messages queued by other goroutines.
func (s *Scheduler) drainExternal() {
	for _, id := range s.resolutions.Drain() {
		s.post(id)
	}
	for _, m := range s.inbound.Drain() {
		s.handle(m)
	}
}

func (s *Scheduler) handle(m Message) {
	switch m.Kind {
	case AddFile:
		if _, err := s.Request(m.Program, unit.FileTarget(m.File), unit.Parse); err != nil {
			s.logger.Warn("add file rejected", "program", m.Program, "file", m.File, "error", err)
		}
	case AbortProgram:
		if err := s.Abort(m.Program, m.Err); err != nil {
			s.logger.Warn("abort rejected", "program", m.Program, "error", err)
		}
	default:
		s.logger.Warn("unknown message", "kind", int(m.Kind))
	}
}

// Abort stops a program: its queued, waiting, parked and held units are cancelled, running units
// are cancelled so their results are dropped, and the program moves to Aborted. Aborting a
// terminal program is a no-op.
func (s *Scheduler) Abort(programID program.ID, cause error) error {
	ps, err := s.program(programID)
	if err != nil {
		return err
	}
	if ps.State.Terminal() {
		return nil
	}
	if cause == nil {
		cause = ErrProgramAborted
	}

	kept := s.ready[:0]
	for _, id := range s.ready {
		if s.units[id].Program != programID {
			kept = append(kept, id)
		}
	}
	s.ready = kept
	ps.held = nil

	cancelled := 0
	for _, id := range ps.units {
		u := s.units[id]
		if u.State.Terminal() {
			continue
		}
		switch u.State {
		case unit.Waiting:
			s.unregisterWaits(u)
		case unit.Parked:
			delete(s.parked, id)
		case unit.Running:
			s.running--
		}
		u.State = unit.Cancelled
		u.Err = fmt.Errorf("%w: %w", ErrProgramAborted, cause)
		s.retire(u)
		cancelled++
	}

	ps.Abort(cause)
	s.dirty = true
	s.logger.Warn("program aborted", "program", programID, "name", ps.Name, "cancelled", cancelled, "error", cause)
	s.programEvent(ps.Program)
	return nil
}
