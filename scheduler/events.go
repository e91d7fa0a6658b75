package scheduler

import (
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// EventKind names a scheduler event.
type EventKind string

const (
	EventCreated      EventKind = "created"
	EventDispatched   EventKind = "dispatched"
	EventBlocked      EventKind = "blocked"
	EventPromoted     EventKind = "promoted"
	EventParked       EventKind = "parked"
	EventPhaseDone    EventKind = "phase-done"
	EventUnitDone     EventKind = "unit-done"
	EventProgramState EventKind = "program-state"
	EventMessage      EventKind = "message"
	EventDropped      EventKind = "dropped"
	EventUnresolved   EventKind = "unresolved"
)

// Event is published for every observable scheduling step.
type Event struct {
	Kind         EventKind        `json:"kind"`
	Program      program.ID       `json:"program"`
	Unit         unit.ID          `json:"unit,omitempty"`
	Target       string           `json:"target,omitempty"`
	Purpose      string           `json:"purpose,omitempty"`
	Phase        string           `json:"phase,omitempty"`
	Waits        []wait.Condition `json:"-"`
	ProgramState string           `json:"program_state,omitempty"`
	Message      string           `json:"message,omitempty"`
	Err          string           `json:"error,omitempty"`
}

// Notifier receives events synchronously on the scheduler goroutine. Implementations must not
// call back into the scheduler.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

func (s *Scheduler) unitEvent(kind EventKind, u *unit.Unit) {
	s.notifier.Notify(newUnitEvent(kind, u))
}

func newUnitEvent(kind EventKind, u *unit.Unit) Event {
	e := Event{
		Kind:    kind,
		Program: u.Program,
		Unit:    u.ID,
		Target:  u.Target.String(),
		Purpose: u.Purpose.String(),
		Phase:   u.Phase.String(),
		Waits:   append([]wait.Condition(nil), u.Waits...),
	}
	if u.Err != nil {
		e.Err = u.Err.Error()
	}
	return e
}

func (s *Scheduler) programEvent(p *program.Program) {
	e := Event{Kind: EventProgramState, Program: p.ID, ProgramState: p.State.String()}
	if p.Err != nil {
		e.Err = p.Err.Error()
	}
	s.notifier.Notify(e)
}
