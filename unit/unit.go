// Package unit models a compilation unit: a (target, purpose) pair stepping through an ordered
// sequence of phases.
package unit

import (
	"fmt"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// ID is a unit handle into the scheduler's arena. The zero value is never issued.
type ID uint32

// TargetKind says what a unit operates on.
type TargetKind uint8

const (
	File TargetKind = iota + 1
	Decl
	ProgramTarget
)

// Target is the file, declaration or program a unit works on.
type Target struct {
	Kind TargetKind
	File string
	Name string
}

// FileTarget returns the target for a source file.
func FileTarget(file string) Target {
	return Target{Kind: File, File: file}
}

// DeclTarget returns the target for the declaration name in file.
func DeclTarget(file, name string) Target {
	return Target{Kind: Decl, File: file, Name: name}
}

// LinkTarget returns the target for a whole program.
func LinkTarget() Target {
	return Target{Kind: ProgramTarget}
}

// Symbol returns the graph symbol of a declaration target.
func (t Target) Symbol() depgraph.Symbol {
	return depgraph.Symbol{Scope: t.File, Name: t.Name}
}

func (t Target) String() string {
	switch t.Kind {
	case File:
		return t.File
	case Decl:
		return t.Symbol().Key()
	case ProgramTarget:
		return "<program>"
	default:
		return "<invalid>"
	}
}

// State is the scheduling state of a unit.
type State uint8

const (
	Ready State = iota + 1
	Running
	// Waiting units are blocked on one or more wait conditions.
	Waiting
	// Parked units sit out a number of sweeps before retrying.
	Parked
	// Held units are ready to type check but wait for every file of the program to finish.
	Held
	Done
	Cancelled
	Unresolved
)

var stateNames = map[State]string{
	Ready:      "ready",
	Running:    "running",
	Waiting:    "waiting",
	Parked:     "parked",
	Held:       "held",
	Done:       "done",
	Cancelled:  "cancelled",
	Unresolved: "unresolved",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the unit will never run again.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == Unresolved
}

// Suspended reports whether the unit is in one of the waiting sub-states.
func (s State) Suspended() bool {
	return s == Waiting || s == Parked || s == Held
}

// Unit is a single compilation unit.
type Unit struct {
	ID      ID
	Program program.ID
	Target  Target
	Purpose Purpose
	Phase   Phase
	State   State
	// Waits holds the conditions a Waiting unit still needs. All of them must be satisfied.
	Waits []wait.Condition
	// Cleared holds the conditions satisfied during the current phase.
	Cleared  []wait.Condition
	Attempts int
	Err      error
}

// New returns a Ready unit positioned at the first phase of purpose not present in done.
// When every phase is already done the unit is created Done.
func New(id ID, prog program.ID, target Target, purpose Purpose, done PhaseSet) *Unit {
	u := &Unit{
		ID:      id,
		Program: prog,
		Target:  target,
		Purpose: purpose,
		Phase:   purpose.First(done),
		State:   Ready,
	}
	if u.Phase == PhaseDone {
		u.State = Done
	}
	return u
}

// Apply moves the unit according to the outcome of its current phase and returns the phase the
// outcome was for. A Fatal outcome cancels the unit; aborting its program is left to the caller.
func (u *Unit) Apply(o Outcome) Phase {
	phase := u.Phase
	switch o.Status {
	case Completed:
		u.Phase = u.Purpose.Next(phase)
		u.Waits = nil
		u.Cleared = nil
		u.Attempts = 0
		if u.Phase == PhaseDone {
			u.State = Done
		} else {
			u.State = Ready
		}
	case Blocked:
		u.Block(o.Waits...)
	case Retry:
		u.Attempts++
		u.State = Parked
	case Fatal:
		u.State = Cancelled
		u.Err = o.Err
	}
	return phase
}

// Block moves the unit to Waiting on conds. Duplicates are collapsed. Blocking on nothing
// parks the unit instead and counts as a retry attempt.
func (u *Unit) Block(conds ...wait.Condition) {
	waits := make([]wait.Condition, 0, len(conds))
	for _, c := range conds {
		if !wait.Contains(waits, c) {
			waits = append(waits, c)
		}
	}
	if len(waits) == 0 {
		u.Waits = nil
		u.Attempts++
		u.State = Parked
		return
	}
	u.Waits = waits
	u.State = Waiting
}

// Clear removes c from the unit's waits and records it as cleared. It returns true when no waits remain.
func (u *Unit) Clear(c wait.Condition) bool {
	for i, w := range u.Waits {
		if w == c {
			u.Waits = append(u.Waits[:i], u.Waits[i+1:]...)
			if !wait.Contains(u.Cleared, c) {
				u.Cleared = append(u.Cleared, c)
			}
			break
		}
	}
	return len(u.Waits) == 0
}

func (u *Unit) String() string {
	return fmt.Sprintf("#%d %s %s@%s (%s)", u.ID, u.Purpose, u.Target, u.Phase, u.State)
}
