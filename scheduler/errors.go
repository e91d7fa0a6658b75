package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

var (
	ErrUnknownProgram = errors.New("unknown program")
	ErrUnknownUnit    = errors.New("unknown unit")
	ErrProgramAborted = errors.New("program aborted")
	// ErrProgramClosed is returned for requests against a program that already finished.
	ErrProgramClosed = errors.New("program no longer accepts work")
	ErrNotRunning    = errors.New("unit is not running")
	ErrUnresolved    = errors.New("unresolved dependency")
	ErrDeadlock      = errors.New("deadlock")
)

// PhaseError wraps a failure reported by a worker.
type PhaseError struct {
	Unit   unit.ID
	Phase  unit.Phase
	Target unit.Target
	Err    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Phase, e.Target, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// StalledUnit describes a unit that could never make progress.
type StalledUnit struct {
	Unit       unit.ID
	Program    program.ID
	Target     unit.Target
	Purpose    unit.Purpose
	Phase      unit.Phase
	Waits      []wait.Condition
	Deadlocked bool
}

func (s StalledUnit) String() string {
	verdict := "unresolved"
	if s.Deadlocked {
		verdict = "deadlocked"
	}
	waits := make([]string, len(s.Waits))
	for i, w := range s.Waits {
		waits[i] = w.String()
	}
	return fmt.Sprintf("%s %s at %s %s waiting on [%s]", s.Purpose, s.Target, s.Phase, verdict, strings.Join(waits, ", "))
}

// StallError is the error of a program whose units stopped making progress.
type StallError struct {
	Units []StalledUnit
}

func (e *StallError) Error() string {
	lines := make([]string, len(e.Units))
	for i, u := range e.Units {
		lines[i] = u.String()
	}
	return fmt.Sprintf("%d unit(s) stalled: %s", len(e.Units), strings.Join(lines, "; "))
}

// Unwrap exposes ErrDeadlock and ErrUnresolved to errors.Is.
func (e *StallError) Unwrap() []error {
	var deadlocked, unresolved bool
	for _, u := range e.Units {
		if u.Deadlocked {
			deadlocked = true
		} else {
			unresolved = true
		}
	}
	var errs []error
	if deadlocked {
		errs = append(errs, ErrDeadlock)
	}
	if unresolved {
		errs = append(errs, ErrUnresolved)
	}
	return errs
}
