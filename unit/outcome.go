package unit

import (
	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

// Status is the verdict of running one phase.
type Status uint8

const (
	Completed Status = iota + 1
	Blocked
	Retry
	Fatal
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Blocked:
		return "blocked"
	case Retry:
		return "retry"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Request asks the scheduler for a unit. A zero Program means the requesting unit's program.
type Request struct {
	Program program.ID
	Target  Target
	Purpose Purpose
}

// Declaration is a top-level name found while parsing a file.
type Declaration struct {
	Name string
	Kind depgraph.NodeKind
}

// Outcome is what a worker reports after running a unit's current phase.
type Outcome struct {
	Status   Status
	Waits    []wait.Condition
	Requests []Request
	Declares []Declaration
	Uses     []depgraph.Use
	Err      error
}

// Complete reports that the phase finished.
func Complete() Outcome {
	return Outcome{Status: Completed}
}

// BlockOn reports that the phase cannot proceed until every condition holds.
func BlockOn(conds ...wait.Condition) Outcome {
	return Outcome{Status: Blocked, Waits: conds}
}

// RetryLater reports a transient failure.
func RetryLater() Outcome {
	return Outcome{Status: Retry}
}

// Fail reports an unrecoverable error.
func Fail(err error) Outcome {
	return Outcome{Status: Fatal, Err: err}
}
