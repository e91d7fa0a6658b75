// Package program tracks the lifecycle of a program being compiled.
package program

import (
	"errors"
	"fmt"
)

// ID identifies a program within one scheduler. The zero value means "the requesting unit's program".
type ID uint32

// Kind distinguishes the program being built from programs executed during compilation.
type Kind uint8

const (
	Executable Kind = iota + 1
	Metaprogram
)

func (k Kind) String() string {
	switch k {
	case Executable:
		return "executable"
	case Metaprogram:
		return "metaprogram"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a program. States only move forward.
type State uint8

const (
	Accumulating State = iota + 1
	ReadyForCodegen
	GeneratingMachineCode
	Linking
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case ReadyForCodegen:
		return "ready-for-codegen"
	case GeneratingMachineCode:
		return "generating-machine-code"
	case Linking:
		return "linking"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}

// ErrInvalidTransition is returned when a state change would move backwards or leave a terminal state.
var ErrInvalidTransition = errors.New("invalid program state transition")

// Program is one compilation target.
type Program struct {
	ID    ID
	Name  string
	Kind  Kind
	State State
	// Emit requests code generation and linking once analysis is complete.
	Emit bool
	// Roots are the declarations code generation starts from. Empty means every declaration.
	Roots []Root
	Err   error
}

// Root names a declaration by file and name.
type Root struct {
	File string
	Name string
}

// New returns a program in the Accumulating state.
func New(id ID, name string, kind Kind) *Program {
	return &Program{ID: id, Name: name, Kind: kind, State: Accumulating}
}

// Advance moves the program to next. Only forward moves are allowed. Any non-terminal state
// may move to Aborted.
func (p *Program) Advance(next State) error {
	if p.State.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, p.State)
	}
	if next != Aborted && next <= p.State {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, next)
	}
	p.State = next
	return nil
}

// Abort moves the program to Aborted and records err. Aborting a terminal program is a no-op
// that returns false.
func (p *Program) Abort(err error) bool {
	if p.State.Terminal() {
		return false
	}
	p.State = Aborted
	p.Err = err
	return true
}

func (p *Program) String() string {
	return fmt.Sprintf("%s %q (%s)", p.Kind, p.Name, p.State)
}
