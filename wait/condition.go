// Package wait describes the conditions a suspended compilation unit waits on.
package wait

import "fmt"

// Stage is a completed phase of a file unit, as an ordinal of the unit phase enum.
type Stage int

// Kind selects how a Condition is satisfied.
type Kind uint8

const (
	// FileStage is satisfied once the named file has finished Stage.
	FileStage Kind = iota + 1
	// Symbol is satisfied once some file of the program declares Target.
	Symbol
	// DeclTyped is satisfied once the declaration keyed by Target has been type checked.
	DeclTyped
	// Message is satisfied once the external message Target has been posted.
	Message
	// Nothing is never satisfied.
	Nothing
)

func (k Kind) String() string {
	switch k {
	case FileStage:
		return "file-stage"
	case Symbol:
		return "symbol"
	case DeclTyped:
		return "decl-typed"
	case Message:
		return "message"
	case Nothing:
		return "nothing"
	default:
		return "unknown"
	}
}

// Condition is one prerequisite of a waiting unit. It is comparable and used as a map key.
type Condition struct {
	Kind   Kind
	Target string
	Stage  Stage
}

// OnFileStage waits until file has finished stage.
func OnFileStage(file string, stage Stage) Condition {
	return Condition{Kind: FileStage, Target: file, Stage: stage}
}

// OnSymbol waits until name is declared by a file of the program.
func OnSymbol(name string) Condition {
	return Condition{Kind: Symbol, Target: name}
}

// OnDeclTyped waits until the declaration with the given key has been type checked.
func OnDeclTyped(key string) Condition {
	return Condition{Kind: DeclTyped, Target: key}
}

// OnMessage waits until the external message id is posted.
func OnMessage(id string) Condition {
	return Condition{Kind: Message, Target: id}
}

// Never returns the condition that is never satisfied.
func Never() Condition {
	return Condition{Kind: Nothing}
}

func (c Condition) String() string {
	switch c.Kind {
	case FileStage:
		return fmt.Sprintf("file-stage(%s, %d)", c.Target, c.Stage)
	case Nothing:
		return "nothing"
	default:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Target)
	}
}

// Contains reports whether conds includes c.
func Contains(conds []Condition, c Condition) bool {
	for _, x := range conds {
		if x == c {
			return true
		}
	}
	return false
}
