package unit

import "github.com/LegacyCodeHQ/sequencer/wait"

// Purpose is the end goal of a compilation unit. It is fixed at creation.
type Purpose uint8

const (
	Load Purpose = iota + 1
	Lex
	Parse
	TypeCheck
	GenerateIR
	GenerateMachineCode
	Link
	SendOrReceiveMessage
	RunMetaprogram
)

var purposeNames = map[Purpose]string{
	Load:                 "load",
	Lex:                  "lex",
	Parse:                "parse",
	TypeCheck:            "type-check",
	GenerateIR:           "generate-ir",
	GenerateMachineCode:  "generate-machine-code",
	Link:                 "link",
	SendOrReceiveMessage: "send-or-receive-message",
	RunMetaprogram:       "run-metaprogram",
}

func (p Purpose) String() string {
	if name, ok := purposeNames[p]; ok {
		return name
	}
	return "unknown"
}

// Phase is the step a unit is currently at.
type Phase uint8

const (
	PhaseLoad Phase = iota + 1
	PhaseLex
	PhaseParse
	PhaseTypeCheck
	PhaseGenerateIR
	PhaseGenerateMachineCode
	PhaseLink
	PhaseSendOrReceiveMessage
	PhaseRunMetaprogram
	PhaseDone
)

func (p Phase) String() string {
	if p == PhaseDone {
		return "done"
	}
	return Purpose(p).String()
}

// Stage converts the phase to the ordinal used by file-stage wait conditions.
func (p Phase) Stage() wait.Stage {
	return wait.Stage(p)
}

var sequences = map[Purpose][]Phase{
	Load:                 {PhaseLoad},
	Lex:                  {PhaseLoad, PhaseLex},
	Parse:                {PhaseLoad, PhaseLex, PhaseParse},
	TypeCheck:            {PhaseTypeCheck},
	GenerateIR:           {PhaseTypeCheck, PhaseGenerateIR},
	GenerateMachineCode:  {PhaseTypeCheck, PhaseGenerateIR, PhaseGenerateMachineCode},
	Link:                 {PhaseLink},
	SendOrReceiveMessage: {PhaseTypeCheck, PhaseSendOrReceiveMessage},
	RunMetaprogram:       {PhaseTypeCheck, PhaseGenerateIR, PhaseRunMetaprogram},
}

// Phases returns the ordered phases a unit with this purpose goes through.
func (p Purpose) Phases() []Phase {
	return append([]Phase(nil), sequences[p]...)
}

// TargetKind returns the kind of target units of this purpose operate on.
func (p Purpose) TargetKind() TargetKind {
	switch p {
	case Load, Lex, Parse:
		return File
	case Link:
		return ProgramTarget
	default:
		return Decl
	}
}

// First returns the first phase of the sequence that is not in done, or PhaseDone.
func (p Purpose) First(done PhaseSet) Phase {
	for _, ph := range sequences[p] {
		if !done.Has(ph) {
			return ph
		}
	}
	return PhaseDone
}

// Next returns the phase after current in the sequence, or PhaseDone.
func (p Purpose) Next(current Phase) Phase {
	seq := sequences[p]
	for i, ph := range seq {
		if ph == current && i+1 < len(seq) {
			return seq[i+1]
		}
	}
	return PhaseDone
}

// PhaseSet is a set of completed phases.
type PhaseSet uint16

// Has reports whether ph is in the set.
func (s PhaseSet) Has(ph Phase) bool {
	return s&(1<<ph) != 0
}

// With returns the set with ph added.
func (s PhaseSet) With(ph Phase) PhaseSet {
	return s | 1<<ph
}
