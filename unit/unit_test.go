package unit_test

import (
	"errors"
	"testing"

	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurpose_Phases(t *testing.T) {
	tests := []struct {
		purpose  unit.Purpose
		expected []unit.Phase
	}{
		{unit.Load, []unit.Phase{unit.PhaseLoad}},
		{unit.Lex, []unit.Phase{unit.PhaseLoad, unit.PhaseLex}},
		{unit.Parse, []unit.Phase{unit.PhaseLoad, unit.PhaseLex, unit.PhaseParse}},
		{unit.TypeCheck, []unit.Phase{unit.PhaseTypeCheck}},
		{unit.GenerateIR, []unit.Phase{unit.PhaseTypeCheck, unit.PhaseGenerateIR}},
		{unit.GenerateMachineCode, []unit.Phase{unit.PhaseTypeCheck, unit.PhaseGenerateIR, unit.PhaseGenerateMachineCode}},
		{unit.Link, []unit.Phase{unit.PhaseLink}},
		{unit.SendOrReceiveMessage, []unit.Phase{unit.PhaseTypeCheck, unit.PhaseSendOrReceiveMessage}},
		{unit.RunMetaprogram, []unit.Phase{unit.PhaseTypeCheck, unit.PhaseGenerateIR, unit.PhaseRunMetaprogram}},
	}

	for _, tt := range tests {
		t.Run(tt.purpose.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.purpose.Phases())
		})
	}
}

func TestNew_StartsAtFirstUncompletedPhase(t *testing.T) {
	done := unit.PhaseSet(0).With(unit.PhaseLoad).With(unit.PhaseLex)

	u := unit.New(1, 1, unit.FileTarget("a.go"), unit.Parse, done)

	assert.Equal(t, unit.PhaseParse, u.Phase)
	assert.Equal(t, unit.Ready, u.State)
}

func TestNew_SupersededUnitIsDone(t *testing.T) {
	done := unit.PhaseSet(0).With(unit.PhaseLoad).With(unit.PhaseLex).With(unit.PhaseParse)

	u := unit.New(1, 1, unit.FileTarget("a.go"), unit.Lex, done)

	assert.Equal(t, unit.PhaseDone, u.Phase)
	assert.Equal(t, unit.Done, u.State)
}

func TestNew_SiblingBranchesDoNotSupersede(t *testing.T) {
	// SendOrReceiveMessage finished, GenerateIR did not.
	done := unit.PhaseSet(0).With(unit.PhaseTypeCheck).With(unit.PhaseSendOrReceiveMessage)

	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.GenerateIR, done)

	assert.Equal(t, unit.PhaseGenerateIR, u.Phase)
}

func TestApply_CompletedAdvancesThroughSequence(t *testing.T) {
	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.GenerateIR, 0)
	u.State = unit.Running
	u.Cleared = []wait.Condition{wait.OnSymbol("x")}

	phase := u.Apply(unit.Complete())

	assert.Equal(t, unit.PhaseTypeCheck, phase)
	assert.Equal(t, unit.PhaseGenerateIR, u.Phase)
	assert.Equal(t, unit.Ready, u.State)
	assert.Empty(t, u.Cleared)

	u.State = unit.Running
	u.Apply(unit.Complete())

	assert.Equal(t, unit.PhaseDone, u.Phase)
	assert.Equal(t, unit.Done, u.State)
}

func TestApply_BlockedKeepsPhaseAndDedupsWaits(t *testing.T) {
	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.TypeCheck, 0)
	u.State = unit.Running

	phase := u.Apply(unit.BlockOn(wait.OnSymbol("x"), wait.OnSymbol("x"), wait.OnMessage("m")))

	assert.Equal(t, unit.PhaseTypeCheck, phase)
	assert.Equal(t, unit.PhaseTypeCheck, u.Phase)
	assert.Equal(t, unit.Waiting, u.State)
	assert.Equal(t, []wait.Condition{wait.OnSymbol("x"), wait.OnMessage("m")}, u.Waits)
}

func TestApply_BlockedOnNothingParks(t *testing.T) {
	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.TypeCheck, 0)

	u.Apply(unit.BlockOn())

	assert.Equal(t, unit.Parked, u.State)
	assert.Equal(t, 1, u.Attempts)
}

func TestBlock_OnNothingCountsEveryAttempt(t *testing.T) {
	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.TypeCheck, 0)

	u.Block()
	u.Block()
	u.Apply(unit.BlockOn())

	assert.Equal(t, 3, u.Attempts)
	assert.Empty(t, u.Waits)
}

func TestApply_RetryParks(t *testing.T) {
	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.TypeCheck, 0)

	u.Apply(unit.RetryLater())
	u.Apply(unit.RetryLater())

	assert.Equal(t, unit.Parked, u.State)
	assert.Equal(t, 2, u.Attempts)
	assert.Equal(t, unit.PhaseTypeCheck, u.Phase)
}

func TestApply_FatalCancels(t *testing.T) {
	u := unit.New(1, 1, unit.FileTarget("a.go"), unit.Parse, 0)
	cause := errors.New("syntax error")

	u.Apply(unit.Fail(cause))

	assert.Equal(t, unit.Cancelled, u.State)
	assert.ErrorIs(t, u.Err, cause)
}

func TestClear_ConjunctionNeedsEveryCondition(t *testing.T) {
	u := unit.New(1, 1, unit.DeclTarget("a.go", "f"), unit.TypeCheck, 0)
	u.Block(wait.OnSymbol("a"), wait.OnSymbol("b"))

	require.False(t, u.Clear(wait.OnSymbol("a")))
	require.False(t, u.Clear(wait.OnSymbol("unrelated")))
	assert.True(t, u.Clear(wait.OnSymbol("b")))
	assert.Equal(t, []wait.Condition{wait.OnSymbol("a"), wait.OnSymbol("b")}, u.Cleared)
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "a.go", unit.FileTarget("a.go").String())
	assert.Equal(t, "a.go:f", unit.DeclTarget("a.go", "f").String())
	assert.Equal(t, "<program>", unit.LinkTarget().String())
}
