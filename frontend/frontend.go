// Package frontend is a small compiler front end for Go-syntax source files. It runs the phases
// the scheduler hands out and reports what each declaration declares, uses and waits for.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
	"github.com/LegacyCodeHQ/sequencer/internal/ctxlog"
	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/scheduler"
	"github.com/LegacyCodeHQ/sequencer/unit"
	"github.com/LegacyCodeHQ/sequencer/vcs"
	"github.com/LegacyCodeHQ/sequencer/wait"
)

var (
	ErrUndeclared    = errors.New("undeclared name")
	ErrSelfReference = errors.New("name used in its own initializer")
	ErrNotParsed     = errors.New("file was not parsed")
	ErrUnknownPhase  = errors.New("unknown phase")
	ErrNoDeclaration = errors.New("no such declaration")
)

const defaultOverloadRetries = 2

// Options configures a Frontend.
type Options struct {
	Reader vcs.ContentReader
	// CheckAll requests type checking of every declaration as soon as its file is parsed.
	CheckAll bool
	// Target is the program add_file adds files to.
	Target program.ID
	// Send delivers metaprogram requests. When nil they are returned as unit requests.
	Send func(scheduler.Message)
	// OverloadRetries is how many times a metaprogram calling overload() asks to be retried.
	OverloadRetries int
}

// Frontend implements scheduler.Executor.
type Frontend struct {
	opts  Options
	store *store
}

var _ scheduler.Executor = (*Frontend)(nil)

// New returns a front end reading sources through opts.Reader.
func New(opts Options) *Frontend {
	if opts.Reader == nil {
		opts.Reader = vcs.FilesystemContentReader()
	}
	if opts.OverloadRetries <= 0 {
		opts.OverloadRetries = defaultOverloadRetries
	}
	return &Frontend{opts: opts, store: newStore()}
}

// Execute runs task's current phase.
func (f *Frontend) Execute(ctx context.Context, task scheduler.Task) unit.Outcome {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("phase", "unit", task.Unit, "target", task.Target.String(), "phase", task.Phase.String(), "attempt", task.Attempt)

	switch task.Phase {
	case unit.PhaseLoad:
		return f.load(task)
	case unit.PhaseLex:
		return f.lex(ctx, task)
	case unit.PhaseParse:
		return f.parse(ctx, task)
	case unit.PhaseTypeCheck:
		return f.typeCheck(task)
	case unit.PhaseGenerateIR:
		return f.generateIR(task)
	case unit.PhaseGenerateMachineCode:
		return f.generateMachineCode(task)
	case unit.PhaseLink:
		text := f.store.link(task.Program)
		logger.Info("linked", "program", task.Program, "bytes", len(text))
		return unit.Complete()
	case unit.PhaseSendOrReceiveMessage:
		return unit.Complete()
	case unit.PhaseRunMetaprogram:
		return f.runMetaprogram(task)
	default:
		return unit.Fail(fmt.Errorf("%w: %s", ErrUnknownPhase, task.Phase))
	}
}

// Close releases parser resources.
func (f *Frontend) Close() {
	f.store.close()
}

// Linked returns the linked output of a program.
func (f *Frontend) Linked(prog program.ID) (string, bool) {
	return f.store.linkedOutput(prog)
}

// IR returns the intermediate representation generated for a declaration.
func (f *Frontend) IR(prog program.ID, file, name string) (string, bool) {
	return f.store.artefact(f.store.ir, prog, depgraph.Symbol{Scope: file, Name: name}.Key())
}

func (f *Frontend) load(task scheduler.Task) unit.Outcome {
	content, err := f.opts.Reader(task.Target.File)
	if err != nil {
		return unit.Fail(err)
	}
	f.store.putSource(task.Target.File, content)
	return unit.Complete()
}

func (f *Frontend) lex(ctx context.Context, task scheduler.Task) unit.Outcome {
	content, ok := f.store.source(task.Target.File)
	if !ok {
		return unit.BlockOn(wait.OnFileStage(task.Target.File, unit.PhaseLoad.Stage()))
	}
	tree, err := lex(ctx, task.Target.File, content)
	if err != nil {
		return unit.Fail(err)
	}
	f.store.putTree(task.Target.File, tree)
	return unit.Complete()
}

func (f *Frontend) parse(ctx context.Context, task scheduler.Task) unit.Outcome {
	file := task.Target.File
	content, ok := f.store.source(file)
	if !ok {
		return unit.BlockOn(wait.OnFileStage(file, unit.PhaseLoad.Stage()))
	}
	tree, ok := f.store.takeTree(file)
	if !ok {
		var err error
		if tree, err = lex(ctx, file, content); err != nil {
			return unit.Fail(err)
		}
	}
	defer tree.Close()

	summary, err := summarize(file, tree, content)
	if err != nil {
		return unit.Fail(err)
	}
	f.store.putSummary(task.Program, summary)

	out := unit.Complete()
	for _, imp := range summary.Imports {
		out.Requests = append(out.Requests, unit.Request{Target: unit.FileTarget(importPath(file, imp)), Purpose: unit.Parse})
	}
	for _, d := range summary.Decls {
		out.Declares = append(out.Declares, unit.Declaration{Name: d.Name, Kind: d.Kind})
		target := unit.DeclTarget(file, d.Name)
		if f.opts.CheckAll {
			out.Requests = append(out.Requests, unit.Request{Target: target, Purpose: unit.TypeCheck})
		}
		if d.Message {
			out.Requests = append(out.Requests, unit.Request{Target: target, Purpose: unit.SendOrReceiveMessage})
		}
	}
	return out
}

// awaitParsed blocks on every file in paths reaching Parse and requests their parses.
func awaitParsed(paths ...string) unit.Outcome {
	out := unit.Outcome{Status: unit.Blocked}
	for _, path := range paths {
		out.Waits = append(out.Waits, wait.OnFileStage(path, unit.PhaseParse.Stage()))
		out.Requests = append(out.Requests, unit.Request{Target: unit.FileTarget(path), Purpose: unit.Parse})
	}
	return out
}

// typeCheck resolves every name a declaration references against its file and the files that
// file imports. Globals and the functions they use must have been type checked first. A function
// waits for the functions it calls unless the callee calls back into it.
func (f *Frontend) typeCheck(task scheduler.Task) unit.Outcome {
	file, name := task.Target.File, task.Target.Name
	summary, ok := f.store.parsedSummary(task.Program, file)
	if !ok {
		return awaitParsed(file)
	}
	d := summary.decl(name)
	if d == nil {
		return unit.Fail(fmt.Errorf("%w: %s", ErrNoDeclaration, task.Target))
	}
	if missing := f.store.unparsedImports(task.Program, file); len(missing) > 0 {
		return awaitParsed(missing...)
	}
	self := depgraph.Symbol{Scope: file, Name: name}

	var out unit.Outcome
	if d.Kind == depgraph.KindFunction {
		out.Uses = append(out.Uses, depgraph.TypeUse(d.Signature))
	} else if d.Kind == depgraph.KindGlobal && d.Signature.Head != "" {
		out.Uses = append(out.Uses, depgraph.TypeUse(d.Signature))
	}

	for _, ref := range d.Refs {
		if ref == name {
			if d.Kind == depgraph.KindGlobal {
				return unit.Fail(fmt.Errorf("%w: %s", ErrSelfReference, task.Target))
			}
			// recursion
			continue
		}
		dep, depFile, found := f.store.resolve(task.Program, file, ref)
		if !found {
			sym := wait.OnSymbol(ref)
			if wait.Contains(task.Cleared, sym) {
				return unit.Fail(fmt.Errorf("%w: %s in %s", ErrUndeclared, ref, task.Target))
			}
			out.Waits = append(out.Waits, sym)
			continue
		}
		sym := depgraph.Symbol{Scope: depFile, Name: ref}
		switch dep.Kind {
		case depgraph.KindType:
			out.Uses = append(out.Uses, depgraph.DeclaredTypeUse(sym))
			continue
		case depgraph.KindGlobal:
			out.Uses = append(out.Uses, depgraph.GlobalUse(sym))
		default:
			out.Uses = append(out.Uses, depgraph.FunctionUse(sym))
		}
		typed := wait.OnDeclTyped(sym.Key())
		if wait.Contains(task.Cleared, typed) {
			continue
		}
		out.Requests = append(out.Requests, unit.Request{Target: unit.DeclTarget(depFile, ref), Purpose: unit.TypeCheck})
		if d.Kind == depgraph.KindFunction && dep.Kind == depgraph.KindFunction {
			cyclic, missing := f.calls(task.Program, sym, self)
			if len(missing) > 0 {
				return awaitParsed(missing...)
			}
			if cyclic {
				// mutual recursion: the callee's signature is all this body needs
				continue
			}
		}
		out.Waits = append(out.Waits, typed)
	}

	for _, ref := range d.TypeRefs {
		if ref == name {
			continue
		}
		if dep, depFile, found := f.store.resolve(task.Program, file, ref); found && dep.Kind == depgraph.KindType {
			out.Uses = append(out.Uses, depgraph.DeclaredTypeUse(depgraph.Symbol{Scope: depFile, Name: ref}))
			continue
		}
		sym := wait.OnSymbol(ref)
		if wait.Contains(task.Cleared, sym) {
			return unit.Fail(fmt.Errorf("%w: type %s in %s", ErrUndeclared, ref, task.Target))
		}
		out.Waits = append(out.Waits, sym)
	}

	for _, id := range d.Awaits {
		msg := wait.OnMessage(id)
		if !wait.Contains(task.Cleared, msg) {
			out.Waits = append(out.Waits, msg)
		}
	}

	if len(out.Waits) > 0 {
		// uses are reported once the phase completes
		return unit.Outcome{Status: unit.Blocked, Waits: out.Waits, Requests: out.Requests}
	}
	out.Status = unit.Completed
	return out
}

// calls reports whether from reaches to through function calls. Files the walk needs that are
// not parsed for prog yet are returned instead; the answer is only final when none are.
func (f *Frontend) calls(prog program.ID, from, to depgraph.Symbol) (bool, []string) {
	var missing []string
	seen := map[string]bool{from.Key(): true}
	stack := []depgraph.Symbol{from}
	for len(stack) > 0 {
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if sym == to {
			return true, nil
		}
		summary, ok := f.store.parsedSummary(prog, sym.Scope)
		if !ok {
			missing = append(missing, sym.Scope)
			continue
		}
		if unparsed := f.store.unparsedImports(prog, sym.Scope); len(unparsed) > 0 {
			missing = append(missing, unparsed...)
			continue
		}
		d := summary.decl(sym.Name)
		if d == nil || d.Kind != depgraph.KindFunction {
			continue
		}
		for _, ref := range d.Refs {
			dep, depFile, found := f.store.resolve(prog, sym.Scope, ref)
			if !found || dep.Kind != depgraph.KindFunction {
				continue
			}
			next := depgraph.Symbol{Scope: depFile, Name: ref}
			if !seen[next.Key()] {
				seen[next.Key()] = true
				stack = append(stack, next)
			}
		}
	}
	return false, missing
}

func (f *Frontend) generateIR(task scheduler.Task) unit.Outcome {
	summary, ok := f.store.summary(task.Target.File)
	if !ok {
		return unit.Fail(fmt.Errorf("%w: %s", ErrNotParsed, task.Target.File))
	}
	d := summary.decl(task.Target.Name)
	if d == nil {
		return unit.Fail(fmt.Errorf("%w: %s", ErrNoDeclaration, task.Target))
	}

	key := task.Target.Symbol().Key()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s : %s", d.Kind, key, d.Signature)
	for _, ref := range d.Refs {
		fmt.Fprintf(&b, "\n  ref %s", ref)
	}
	f.store.putArtefact(f.store.ir, task.Program, key, b.String())
	return unit.Complete()
}

func (f *Frontend) generateMachineCode(task scheduler.Task) unit.Outcome {
	key := task.Target.Symbol().Key()
	ir, ok := f.store.artefact(f.store.ir, task.Program, key)
	if !ok {
		return unit.Fail(fmt.Errorf("%w: no IR for %s", ErrNotParsed, key))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", key)
	for _, line := range strings.Split(ir, "\n") {
		fmt.Fprintf(&b, "\t; %s\n", strings.TrimSpace(line))
	}
	b.WriteString("\tret\n")
	f.store.putArtefact(f.store.machine, task.Program, key, b.String())
	return unit.Complete()
}

// runMetaprogram executes the compile-time calls of a metaprogram entry point.
func (f *Frontend) runMetaprogram(task scheduler.Task) unit.Outcome {
	summary, ok := f.store.summary(task.Target.File)
	if !ok {
		return unit.Fail(fmt.Errorf("%w: %s", ErrNotParsed, task.Target.File))
	}
	d := summary.decl(task.Target.Name)
	if d == nil {
		return unit.Fail(fmt.Errorf("%w: %s", ErrNoDeclaration, task.Target))
	}
	if d.Overload && task.Attempt < f.opts.OverloadRetries {
		return unit.RetryLater()
	}

	out := unit.Complete()
	for _, rel := range d.AddFiles {
		path := filepath.ToSlash(filepath.Join(filepath.Dir(task.Target.File), rel))
		if f.opts.Send != nil {
			f.opts.Send(scheduler.Message{Kind: scheduler.AddFile, Program: f.opts.Target, File: path})
			continue
		}
		out.Requests = append(out.Requests, unit.Request{Program: f.opts.Target, Target: unit.FileTarget(path), Purpose: unit.Parse})
	}
	return out
}
