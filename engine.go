package gorepl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"gorepl/directive"
)

// CompilationLink is one node in the incremental compilation chain. The
// chain is strictly linear: each successful submission appends one link
// holding its compiled program and a back-pointer to its predecessor.
// Failed and cancelled submissions append nothing.
type CompilationLink struct {
	Ordinal int
	Input   string
	Program *interp.Program
	Prev    *CompilationLink
}

// EngineOptions configures a new evaluation engine.
type EngineOptions struct {
	// GoPath is the tree the interpreter imports third-party packages
	// from; the package resolver links installed modules into it.
	GoPath string
	// Args is exposed to evaluated code under both the args and Args
	// bindings.
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
	Log    *zap.Logger
}

// Engine owns the incrementally-growing compilation chain for one session.
// Submissions evaluate strictly in order under an internal lock; prior
// successful bindings stay visible to later submissions through the shared
// interpreter state.
type Engine struct {
	catalog  *ReferenceCatalog
	resolver *CompositeResolver
	log      *zap.Logger
	out      io.Writer

	mu     sync.Mutex
	interp *interp.Interpreter
	tip    *CompilationLink
	count  int
}

func NewEngine(catalog *ReferenceCatalog, resolver *CompositeResolver, opts EngineOptions) (*Engine, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	i := interp.New(interp.Options{
		GoPath:       opts.GoPath,
		Stdout:       stdout,
		Stderr:       stderr,
		Unrestricted: true,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading standard library symbols: %w", err)
	}

	e := &Engine{
		catalog:  catalog,
		resolver: resolver,
		log:      log,
		out:      stdout,
		interp:   i,
	}
	if err := e.bindArgs(opts.Args); err != nil {
		return nil, err
	}
	return e, nil
}

// bindArgs exposes the program arguments under two names; both spellings
// have users and cost nothing to keep.
func (e *Engine) bindArgs(args []string) error {
	var b strings.Builder
	b.WriteString("var Args = []string{")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", a)
	}
	b.WriteString("}\nvar args = Args\n")
	if _, err := e.interp.Eval(b.String()); err != nil {
		return fmt.Errorf("binding program arguments: %w", err)
	}
	return nil
}

// Evaluate runs one submission against the current chain tip and
// classifies the outcome. Reference directives are resolved and merged
// before compilation, since the compiler's reference set is fixed per
// compile.
func (e *Engine) Evaluate(ctx context.Context, text string) EvaluationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return Success{Input: text}
	}

	scanned := directive.Scan(text)
	var newRefs []*ReferenceArtifact
	for _, ref := range scanned.Refs {
		artifacts, err := e.resolver.Resolve(ctx, ref)
		if err != nil {
			if isCancellation(err) {
				return Cancelled{Input: text}
			}
			return Error{Input: text, Err: err}
		}
		if len(artifacts) == 0 {
			fmt.Fprintf(e.out, "warning: reference %q did not resolve\n", ref)
			continue
		}
		e.catalog.AddImplementationReferences(artifacts)
		newRefs = append(newRefs, artifacts...)
	}
	if len(scanned.ImportOrder) > 0 {
		e.catalog.TrackImports(scanned.ImportOrder, scanned.Imports)
	}

	code := directive.StripRefs(text)
	if strings.TrimSpace(code) == "" {
		return Success{Input: text, References: newRefs}
	}

	program, err := e.interp.Compile(code)
	if err != nil {
		e.log.Debug("compile failed", zap.Error(err))
		return Error{Input: text, Err: err}
	}

	value, err := e.interp.ExecuteWithContext(ctx, program)
	if err != nil {
		if isCancellation(err) {
			return Cancelled{Input: text}
		}
		e.log.Debug("execution failed", zap.Error(err))
		return Error{Input: text, Err: err}
	}

	e.count++
	e.tip = &CompilationLink{Ordinal: e.count, Input: text, Program: program, Prev: e.tip}

	result := Success{Input: text, References: newRefs}
	if value.IsValid() {
		result.ReturnValue = value.Interface()
		result.HasValue = true
	}
	return result
}

// CompileTransient typechecks code against the current chain tip without
// executing it or appending a link. Disassembly and symbol lookup use it
// for exploratory compiles.
func (e *Engine) CompileTransient(code string) (*interp.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interp.Compile(code)
}

// Tip returns the current chain tip, or nil before the first successful
// submission.
func (e *Engine) Tip() *CompilationLink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tip
}

// isCancellation reports whether an evaluation fault is a cooperative
// cancellation, even when wrapped inside an interpreter panic. Cancellation
// renders without an error trace, so the distinction is user-visible.
func isCancellation(err error) bool {
	for err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var p interp.Panic
		if errors.As(err, &p) {
			inner, ok := p.Value.(error)
			if !ok {
				return false
			}
			err = inner
			continue
		}
		err = errors.Unwrap(err)
	}
	return false
}
