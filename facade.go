package gorepl

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// Repl is the externally visible entry point. Construction returns
// immediately; framework resolution, catalog construction and the engine
// warm-up run in a background task. Public operations await that task, or
// degrade gracefully when asked before it finishes.
type Repl struct {
	cfg     Config
	session *Session
	log     *zap.Logger

	catalog    *ReferenceCatalog
	packages   *PackageResolver
	resolver   *CompositeResolver
	engine     *Engine
	workspace  *Workspace
	completion *CompletionService
	highlight  *HighlightService
	symbols    *SymbolService
	disasm     *DisassemblyService
	history    *HistoryManager

	ready   chan struct{}
	initErr error
}

// Options beyond Config that carry live collaborators.
type ReplOptions struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Proxy      ProxyClient
	SourceLink SourceLinkResolver
}

// New starts a REPL session. The returned Repl is usable at once; editor
// queries answer conservatively until warm-up completes.
func New(cfg Config, opts ReplOptions) *Repl {
	cfg = cfg.withDefaults()
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	log, err := NewLogger(cfg.DataDir, cfg.Debug)
	if err != nil {
		log = zap.NewNop()
	}

	r := &Repl{
		cfg:     cfg,
		session: NewSession(),
		log:     log,
		ready:   make(chan struct{}),
	}
	go r.warmUp(opts)
	return r
}

// warmUp performs first-time initialization off the interactive loop: the
// first user keystroke may race with it, which is why the catalog and the
// package memoization map tolerate concurrent access.
func (r *Repl) warmUp(opts ReplOptions) {
	defer close(r.ready)

	for _, dir := range []string{r.cfg.packageCacheDir(), r.cfg.symbolCacheDir(), r.cfg.gopathDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.initErr = fmt.Errorf("creating data directory %s: %w", dir, err)
			return
		}
	}

	r.catalog = NewReferenceCatalog(NewFrameworkLocator(), r.log)
	if err := r.catalog.Configure(r.cfg.Framework, r.cfg.FrameworkVersion, nil); err != nil {
		// No valid assemblies to compile against; the session cannot
		// function.
		r.initErr = err
		return
	}

	proxy := opts.Proxy
	if proxy == nil {
		proxy = NewProxyClient(r.cfg.ProxyURL)
	}
	gopathSrc := r.cfg.gopathDir() + string(os.PathSeparator) + "src"
	if err := os.MkdirAll(gopathSrc, 0o755); err != nil {
		r.initErr = err
		return
	}
	r.packages = NewPackageResolver(proxy, r.cfg.packageCacheDir(), gopathSrc, opts.Stdout, r.log)

	locator := NewFrameworkLocator()
	r.resolver = NewCompositeResolver(
		&ModuleReferenceResolver{Packages: r.packages},
		&BuildReferenceResolver{Out: opts.Stdout, Log: r.log},
		&PathReferenceResolver{Catalog: r.catalog, Locator: locator},
	)

	engine, err := NewEngine(r.catalog, r.resolver, EngineOptions{
		GoPath: r.cfg.gopathDir(),
		Args:   r.cfg.Args,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		Log:    r.log,
	})
	if err != nil {
		r.initErr = err
		return
	}
	r.engine = engine

	ws, err := NewWorkspace(r.catalog, r.log)
	if err != nil {
		// All editor features depend on a valid workspace.
		r.initErr = err
		return
	}
	r.workspace = ws

	theme := ThemeByName(r.cfg.Theme)
	if r.cfg.ThemeFile != "" {
		if loaded, err := LoadTheme(r.cfg.ThemeFile); err == nil {
			theme = loaded
		} else {
			r.log.Warn("theme file rejected", zap.Error(err))
		}
	}

	r.completion = NewCompletionService(ws)
	r.highlight = NewHighlightService(ws, theme)
	sourceLink := opts.SourceLink
	if sourceLink == nil {
		sourceLink = NopSourceLinkResolver{}
	}
	r.symbols = NewSymbolService(ws, engine, sourceLink)
	r.disasm = NewDisassemblyService(r.catalog, r.cfg.DataDir, r.log)

	if h, err := NewHistoryManager(r.cfg.historyPath()); err == nil {
		r.history = h
	} else {
		r.log.Warn("history unavailable", zap.Error(err))
	}

	// Trial compile so the first real submission does not pay the
	// interpreter's cold-start cost.
	if _, err := engine.CompileTransient("1 + 1"); err != nil {
		r.log.Warn("warm-up trial compile failed", zap.Error(err))
	}
	r.log.Info("warm-up complete", zap.String("session", r.session.SessionID))
}

// Ready blocks until warm-up finishes or the context ends. It reports the
// unrecoverable initialization error, if any.
func (r *Repl) Ready(ctx context.Context) error {
	select {
	case <-r.ready:
		return r.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Repl) isReady() bool {
	select {
	case <-r.ready:
		return r.initErr == nil
	default:
		return false
	}
}

// Evaluate runs one submission. It waits for warm-up: evaluation is the
// one operation that cannot degrade.
func (r *Repl) Evaluate(ctx context.Context, text string) EvaluationResult {
	if err := r.Ready(ctx); err != nil {
		return Error{Input: text, Err: err}
	}
	start := time.Now()
	result := r.engine.Evaluate(ctx, text)

	if success, ok := result.(Success); ok {
		if err := r.workspace.Update(success); err != nil {
			r.log.Warn("workspace update failed", zap.Error(err))
		}
	}
	if r.history != nil {
		ordinal := 0
		if tip := r.engine.Tip(); tip != nil {
			ordinal = tip.Ordinal
		}
		if err := r.history.Insert(r.session.SessionID, ordinal, text, result, time.Since(start)); err != nil {
			r.log.Warn("history insert failed", zap.Error(err))
		}
	}
	return result
}

// Complete returns completion items, or none before warm-up finishes.
func (r *Repl) Complete(text string, caret int) []CompletionItem {
	if !r.isReady() {
		return nil
	}
	return r.completion.Complete(text, caret)
}

// Highlight returns colored spans, or none before warm-up finishes.
func (r *Repl) Highlight(text string) []HighlightedSpan {
	if !r.isReady() {
		return nil
	}
	return r.highlight.Highlight(text)
}

// IsCompleteStatement assumes completeness before warm-up finishes, so a
// slow start never traps the user in continuation mode.
func (r *Repl) IsCompleteStatement(text string) bool {
	if !r.isReady() {
		return true
	}
	return IsCompleteStatement(text)
}

// Disassemble renders the submission to the compiler's assembly listing.
func (r *Repl) Disassemble(ctx context.Context, code string, debugMode bool) EvaluationResult {
	if err := r.Ready(ctx); err != nil {
		return Error{Input: code, Err: err}
	}
	return r.disasm.Disassemble(ctx, code, debugMode)
}

// LookupSourceURL resolves the symbol at the caret to a source URL when
// the symbol server knows one.
func (r *Repl) LookupSourceURL(ctx context.Context, text string, caret int) (string, error) {
	if err := r.Ready(ctx); err != nil {
		return "", err
	}
	return r.symbols.LookupSourceURL(ctx, text, caret)
}

// SetTheme switches the highlight theme by name.
func (r *Repl) SetTheme(name string) {
	if r.isReady() {
		r.highlight.SetTheme(ThemeByName(name))
	}
}

// History returns recent submissions for display, newest last.
func (r *Repl) History(n int) []string {
	if !r.isReady() || r.history == nil {
		return nil
	}
	items, err := r.history.Recent(n)
	if err != nil {
		return nil
	}
	return items
}

// Session exposes identity data for the banner.
func (r *Repl) Session() *Session { return r.session }

// Close releases owned resources.
func (r *Repl) Close() error {
	<-r.ready
	var err error
	if r.history != nil {
		err = r.history.Close()
	}
	_ = r.log.Sync()
	return err
}
