package gorepl

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ReferenceCatalog owns the session-wide, ever-growing sets of reference
// and implementation artifacts, the tracked import directives, and the
// resolved shared frameworks. It is mutated from both the background
// warm-up task and the foreground evaluation path, so every operation is
// safe under concurrent access.
type ReferenceCatalog struct {
	locator *FrameworkLocator
	log     *zap.Logger

	mu          sync.RWMutex
	frameworks  []*SharedFramework
	imports     map[string]string // import path -> alias ("" when none)
	searchPaths []string

	refs  *ArtifactSet
	impls *ArtifactSet
}

func NewReferenceCatalog(locator *FrameworkLocator, log *zap.Logger) *ReferenceCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReferenceCatalog{
		locator: locator,
		log:     log,
		imports: make(map[string]string),
		refs:    NewArtifactSet(),
		impls:   NewArtifactSet(),
	}
}

// Configure resolves the requested shared framework and seeds the catalog
// with its artifact sets. The base framework is always loaded; a non-base
// framework is loaded on top of it. A framework that cannot be located is
// unrecoverable and the error propagates.
func (c *ReferenceCatalog) Configure(framework, version string, imports []string) error {
	names := []string{FrameworkStd}
	if framework != "" && framework != FrameworkStd {
		names = append(names, framework)
	}
	for _, name := range names {
		f, err := c.locator.Resolve(name, version)
		if err != nil {
			return fmt.Errorf("configuring reference catalog: %w", err)
		}
		c.mu.Lock()
		c.frameworks = append(c.frameworks, f)
		c.mu.Unlock()
		c.refs.Add(f.ReferenceArtifacts...)
		c.impls.Add(f.ImplementationArtifacts...)
		c.log.Info("shared framework resolved",
			zap.String("name", f.Name),
			zap.String("version", f.Version),
			zap.String("root", f.Root))
	}
	c.TrackImports(imports, nil)
	return nil
}

// AddImplementationReferences merges newly discovered implementation
// artifacts and records their containing directories as additional search
// paths for later relative-path resolution.
func (c *ReferenceCatalog) AddImplementationReferences(artifacts []*ReferenceArtifact) {
	added := 0
	for _, a := range artifacts {
		if a == nil || a.Kind != Implementation {
			continue
		}
		added += c.impls.Add(a)
		dir := filepath.Dir(a.Path)
		c.mu.Lock()
		if !containsString(c.searchPaths, dir) {
			c.searchPaths = append(c.searchPaths, dir)
		}
		c.mu.Unlock()
	}
	if added > 0 {
		c.log.Debug("implementation references merged", zap.Int("added", added))
	}
}

// EnsureReferenceArtifact converts an implementation artifact into its
// reference-assembly counterpart so the editor model never sees
// implementation-only artifacts. Artifacts belonging to an already-loaded
// shared framework return nil: the framework's own reference set already
// covers them and a second copy would introduce conflicting identities.
// The conversion is best-effort; when no counterpart exists the
// implementation artifact itself is returned.
func (c *ReferenceCatalog) EnsureReferenceArtifact(a *ReferenceArtifact) *ReferenceArtifact {
	if a == nil {
		return nil
	}
	c.mu.RLock()
	frameworks := c.frameworks
	c.mu.RUnlock()
	for _, f := range frameworks {
		if f.Contains(a) {
			return nil
		}
	}
	if a.Kind == ReferenceOnly {
		return a
	}
	base := a.BaseName()
	for _, f := range frameworks {
		for _, ref := range f.ReferenceArtifacts {
			if strings.TrimSuffix(ref.BaseName(), ".txt") == base {
				return ref
			}
		}
	}
	// No shape-only counterpart known; the source itself is still valid
	// analysis input.
	converted := *a
	converted.Kind = ReferenceOnly
	c.refs.Add(&converted)
	return &converted
}

// TrackImports unions newly seen import directives into the session-wide
// set. Every later submission implicitly sees previously imported paths.
func (c *ReferenceCatalog) TrackImports(paths []string, aliases map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		alias := ""
		if aliases != nil {
			alias = aliases[p]
		}
		if existing, ok := c.imports[p]; !ok || (alias != "" && existing == "") {
			c.imports[p] = alias
		}
	}
}

// Imports returns the tracked import paths in stable order.
func (c *ReferenceCatalog) Imports() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.imports))
	for p := range c.imports {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ImportClause renders the tracked imports as Go source suitable for
// prepending to a compilation.
func (c *ReferenceCatalog) ImportClause() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.imports) == 0 {
		return ""
	}
	paths := make([]string, 0, len(c.imports))
	for p := range c.imports {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var b strings.Builder
	b.WriteString("import (\n")
	for _, p := range paths {
		if alias := c.imports[p]; alias != "" {
			fmt.Fprintf(&b, "\t%s %q\n", alias, p)
		} else {
			fmt.Fprintf(&b, "\t%q\n", p)
		}
	}
	b.WriteString(")\n")
	return b.String()
}

func (c *ReferenceCatalog) ReferenceArtifacts() []*ReferenceArtifact {
	return c.refs.Items()
}

func (c *ReferenceCatalog) ImplementationArtifacts() []*ReferenceArtifact {
	return c.impls.Items()
}

func (c *ReferenceCatalog) SearchPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.searchPaths))
	copy(out, c.searchPaths)
	return out
}

func (c *ReferenceCatalog) Frameworks() []*SharedFramework {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SharedFramework, len(c.frameworks))
	copy(out, c.frameworks)
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
