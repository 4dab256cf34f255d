package gorepl

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ArtifactKind distinguishes shape-only artifacts, safe to hand to the
// editor model, from full implementation artifacts loadable by the
// interpreter.
type ArtifactKind int

const (
	ReferenceOnly ArtifactKind = iota
	Implementation
)

func (k ArtifactKind) String() string {
	if k == ReferenceOnly {
		return "reference"
	}
	return "implementation"
}

// ReferenceArtifact is one resolved library unit: a package source
// directory, an export archive, or an API surface file.
type ReferenceArtifact struct {
	// Display is the identity of the artifact: a cleaned file path or a
	// logical name such as "std:fmt". Equality is by normalized Display,
	// never by pointer, because the same library can be reached through
	// different resolution routes.
	Display string
	// Path is the on-disk location of the artifact's metadata.
	Path string
	// Docs is an optional documentation payload location.
	Docs string
	Kind ArtifactKind
}

// NewArtifact builds an artifact whose display identity is the cleaned path.
func NewArtifact(path string, kind ArtifactKind) *ReferenceArtifact {
	clean := filepath.Clean(path)
	return &ReferenceArtifact{Display: clean, Path: clean, Kind: kind}
}

func normalizeDisplay(display string) string {
	d := strings.TrimRight(display, "/")
	if strings.ContainsAny(d, `/\`) && !strings.HasPrefix(d, "std:") {
		d = filepath.Clean(d)
	}
	return d
}

// Equal reports whether two artifacts denote the same library unit.
func (a *ReferenceArtifact) Equal(b *ReferenceArtifact) bool {
	if a == nil || b == nil {
		return a == b
	}
	return normalizeDisplay(a.Display) == normalizeDisplay(b.Display)
}

// BaseName is the file or directory name portion of the artifact identity.
func (a *ReferenceArtifact) BaseName() string {
	return filepath.Base(a.Display)
}

// ArtifactSet is a set of artifacts keyed by normalized display identity,
// safe for concurrent use. The warm-up task and the foreground evaluation
// path both mutate it.
type ArtifactSet struct {
	mu    sync.RWMutex
	items map[string]*ReferenceArtifact
}

func NewArtifactSet(artifacts ...*ReferenceArtifact) *ArtifactSet {
	s := &ArtifactSet{items: make(map[string]*ReferenceArtifact)}
	s.Add(artifacts...)
	return s
}

// Add inserts artifacts, de-duplicating by identity. It reports how many
// were actually new.
func (s *ArtifactSet) Add(artifacts ...*ReferenceArtifact) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		key := normalizeDisplay(a.Display)
		if _, ok := s.items[key]; !ok {
			s.items[key] = a
			added++
		}
	}
	return added
}

func (s *ArtifactSet) Contains(a *ReferenceArtifact) bool {
	if a == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[normalizeDisplay(a.Display)]
	return ok
}

func (s *ArtifactSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a stable snapshot sorted by display identity.
func (s *ArtifactSet) Items() []*ReferenceArtifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ReferenceArtifact, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Display < out[j].Display })
	return out
}
