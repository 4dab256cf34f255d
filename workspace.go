package gorepl

import (
	"fmt"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkspaceDocument is one editor-visible document. Documents are never
// mutated in place; updates build a fresh document and swap the current
// pointer atomically, so concurrent readers always see a consistent
// snapshot.
type WorkspaceDocument struct {
	ID      string
	Project *WorkspaceProject
	Text    string
}

// WorkspaceProject mirrors one compilation link in the editor model. Each
// project references only its immediate predecessor, forming the same
// linear chain the engine maintains.
type WorkspaceProject struct {
	ID      string
	Ordinal int
	Prev    *WorkspaceProject
	// Text is the committed submission this project mirrors.
	Text       string
	References []*ReferenceArtifact
}

// Workspace keeps the editor model in lockstep with the evaluation chain.
// It is single-writer (updated only after a committed successful
// evaluation) and multi-reader.
type Workspace struct {
	catalog *ReferenceCatalog
	log     *zap.Logger
	current atomic.Pointer[WorkspaceDocument]
}

// NewWorkspace builds the initial empty project and document. A failure
// here is unrecoverable: every editor feature depends on a valid
// workspace.
func NewWorkspace(catalog *ReferenceCatalog, log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Workspace{catalog: catalog, log: log}
	doc, err := w.newDocument(nil, 0, "")
	if err != nil {
		return nil, fmt.Errorf("the workspace could not be initialized; editor features have nothing to run against: %w", err)
	}
	w.current.Store(doc)
	return w, nil
}

// Update appends a fresh project/document pair for a committed successful
// evaluation and swaps the current document to the new tip.
func (w *Workspace) Update(result Success) error {
	prev := w.current.Load()
	doc, err := w.newDocument(prev.Project, prev.Project.Ordinal+1, result.Input)
	if err != nil {
		return fmt.Errorf("updating workspace for submission: %w", err)
	}
	w.current.Store(doc)
	w.log.Debug("workspace advanced",
		zap.Int("ordinal", doc.Project.Ordinal),
		zap.Int("references", len(doc.Project.References)))
	return nil
}

func (w *Workspace) newDocument(prev *WorkspaceProject, ordinal int, text string) (*WorkspaceDocument, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("document text is not valid UTF-8")
	}
	// The editor model must only see shape-safe artifacts.
	var refs []*ReferenceArtifact
	for _, a := range w.catalog.ImplementationArtifacts() {
		if ref := w.catalog.EnsureReferenceArtifact(a); ref != nil {
			refs = append(refs, ref)
		}
	}
	project := &WorkspaceProject{
		ID:         uuid.New().String(),
		Ordinal:    ordinal,
		Prev:       prev,
		Text:       text,
		References: refs,
	}
	return &WorkspaceDocument{
		ID:      uuid.New().String(),
		Project: project,
		Text:    text,
	}, nil
}

// Current returns the committed tip document.
func (w *Workspace) Current() *WorkspaceDocument {
	return w.current.Load()
}

// WithText returns a throwaway variant of the current document carrying
// candidate input. It is never committed back; exploratory typing stays
// isolated from the committed chain.
func (w *Workspace) WithText(text string) *WorkspaceDocument {
	cur := w.current.Load()
	return &WorkspaceDocument{
		ID:      cur.ID,
		Project: cur.Project,
		Text:    text,
	}
}

// ChainTexts walks the project chain from the tip and returns every
// committed submission's text, oldest first.
func (w *Workspace) ChainTexts() []string {
	var texts []string
	for p := w.current.Load().Project; p != nil; p = p.Prev {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
		texts[i], texts[j] = texts[j], texts[i]
	}
	return texts
}
