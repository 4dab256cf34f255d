package gorepl

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SourceLinkResolver is the black-box symbol-server collaborator: given a
// symbol key it may know the URL of the defining source.
type SourceLinkResolver interface {
	ResolveSourceURL(ctx context.Context, symbolKey string) (string, error)
}

// SymbolService answers "what is under the caret" queries against the
// workspace and delegates source lookup to the resolver.
type SymbolService struct {
	ws       *Workspace
	engine   *Engine
	resolver SourceLinkResolver
	cache    *queryCache
}

func NewSymbolService(ws *Workspace, engine *Engine, resolver SourceLinkResolver) *SymbolService {
	return &SymbolService{
		ws:       ws,
		engine:   engine,
		resolver: resolver,
		cache:    newQueryCache(time.Minute),
	}
}

// SymbolAt resolves the qualified symbol name at the caret, e.g.
// "strings.Replace" or a session binding name. Empty when the caret is not
// on an identifier.
func (s *SymbolService) SymbolAt(text string, caret int) string {
	doc := s.ws.WithText(text)
	key := cacheKey(doc.ID, text, caret)
	if cached, ok := s.cache.get(key); ok {
		return cached.(string)
	}
	symbol := symbolAt(text, caret)
	s.cache.put(key, symbol)
	return symbol
}

// LookupSourceURL asks the source-link collaborator for the defining
// source of the symbol at the caret. The typecheck against the chain is
// exploratory and never advances it.
func (s *SymbolService) LookupSourceURL(ctx context.Context, text string, caret int) (string, error) {
	symbol := s.SymbolAt(text, caret)
	if symbol == "" {
		return "", fmt.Errorf("no symbol at position %d", caret)
	}
	if s.engine != nil {
		// Best-effort: a symbol that does not typecheck still gets a
		// lookup attempt, the server may know it.
		_, _ = s.engine.CompileTransient(text)
	}
	if s.resolver == nil {
		return "", fmt.Errorf("no source-link resolver configured")
	}
	return s.resolver.ResolveSourceURL(ctx, symbol)
}

// symbolAt extends the identifier under the caret in both directions and
// joins a dotted qualifier when present.
func symbolAt(text string, caret int) string {
	if caret > len(text) {
		caret = len(text)
	}
	start := caret
	for start > 0 && isIdentRune(rune(text[start-1])) {
		start--
	}
	end := caret
	for end < len(text) && isIdentRune(rune(text[end])) {
		end++
	}
	if start == end {
		return ""
	}
	name := text[start:end]
	if start > 0 && text[start-1] == '.' {
		q := start - 1
		for q > 0 && isIdentRune(rune(text[q-1])) {
			q--
		}
		if q < start-1 {
			return text[q:start-1] + "." + name
		}
	}
	return name
}

// NopSourceLinkResolver never knows a URL. It stands in when no symbol
// server is configured.
type NopSourceLinkResolver struct{}

func (NopSourceLinkResolver) ResolveSourceURL(_ context.Context, symbolKey string) (string, error) {
	return "", fmt.Errorf("no source known for %s", strings.TrimSpace(symbolKey))
}
