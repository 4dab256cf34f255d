package gorepl

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// HighlightedSpan is one colored region of input text. Offsets are in
// runes, matching what the line editor renders with.
type HighlightedSpan struct {
	Start  int
	Length int
	Color  string
}

// HighlightService classifies input text into colored spans using the
// current theme. Results are cached per (document, text) with a short TTL.
type HighlightService struct {
	ws    *Workspace
	cache *queryCache

	mu    sync.RWMutex
	theme *Theme
}

func NewHighlightService(ws *Workspace, theme *Theme) *HighlightService {
	if theme == nil {
		theme = ThemeByName("default")
	}
	return &HighlightService{
		ws:    ws,
		theme: theme,
		cache: newQueryCache(time.Minute),
	}
}

func (h *HighlightService) SetTheme(t *Theme) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.theme = t
}

func (h *HighlightService) Theme() *Theme {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.theme
}

// Highlight tokenizes the candidate text against a throwaway document
// variant and maps each classified span through the theme.
func (h *HighlightService) Highlight(text string) []HighlightedSpan {
	doc := h.ws.WithText(text)
	key := cacheKey(doc.ID, text, len(text))
	if cached, ok := h.cache.get(key); ok {
		return cached.([]HighlightedSpan)
	}

	spans := h.highlight(text)
	h.cache.put(key, spans)
	return spans
}

func (h *HighlightService) highlight(text string) []HighlightedSpan {
	lexer := lexers.Get("go")
	if lexer == nil {
		return nil
	}
	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return nil
	}
	theme := h.Theme()

	var spans []HighlightedSpan
	offset := 0
	for token := iterator(); token != chroma.EOF; token = iterator() {
		length := utf8.RuneCountInString(token.Value)
		if length == 0 {
			continue
		}
		spans = append(spans, HighlightedSpan{
			Start:  offset,
			Length: length,
			Color:  theme.ColorFor(classifyToken(token.Type)),
		})
		offset += length
	}
	return spans
}

// classifyToken maps a lexer token type to theme category candidates, most
// specific first.
func classifyToken(t chroma.TokenType) []string {
	switch {
	case t == chroma.KeywordType:
		return []string{"type", "keyword"}
	case t.InCategory(chroma.Keyword):
		return []string{"keyword"}
	case t.InSubCategory(chroma.LiteralString):
		return []string{"string", "literal"}
	case t.InSubCategory(chroma.LiteralNumber):
		return []string{"number", "literal"}
	case t.InCategory(chroma.Comment):
		return []string{"comment"}
	case t.InCategory(chroma.Operator), t.InCategory(chroma.Punctuation):
		return []string{"operator"}
	case t == chroma.NameFunction:
		return []string{"function", "name"}
	case t.InCategory(chroma.Name):
		return []string{"name"}
	}
	return nil
}
