package gorepl

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/traefik/yaegi/stdlib"
)

// CompletionItem is one ranked completion suggestion. Description is lazy:
// most items are never inspected and building text for all of them per
// keystroke would be wasted work.
type CompletionItem struct {
	Start           int
	Length          int
	ReplacementText string
	DisplayText     string
	Description     func() string
}

var goKeywords = []string{
	"break", "case", "chan", "const", "continue", "default", "defer",
	"else", "fallthrough", "for", "func", "go", "goto", "if", "import",
	"interface", "map", "package", "range", "return", "select", "struct",
	"switch", "type", "var",
}

// CompletionService answers completion queries against the workspace's
// current document. The package symbol index loads in a background
// goroutine at construction so the first keystroke does not pay for it.
type CompletionService struct {
	ws    *Workspace
	cache *queryCache

	symbolsLock sync.RWMutex
	packages    []string            // package base names, sorted
	members     map[string][]string // package base name -> exported members
	loaded      chan struct{}
}

func NewCompletionService(ws *Workspace) *CompletionService {
	s := &CompletionService{
		ws:      ws,
		cache:   newQueryCache(time.Minute),
		members: make(map[string][]string),
		loaded:  make(chan struct{}),
	}
	go s.loadSymbols()
	return s
}

// loadSymbols indexes the interpreter's standard library symbol tables.
func (s *CompletionService) loadSymbols() {
	seen := map[string]bool{}
	for key, symbols := range stdlib.Symbols {
		name := key
		if i := strings.LastIndex(key, "/"); i >= 0 {
			name = key[i+1:]
		}
		members := make([]string, 0, len(symbols))
		for ident := range symbols {
			members = append(members, ident)
		}
		sort.Strings(members)

		s.symbolsLock.Lock()
		if !seen[name] {
			seen[name] = true
			s.packages = append(s.packages, name)
		}
		s.members[name] = append(s.members[name], members...)
		s.symbolsLock.Unlock()
	}
	s.symbolsLock.Lock()
	sort.Strings(s.packages)
	s.symbolsLock.Unlock()
	close(s.loaded)
}

// Complete returns ranked suggestions for the candidate input at the given
// caret. Results are cached per (document, text, caret).
func (s *CompletionService) Complete(text string, caret int) []CompletionItem {
	doc := s.ws.WithText(text)
	key := cacheKey(doc.ID, text, caret)
	if cached, ok := s.cache.get(key); ok {
		return cached.([]CompletionItem)
	}
	items := s.complete(text, caret)
	s.cache.put(key, items)
	return items
}

func (s *CompletionService) complete(text string, caret int) []CompletionItem {
	if caret > len(text) {
		caret = len(text)
	}
	prefix, qualifier := splitCompletionTarget(text[:caret])
	start := caret - len(prefix)

	var candidates []string
	if qualifier != "" {
		candidates = s.packageMembers(qualifier)
	} else {
		candidates = s.sessionBindings()
		candidates = append(candidates, s.packageNames()...)
		candidates = append(candidates, goKeywords...)
	}

	var items []CompletionItem
	seen := map[string]bool{}
	for _, c := range candidates {
		if !strings.HasPrefix(c, prefix) || seen[c] {
			continue
		}
		seen[c] = true
		display := c
		if qualifier != "" {
			display = qualifier + "." + c
		}
		items = append(items, CompletionItem{
			Start:           start,
			Length:          len(prefix),
			ReplacementText: c,
			DisplayText:     c,
			Description:     func() string { return display },
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ReplacementText < items[j].ReplacementText
	})
	return items
}

// Do implements the line editor's completion contract: candidate suffixes
// plus the length of the prefix being replaced.
func (s *CompletionService) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line)
	caret := len(string(line[:pos]))
	items := s.Complete(text, caret)
	var out [][]rune
	prefixLen := 0
	for _, item := range items {
		out = append(out, []rune(item.ReplacementText[item.Length:]))
		prefixLen = item.Length
	}
	return out, prefixLen
}

// sessionBindings parses every committed submission; a failing submission
// never reached the workspace, so its names never appear.
func (s *CompletionService) sessionBindings() []string {
	var names []string
	for _, text := range s.ws.ChainTexts() {
		names = append(names, extractBindings(text)...)
	}
	return names
}

func (s *CompletionService) packageNames() []string {
	s.symbolsLock.RLock()
	defer s.symbolsLock.RUnlock()
	out := make([]string, len(s.packages))
	copy(out, s.packages)
	return out
}

func (s *CompletionService) packageMembers(pkg string) []string {
	s.symbolsLock.RLock()
	defer s.symbolsLock.RUnlock()
	members := s.members[pkg]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// splitCompletionTarget scans back from the caret for the identifier being
// typed and an optional "pkg." qualifier before it.
func splitCompletionTarget(text string) (prefix, qualifier string) {
	end := len(text)
	i := end
	for i > 0 && isIdentRune(rune(text[i-1])) {
		i--
	}
	prefix = text[i:end]
	if i > 0 && text[i-1] == '.' {
		j := i - 1
		for j > 0 && isIdentRune(rune(text[j-1])) {
			j--
		}
		qualifier = text[j : i-1]
	}
	return prefix, qualifier
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// extractBindings collects the names one submission declares: top-level
// declarations, type and value specs, and short variable declarations.
func extractBindings(text string) []string {
	var names []string
	collect := func(f *ast.File) {
		ast.Inspect(f, func(n ast.Node) bool {
			switch node := n.(type) {
			case *ast.FuncDecl:
				if node.Name != nil && node.Name.Name != "_" {
					names = append(names, node.Name.Name)
				}
			case *ast.ValueSpec:
				for _, ident := range node.Names {
					if ident.Name != "_" {
						names = append(names, ident.Name)
					}
				}
			case *ast.TypeSpec:
				if node.Name != nil {
					names = append(names, node.Name.Name)
				}
			case *ast.AssignStmt:
				if node.Tok == token.DEFINE {
					for _, lhs := range node.Lhs {
						if ident, ok := lhs.(*ast.Ident); ok && ident.Name != "_" {
							names = append(names, ident.Name)
						}
					}
				}
			}
			return true
		})
	}

	fset := token.NewFileSet()
	if f, err := parser.ParseFile(fset, "submission.go", "package p\n"+text, parser.SkipObjectResolution); err == nil {
		collect(f)
		return names
	}
	wrapped := fmt.Sprintf("package p\nfunc _() {\n%s\n}", text)
	if f, err := parser.ParseFile(fset, "submission.go", wrapped, parser.SkipObjectResolution); err == nil {
		collect(f)
	}
	return names
}

// IsCompleteStatement reports whether the input parses as a syntactically
// complete statement or declaration. Incomplete input tells the line
// editor to insert a newline instead of submitting. Input that is complete
// but invalid still counts as complete: submitting it and letting the
// compiler report the error beats trapping the user in continuation mode.
func IsCompleteStatement(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "stmt.go", "package p\n"+trimmed, parser.SkipObjectResolution); err == nil {
		return true
	}
	const header = "package p\nfunc _() {\n"
	wrapped := header + trimmed + "\n}"
	_, err := parser.ParseFile(fset, "stmt.go", wrapped, parser.SkipObjectResolution)
	if err == nil {
		return true
	}
	// An error positioned past the user's text means the parser ran out
	// of input: the statement is still open. An earlier error means the
	// statement is finished, just wrong.
	userEnd := len(header) + len(trimmed)
	return firstErrorOffset(err, wrapped) < userEnd
}

func firstErrorOffset(err error, src string) int {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Pos.Offset
	}
	return len(src)
}
