package gorepl

import (
	"sort"
	"testing"
)

func newTestCompletion(t *testing.T) (*CompletionService, *Workspace) {
	t.Helper()
	ws := newTestWorkspace(t)
	s := NewCompletionService(ws)
	<-s.loaded
	return s, ws
}

func itemTexts(items []CompletionItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.ReplacementText)
	}
	return out
}

func TestCompleteKeywordPrefix(t *testing.T) {
	s, _ := newTestCompletion(t)
	got := itemTexts(s.Complete("fun", 3))
	found := false
	for _, text := range got {
		if text == "func" {
			found = true
		}
	}
	if !found {
		t.Errorf("completions for \"fun\" = %v, want func among them", got)
	}
}

func TestCompletePackageMembers(t *testing.T) {
	s, _ := newTestCompletion(t)
	items := s.Complete("strings.ToUp", 12)
	got := itemTexts(items)
	if len(got) == 0 {
		t.Fatal("no completions for strings.ToUp")
	}
	for _, text := range got {
		if text == "ToUpper" {
			if items[0].Start != len("strings.") {
				t.Errorf("Start = %d, want %d", items[0].Start, len("strings."))
			}
			if items[0].Length != len("ToUp") {
				t.Errorf("Length = %d, want %d", items[0].Length, len("ToUp"))
			}
			return
		}
	}
	t.Errorf("completions = %v, want ToUpper among them", got)
}

func TestCompleteSessionBindings(t *testing.T) {
	s, ws := newTestCompletion(t)
	if err := ws.Update(Success{Input: "counter := 5"}); err != nil {
		t.Fatal(err)
	}
	got := itemTexts(s.Complete("coun", 4))
	if len(got) == 0 || got[0] != "counter" {
		t.Errorf("completions = %v, want counter first", got)
	}
}

func TestCompleteResultsAreSorted(t *testing.T) {
	s, _ := newTestCompletion(t)
	got := itemTexts(s.Complete("s", 1))
	if !sort.StringsAreSorted(got) {
		t.Errorf("completions not sorted: %v", got)
	}
}

func TestCompleteCacheIsolation(t *testing.T) {
	s, _ := newTestCompletion(t)
	one := s.Complete("c", 1)
	two := s.Complete("c1", 2)
	if len(one) == 0 {
		t.Fatal("no completions for \"c\"")
	}
	for _, item := range two {
		if item.Length != 2 {
			t.Errorf("completion for \"c1\" carries prefix length %d, want 2", item.Length)
		}
	}
	// The shorter query again, after the longer one was cached.
	if again := s.Complete("c", 1); len(again) != len(one) {
		t.Errorf("repeat query returned %d items, first returned %d", len(again), len(one))
	}
}

func TestCompleteCaretBeyondText(t *testing.T) {
	s, _ := newTestCompletion(t)
	// Must clamp, not panic.
	s.Complete("fo", 99)
}

func TestDoReturnsSuffixes(t *testing.T) {
	s, _ := newTestCompletion(t)
	suffixes, prefixLen := s.Do([]rune("strings.ToUp"), 12)
	if prefixLen != 4 {
		t.Errorf("prefixLen = %d, want 4", prefixLen)
	}
	found := false
	for _, suf := range suffixes {
		if string(suf) == "per" {
			found = true
		}
	}
	if !found {
		t.Errorf("suffixes = %q, want per among them", suffixes)
	}
}

func TestSplitCompletionTarget(t *testing.T) {
	tests := []struct {
		in        string
		prefix    string
		qualifier string
	}{
		{"fmt.Pri", "Pri", "fmt"},
		{"x := fmt.Pri", "Pri", "fmt"},
		{"fmt.", "", "fmt"},
		{"hello", "hello", ""},
		{"a + b", "b", ""},
		{"", "", ""},
		{"1 + strings.Conta", "Conta", "strings"},
	}
	for _, tt := range tests {
		prefix, qualifier := splitCompletionTarget(tt.in)
		if prefix != tt.prefix || qualifier != tt.qualifier {
			t.Errorf("splitCompletionTarget(%q) = (%q, %q), want (%q, %q)",
				tt.in, prefix, qualifier, tt.prefix, tt.qualifier)
		}
	}
}

func TestExtractBindings(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"x := 5", []string{"x"}},
		{"var y int = 2", []string{"y"}},
		{"func add(a, b int) int { return a + b }", []string{"add"}},
		{"type point struct{ x, y int }", []string{"point"}},
		{"a, _ := 1, 2", []string{"a"}},
		{"x = 5", nil},
		{"not valid go at all (", nil},
	}
	for _, tt := range tests {
		got := extractBindings(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("extractBindings(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("extractBindings(%q) = %v, want %v", tt.text, got, tt.want)
				break
			}
		}
	}
}

func TestIsCompleteStatement(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"x := 5", true},
		{"x :=", false},
		{"if x == 4 {", false},
		{"if x == 4 { return }", true},
		{"func f() {", false},
		{"func f() { return }", true},
		{"5 +", false},
		{"", true},
		{"   ", true},
		{"fmt.Println(\"hi\")", true},
		{"fmt.Println(", false},
		{"x +* 3", true}, // complete but invalid; submit and let the compiler complain
		{"type t struct {", false},
	}
	for _, tt := range tests {
		if got := IsCompleteStatement(tt.text); got != tt.want {
			t.Errorf("IsCompleteStatement(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
