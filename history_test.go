package gorepl

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func newTestHistory(t *testing.T) *HistoryManager {
	t.Helper()
	h, err := NewHistoryManager(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("NewHistoryManager failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryInsertAndDump(t *testing.T) {
	h := newTestHistory(t)
	session := "s1"
	inputs := []string{"x := 1", "x + 1", "boom("}
	results := []EvaluationResult{
		Success{Input: inputs[0]},
		Success{Input: inputs[1]},
		Error{Input: inputs[2], Err: errors.New("syntax")},
	}
	for i, input := range inputs {
		if err := h.Insert(session, i+1, input, results[i], 5*time.Millisecond); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := h.Dump()
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if diff := deep.Equal(got, inputs); diff != nil {
		t.Errorf("Dump mismatch: %v", diff)
	}
}

func TestHistoryRecent(t *testing.T) {
	h := newTestHistory(t)
	for i, input := range []string{"a", "b", "c", "d"} {
		if err := h.Insert("s1", i+1, input, Success{Input: input}, 0); err != nil {
			t.Fatal(err)
		}
	}
	got, err := h.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if diff := deep.Equal(got, []string{"c", "d"}); diff != nil {
		t.Errorf("Recent mismatch: %v", diff)
	}
}

func TestHistoryOutcomeClassification(t *testing.T) {
	h := newTestHistory(t)
	entries := []struct {
		result EvaluationResult
		want   string
	}{
		{Success{Input: "1"}, "success"},
		{Error{Input: "x(", Err: errors.New("bad")}, "error"},
		{Cancelled{Input: "for {}"}, "cancelled"},
	}
	for i, e := range entries {
		if err := h.Insert("s1", i+1, "input", e.result, 0); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := h.db.Query("SELECT outcome FROM submission ORDER BY id")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	i := 0
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			t.Fatal(err)
		}
		if outcome != entries[i].want {
			t.Errorf("entry %d outcome = %q, want %q", i, outcome, entries[i].want)
		}
		i++
	}
	if i != len(entries) {
		t.Errorf("scanned %d rows, want %d", i, len(entries))
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")
	h, err := NewHistoryManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Insert("s1", 1, "x := 1", Success{Input: "x := 1"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewHistoryManager(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Dump()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "x := 1" {
		t.Errorf("history lost across reopen: %v", got)
	}
}
