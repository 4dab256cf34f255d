package gorepl

import "testing"

func TestArtifactEqualNormalizesPaths(t *testing.T) {
	testCases := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"identical", "/lib/pkg", "/lib/pkg", true},
		{"trailing slash", "/lib/pkg/", "/lib/pkg", true},
		{"redundant segment", "/lib/./pkg", "/lib/pkg", true},
		{"different", "/lib/pkg", "/lib/other", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := &ReferenceArtifact{Display: tc.a}
			b := &ReferenceArtifact{Display: tc.b}
			if got := a.Equal(b); got != tc.want {
				t.Errorf("Equal(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestArtifactSetDeduplicates(t *testing.T) {
	s := NewArtifactSet()
	if added := s.Add(NewArtifact("/lib/pkg", Implementation)); added != 1 {
		t.Fatalf("first Add = %d, want 1", added)
	}
	// The same library discovered through a different resolution route
	// must not produce a second entry.
	if added := s.Add(&ReferenceArtifact{Display: "/lib/./pkg", Path: "/lib/./pkg", Kind: Implementation}); added != 0 {
		t.Errorf("duplicate Add = %d, want 0", added)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestArtifactSetItemsSorted(t *testing.T) {
	s := NewArtifactSet(
		NewArtifact("/b", Implementation),
		NewArtifact("/a", Implementation),
		NewArtifact("/c", ReferenceOnly),
	)
	items := s.Items()
	if len(items) != 3 {
		t.Fatalf("Items len = %d, want 3", len(items))
	}
	for i, want := range []string{"/a", "/b", "/c"} {
		if items[i].Display != want {
			t.Errorf("Items[%d] = %q, want %q", i, items[i].Display, want)
		}
	}
}

func TestArtifactKindString(t *testing.T) {
	if ReferenceOnly.String() != "reference" || Implementation.String() != "implementation" {
		t.Errorf("unexpected kind strings: %q, %q", ReferenceOnly, Implementation)
	}
}
