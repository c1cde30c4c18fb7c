package memory

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Prefers  Python examples. ", "prefers python examples"},
		{"UPPER case!!", "upper case"},
		{"already normal", "already normal"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestJaccardSymmetric(t *testing.T) {
	a := "struggles with pointers in Go"
	b := "struggles with Go pointers"
	if Jaccard(a, b) != Jaccard(b, a) {
		t.Fatalf("jaccard must be symmetric")
	}
	if Jaccard(a, a) != 1 {
		t.Fatalf("jaccard of identical strings must be 1")
	}
}

func TestNearDuplicate(t *testing.T) {
	if !NearDuplicate("Prefers Python examples", "prefers python examples.", 0.85) {
		t.Fatalf("normalized-equal contents must match")
	}
	if NearDuplicate("prefers python examples", "asked about goroutine leaks", 0.85) {
		t.Fatalf("unrelated contents must not match")
	}
	// High overlap but not identical: threshold decides.
	a := "asked how dependency inversion works in practice"
	b := "asked how dependency inversion works"
	if !NearDuplicate(a, b, 0.7) {
		t.Fatalf("expected match at threshold 0.7")
	}
	if NearDuplicate(a, b, 0.99) {
		t.Fatalf("expected no match at threshold 0.99")
	}
}

func TestCategorySlots(t *testing.T) {
	if !CategoryCurrentFocus.SingleSlot() || !CategoryPreferredExamples.SingleSlot() {
		t.Fatalf("focus and examples categories are single-slot")
	}
	for _, c := range []Category{CategoryTopicDiscussed, CategoryConceptExplained,
		CategoryStruggleIdentified, CategoryStrengthDemonstrated, CategoryQuestionAsked} {
		if c.SingleSlot() {
			t.Fatalf("%s must be multi-slot", c)
		}
	}
	if Category("banana").Valid() {
		t.Fatalf("unknown category must be invalid")
	}
}
