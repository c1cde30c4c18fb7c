package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/novalearn/nova-coach/internal/content"
)

func TestFormatResultsEmpty(t *testing.T) {
	if got := FormatResults(nil, 100); got != "No relevant results found." {
		t.Fatalf("empty results = %q", got)
	}
}

func TestFormatResultsDeterministic(t *testing.T) {
	results := []Result{
		{Source: content.SourceOfficialDocs, Title: "Slices", Content: "A slice is a view.", Similarity: 0.9},
		{Source: content.SourceArticle, Title: "Go slices in depth", Author: "Jane", Content: "Len and cap differ.", Similarity: 0.8},
	}
	a := FormatResults(results, 500)
	b := FormatResults(results, 500)
	if a != b {
		t.Fatalf("same inputs must render byte-identical output")
	}
	if !strings.Contains(a, "## Slices\n") {
		t.Fatalf("missing title heading in %q", a)
	}
	if !strings.Contains(a, "By: Jane\n") {
		t.Fatalf("missing author line in %q", a)
	}
	if !strings.Contains(a, "\n---\n") {
		t.Fatalf("missing separator between results in %q", a)
	}
	if strings.Index(a, "Slices") > strings.Index(a, "Go slices in depth") {
		t.Fatalf("results must render in rank order")
	}
}

func TestFormatResultsStopsAtBudget(t *testing.T) {
	first := Result{Title: "A", Content: strings.Repeat("x", 40)}
	second := Result{Title: "B", Content: strings.Repeat("y", 400)}

	// Budget fits the first result but not the second.
	got := FormatResults([]Result{first, second}, 20) // 80 chars
	if !strings.Contains(got, "## A") {
		t.Fatalf("first result must be included: %q", got)
	}
	if strings.Contains(got, "## B") {
		t.Fatalf("second result must be dropped, not truncated: %q", got)
	}
	if strings.Contains(got, "[truncated]") {
		t.Fatalf("dropping later results must not add a truncation marker")
	}
}

func TestFormatResultsTruncatesOversizedFirst(t *testing.T) {
	first := Result{Title: "Huge", Content: strings.Repeat("z", 4000)}

	got := FormatResults([]Result{first}, 10) // 40 chars
	if !strings.HasSuffix(got, "[truncated]") {
		t.Fatalf("oversized first result must end with the marker: %q", got)
	}
	if len(got) > 10*CharsPerToken {
		t.Fatalf("truncated output length %d exceeds the budget", len(got))
	}
	if !strings.HasPrefix(got, "## Huge") {
		t.Fatalf("truncation must keep the head of the rendering: %q", got)
	}
}

func TestFormatResultsTruncatesOnRuneBoundary(t *testing.T) {
	// Multi-byte content: a naive byte cut would split a rune.
	first := Result{Title: "Unicode", Content: strings.Repeat("héllo wörld ", 200)}

	for budget := 8; budget <= 16; budget++ {
		got := FormatResults([]Result{first}, budget)
		if !utf8.ValidString(got) {
			t.Fatalf("budget %d: truncated output is not valid UTF-8: %q", budget, got)
		}
		if !strings.HasSuffix(got, "[truncated]") {
			t.Fatalf("budget %d: missing truncation marker: %q", budget, got)
		}
		if len(got) > budget*CharsPerToken {
			t.Fatalf("budget %d: output length %d exceeds the budget", budget, len(got))
		}
	}
}

func TestFormatResultsZeroBudgetFallsBack(t *testing.T) {
	r := Result{Title: "T", Content: "short"}
	if got := FormatResults([]Result{r}, 0); !strings.Contains(got, "short") {
		t.Fatalf("zero budget must fall back to the default, got %q", got)
	}
}
