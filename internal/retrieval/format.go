package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/novalearn/nova-coach/internal/content"
)

// Token budget is approximated as characters: 1 token ≈ 4 chars.
const (
	CharsPerToken      = 4
	DefaultTokenBudget = 2000

	truncationMarker = "\n…[truncated]"
	noResultsMessage = "No relevant results found."
)

// Result is one ranked retrieval hit.
type Result struct {
	Source     content.Source `json:"source"`
	Title      string         `json:"title"`
	Author     string         `json:"author,omitempty"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	TokenCount int            `json:"token_count"`
}

const resultSeparator = "\n---\n"

func renderResult(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", r.Title)
	if r.Author != "" {
		fmt.Fprintf(&b, "By: %s\n", r.Author)
	}
	b.WriteString(r.Content)
	return b.String()
}

// FormatResults renders ranked results into a prompt block, appending in
// rank order until the next result would exceed the budget. When even the
// first result does not fit, its content is cut to the remaining budget
// minus a reserve for the truncation marker, so the output is never empty
// while at least one result exists. Pure function of its inputs.
func FormatResults(results []Result, budgetTokens int) string {
	if budgetTokens <= 0 {
		budgetTokens = DefaultTokenBudget
	}
	budgetChars := budgetTokens * CharsPerToken

	if len(results) == 0 {
		return noResultsMessage
	}

	var b strings.Builder
	used := 0
	for i, r := range results {
		entry := renderResult(r)
		sep := ""
		if i > 0 {
			sep = resultSeparator
		}

		if used+len(sep)+len(entry) <= budgetChars {
			b.WriteString(sep)
			b.WriteString(entry)
			used += len(sep) + len(entry)
			continue
		}

		if i == 0 {
			// First result alone exceeds the budget: truncate in place,
			// backing up to a rune boundary so the cut never emits a
			// partial UTF-8 sequence.
			keep := budgetChars - len(truncationMarker)
			if keep < 0 {
				keep = 0
			}
			if keep > len(entry) {
				keep = len(entry)
			}
			for keep > 0 && keep < len(entry) && !utf8.RuneStart(entry[keep]) {
				keep--
			}
			b.WriteString(entry[:keep])
			b.WriteString(truncationMarker)
		}
		break
	}
	return b.String()
}
