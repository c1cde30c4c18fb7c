package memory

import (
	"strings"
	"unicode"
)

// Normalize lowers, trims, collapses whitespace and strips trailing
// punctuation so that cosmetic variants of the same fact compare equal.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r)
	})
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(s)) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the normalized token sets of a and b.
// Symmetric and deterministic; 1.0 for two empty strings.
func Jaccard(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	inter := 0
	for tok := range as {
		if _, ok := bs[tok]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// NearDuplicate reports whether two fact contents describe the same fact:
// normalized equality, or token Jaccard similarity at or above threshold.
func NearDuplicate(a, b string, threshold float64) bool {
	if Normalize(a) == Normalize(b) {
		return true
	}
	return Jaccard(a, b) >= threshold
}
