package matcher

import (
	"strings"
	"unicode"
)

// NormalizeDescription lowercases, trims and collapses internal whitespace
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// wordTokens lowercases s, strips punctuation and splits on whitespace
func wordTokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Fields(cleaned)
}

// WordSet returns the distinct punctuation-free words of s longer than minLen
func WordSet(s string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordTokens(s) {
		if len([]rune(w)) > minLen {
			set[w] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |A ∩ B| / |A ∪ B| over the word sets of a and b. Two
// descriptions without words have similarity 0.
func Jaccard(a, b string) float64 {
	setA, setB := WordSet(a, 0), WordSet(b, 0)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// fieldSet returns the distinct words of the normalized s longer than
// minLen. Punctuation stays part of the word.
func fieldSet(s string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(NormalizeDescription(s)) {
		if len([]rune(w)) > minLen {
			set[w] = struct{}{}
		}
	}
	return set
}

// WordOverlap is the fraction of candidate's words (longer than minLen)
// that appear among existing's words. Words are split from the normalized
// descriptions, so "acme," and "acme" differ. It is asymmetric.
func WordOverlap(candidate, existing string, minLen int) float64 {
	cand := fieldSet(candidate, minLen)
	if len(cand) == 0 {
		return 0
	}
	exist := fieldSet(existing, minLen)

	found := 0
	for w := range cand {
		if _, ok := exist[w]; ok {
			found++
		}
	}
	return float64(found) / float64(len(cand))
}

// IsSignificantSubstring reports whether one of a and b contains the other
// and the shorter is at least ratio of the longer's length. Inputs are
// compared as given; normalize them first.
func IsSignificantSubstring(a, b string, ratio float64) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if shorter == "" {
		return false
	}
	if float64(len(shorter)) < ratio*float64(len(longer)) {
		return false
	}
	return strings.Contains(longer, shorter)
}
