package utils

import (
	"strings"
	"unicode/utf8"
)

// DefaultSimilarityThreshold is the minimum Similarity for a fuzzy hit
const DefaultSimilarityThreshold = 0.8

// Levenshtein returns the edit distance between a and b, counted in runes
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity is 1 - distance/longerLength, in [0, 1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	longer := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longer == 0 {
		return 1
	}
	return float64(longer-Levenshtein(a, b)) / float64(longer)
}

// FuzzyMatch reports whether text and query match case-insensitively, either
// by containment in either direction or by Similarity at or above threshold.
// An empty query never matches.
func FuzzyMatch(text, query string, threshold float64) bool {
	t := Normalize(text)
	q := Normalize(query)
	if q == "" || t == "" {
		return false
	}
	if strings.Contains(t, q) || strings.Contains(q, t) {
		return true
	}
	return Similarity(t, q) >= threshold
}

// Normalize lowercases and trims s
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ContainsFold reports whether substr occurs in s ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Truncate shortens s to at most n runes, appending "..." when cut
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
