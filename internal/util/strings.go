package util

import "strings"

// NormalizeKeyword lowercases and trims a keyword. Inner whitespace runs
// collapse to a single space so "Habit  Tracker" and "habit tracker" match.
func NormalizeKeyword(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DedupKeywords normalizes keywords and drops empties and repeats,
// preserving first-seen order.
func DedupKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = NormalizeKeyword(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
