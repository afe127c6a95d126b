package kb

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Suggest returns at most n candidates close to query, best first. A
// candidate qualifies when its edit distance is at most a third of the longer
// string, or when one string contains the other.
func Suggest(query string, candidates []string, n int) []string {
	if query == "" || n <= 0 {
		return nil
	}
	q := strings.ToLower(query)

	type match struct {
		value string
		dist  int
	}
	var matches []match
	for _, c := range candidates {
		if c == query {
			continue
		}
		cl := strings.ToLower(c)
		dist := levenshtein.Distance(q, cl, nil)
		maxLen := max(len(q), len(cl))
		if dist*3 <= maxLen || strings.Contains(cl, q) || strings.Contains(q, cl) {
			matches = append(matches, match{value: c, dist: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].dist < matches[j].dist
	})

	if len(matches) > n {
		matches = matches[:n]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.value
	}
	return out
}
