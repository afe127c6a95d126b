package repl

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/duynguyendang/vultester/pkg/kb"
)

// scoreThreshold filters out irrelevant matches.
const scoreThreshold = 0.5

// MatchResult is a fact scored against a search query.
type MatchResult struct {
	Fact  kb.FactOption
	Score float64
}

// FindFactsBySimilarity ranks catalog facts against query using the best of
// the fact id and its label. Results are best first, at most limit long.
func FindFactsBySimilarity(query string, facts []kb.FactOption, limit int) []MatchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || len(facts) == 0 {
		return nil
	}
	queryTokens := tokenize(query)

	var results []MatchResult
	for _, f := range facts {
		score := math.Max(
			calculateScore(query, queryTokens, f.Fact),
			calculateScore(query, queryTokens, f.Label),
		)
		if score >= scoreThreshold {
			results = append(results, MatchResult{Fact: f, Score: score})
		}
	}

	// Stable so catalog order breaks ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// calculateScore returns a similarity in [0, 1]: 1 for equality, 0.95 for a
// substring, else the better of whole string and per token edit similarity.
func calculateScore(query string, queryTokens map[string]bool, text string) float64 {
	lower := strings.ToLower(text)
	if query == lower {
		return 1.0
	}
	if strings.Contains(lower, query) {
		return 0.95
	}

	global := similarity(query, lower)

	textTokens := tokenize(lower)
	var total float64
	for qt := range queryTokens {
		best := 0.0
		if textTokens[qt] {
			best = 1.0
		} else {
			for tt := range textTokens {
				best = math.Max(best, similarity(qt, tt))
			}
		}
		total += best
	}
	var tokenScore float64
	if len(queryTokens) > 0 {
		tokenScore = total / float64(len(queryTokens))
	}

	return math.Max(global, tokenScore)
}

// similarity is one minus the edit distance normalized by the longer string.
func similarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return math.Max(0, 1-float64(levenshtein.Distance(a, b, nil))/float64(longest))
}

// tokenize splits on anything that is not a letter or digit. Fact ids are
// snake_case, labels are words, so "ssh root" matches ssh_root_login_enabled.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		tokens[strings.ToLower(tok)] = true
	}
	return tokens
}
