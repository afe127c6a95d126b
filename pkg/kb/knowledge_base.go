// Package kb holds the immutable knowledge base of security rules, the
// remediation table keyed by consequence fact, and the catalog of facts a
// scanner may report.
package kb

import (
	"fmt"
	"maps"
	"slices"

	"github.com/duynguyendang/vultester/pkg/common/errors"
)

// KnowledgeBase is an ordered, read-only rule set. It is safe to share
// between goroutines; every accessor hands out copies.
type KnowledgeBase struct {
	version         string
	categories      []string
	rules           []Rule
	byID            map[string]int
	byConsequence   map[string][]int // declaration order
	recommendations map[string]string
}

// New validates rules and builds the lookup indexes.
func New(rules []Rule, recommendations map[string]string) (*KnowledgeBase, error) {
	if err := Validate(rules); err != nil {
		return nil, err
	}

	kb := &KnowledgeBase{
		rules:           make([]Rule, len(rules)),
		byID:            make(map[string]int, len(rules)),
		byConsequence:   make(map[string][]int),
		recommendations: maps.Clone(recommendations),
	}
	if kb.recommendations == nil {
		kb.recommendations = map[string]string{}
	}

	for i, r := range rules {
		kb.rules[i] = r.clone()
		kb.byID[r.ID] = i
		kb.byConsequence[r.Consequence] = append(kb.byConsequence[r.Consequence], i)
		if !slices.Contains(kb.categories, r.Category()) {
			kb.categories = append(kb.categories, r.Category())
		}
	}
	return kb, nil
}

// Version is the knowledge base document version ("" when unset).
func (kb *KnowledgeBase) Version() string { return kb.version }

// Len returns the number of rules.
func (kb *KnowledgeBase) Len() int { return len(kb.rules) }

// Categories returns the category tags in first-seen order.
func (kb *KnowledgeBase) Categories() []string {
	return slices.Clone(kb.categories)
}

// Rules returns a copy of every rule in declaration order.
func (kb *KnowledgeBase) Rules() []Rule {
	out := make([]Rule, len(kb.rules))
	for i, r := range kb.rules {
		out[i] = r.clone()
	}
	return out
}

// Rule looks a rule up by id.
func (kb *KnowledgeBase) Rule(id string) (Rule, bool) {
	i, ok := kb.byID[id]
	if !ok {
		return Rule{}, false
	}
	return kb.rules[i].clone(), true
}

// Find is Rule with a not-found error that carries close matches.
func (kb *KnowledgeBase) Find(id string) (Rule, error) {
	if r, ok := kb.Rule(id); ok {
		return r, nil
	}
	if hints := kb.Suggest(id); len(hints) > 0 {
		return Rule{}, fmt.Errorf("%w: rule %q (did you mean %v?)", errors.ErrNotFound, id, hints)
	}
	return Rule{}, fmt.Errorf("%w: rule %q", errors.ErrNotFound, id)
}

// Producers returns the rules whose consequence is fact, in declaration order.
func (kb *KnowledgeBase) Producers(fact string) []Rule {
	idx := kb.byConsequence[fact]
	out := make([]Rule, len(idx))
	for i, j := range idx {
		out[i] = kb.rules[j].clone()
	}
	return out
}

// FirstProducer returns the earliest declared rule concluding fact.
func (kb *KnowledgeBase) FirstProducer(fact string) (Rule, bool) {
	idx := kb.byConsequence[fact]
	if len(idx) == 0 {
		return Rule{}, false
	}
	return kb.rules[idx[0]].clone(), true
}

// Consequences returns each rule's consequence in declaration order.
func (kb *KnowledgeBase) Consequences() []string {
	out := make([]string, len(kb.rules))
	for i, r := range kb.rules {
		out[i] = r.Consequence
	}
	return out
}

// Conditions returns every distinct condition fact in first-seen order.
func (kb *KnowledgeBase) Conditions() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range kb.rules {
		for _, c := range r.Conditions {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Recommendation returns the remediation text for a consequence fact.
func (kb *KnowledgeBase) Recommendation(consequence string) (string, bool) {
	text, ok := kb.recommendations[consequence]
	return text, ok
}

// Suggest returns up to three rule ids close to id.
func (kb *KnowledgeBase) Suggest(id string) []string {
	ids := make([]string, len(kb.rules))
	for i, r := range kb.rules {
		ids[i] = r.ID
	}
	return Suggest(id, ids, 3)
}
