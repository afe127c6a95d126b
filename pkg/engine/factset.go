package engine

import "slices"

// FactSet is the working memory of one run: a set of facts that remembers
// insertion order. Facts are never removed.
type FactSet struct {
	order []string
	index map[string]struct{}
}

// NewFactSet returns an empty fact set.
func NewFactSet() *FactSet {
	return &FactSet{index: make(map[string]struct{})}
}

// Add inserts fact and reports whether it was new.
func (s *FactSet) Add(fact string) bool {
	if _, ok := s.index[fact]; ok {
		return false
	}
	s.index[fact] = struct{}{}
	s.order = append(s.order, fact)
	return true
}

// Has reports whether fact is known.
func (s *FactSet) Has(fact string) bool {
	_, ok := s.index[fact]
	return ok
}

// HasAll reports whether every fact in facts is known.
func (s *FactSet) HasAll(facts []string) bool {
	for _, f := range facts {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// Len returns the number of facts.
func (s *FactSet) Len() int { return len(s.order) }

// Facts returns a copy of the facts in insertion order.
func (s *FactSet) Facts() []string {
	return slices.Clone(s.order)
}
