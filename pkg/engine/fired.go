package engine

import (
	"fmt"
	"slices"
)

// firedRules records which rules fired during a run, in firing order.
type firedRules struct {
	order []string
	set   map[string]struct{}
}

func newFiredRules() *firedRules {
	return &firedRules{set: make(map[string]struct{})}
}

func (f *firedRules) Has(id string) bool {
	_, ok := f.set[id]
	return ok
}

// Mark records id as fired. A rule fires at most once per run; a second call
// means a strategy skipped its fired check and is a bug.
func (f *firedRules) Mark(id string) {
	if f.Has(id) {
		panic(fmt.Sprintf("engine: rule %s fired twice in one run", id))
	}
	f.set[id] = struct{}{}
	f.order = append(f.order, id)
}

func (f *firedRules) IDs() []string {
	return slices.Clone(f.order)
}
