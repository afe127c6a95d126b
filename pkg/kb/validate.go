package kb

import (
	stderrors "errors"
	"fmt"

	"github.com/duynguyendang/vultester/pkg/common/errors"
)

// Validate checks the structural invariants of a rule list: unique non-empty
// ids, at least one condition, a consequence, a known severity, and no rule
// that lists its own consequence as a condition. All problems are reported.
func Validate(rules []Rule) error {
	var errs []error
	seen := make(map[string]int, len(rules))

	for i, r := range rules {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule #%d: empty id", i))
		} else if prev, dup := seen[r.ID]; dup {
			errs = append(errs, fmt.Errorf("rule #%d: duplicate id %q (first at #%d)", i, r.ID, prev))
		} else {
			seen[r.ID] = i
		}

		if len(r.Conditions) == 0 {
			errs = append(errs, fmt.Errorf("rule %s: no conditions", r.ID))
		}
		for _, c := range r.Conditions {
			if c == "" {
				errs = append(errs, fmt.Errorf("rule %s: empty condition", r.ID))
			}
		}
		if r.Consequence == "" {
			errs = append(errs, fmt.Errorf("rule %s: empty consequence", r.ID))
		} else if r.HasCondition(r.Consequence) {
			errs = append(errs, fmt.Errorf("rule %s: consequence %q is also a condition", r.ID, r.Consequence))
		}
		if !r.Severity.Valid() {
			errs = append(errs, fmt.Errorf("rule %s: unknown severity %q", r.ID, r.Severity))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: knowledge base: %w", errors.ErrInvalidInput, stderrors.Join(errs...))
	}
	return nil
}

// Cycles returns the fact cycles in the conditions -> consequence graph, each
// as the list of facts along the loop with the first fact repeated at the
// end. Cycles are legal; the engine tolerates them.
func (kb *KnowledgeBase) Cycles() [][]string {
	// Adjacency in declaration order keeps the output deterministic.
	adj := make(map[string][]string)
	var nodes []string
	seenNode := make(map[string]bool)
	addNode := func(f string) {
		if !seenNode[f] {
			seenNode[f] = true
			nodes = append(nodes, f)
		}
	}
	for _, r := range kb.rules {
		for _, c := range r.Conditions {
			addNode(c)
			adj[c] = append(adj[c], r.Consequence)
		}
		addNode(r.Consequence)
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(nodes))
	var stack []string
	var cycles [][]string

	var visit func(string)
	visit = func(f string) {
		color[f] = grey
		stack = append(stack, f)
		for _, next := range adj[f] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						loop := append([]string{}, stack[i:]...)
						cycles = append(cycles, append(loop, next))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[f] = black
	}

	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}
