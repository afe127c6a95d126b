package engine

import (
	"fmt"
	"slices"
)

// Forward derives every fact reachable from initial by data-driven chaining.
func (e *Engine) Forward(initial []string) *Result {
	r := e.newRun()
	r.record(Step{
		Step:    0,
		Action:  ActionInitialization,
		Method:  string(Forward),
		Message: fmt.Sprintf("Forward chaining: starting with %d initial facts", len(initial)),
		Facts:   slices.Clone(initial),
	})
	r.forward(initial, string(Forward), "", 1)
	return r.finish(Forward)
}

// forward drains a FIFO queue seeded with initial. Each popped fact joins the
// fact set; then every unfired rule that mentions it, is fully satisfied and
// whose consequence is not yet known fires in declaration order and enqueues
// its consequence. It returns the step counter after the last popped fact.
func (r *run) forward(initial []string, tag, prefix string, step int) int {
	queue := slices.Clone(initial)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if r.facts.Add(current) {
			r.record(Step{
				Step:         step,
				Action:       ActionFactAdded,
				Method:       tag,
				Message:      fmt.Sprintf("%sFact added: %s", prefix, current),
				CurrentFacts: r.facts.Facts(),
			})
		}

		for _, rule := range r.rules {
			if r.fired.Has(rule.ID) || !rule.HasCondition(current) || !r.facts.HasAll(rule.Conditions) {
				continue
			}
			// Already derived: skip to avoid duplicate derivations.
			if r.facts.Has(rule.Consequence) {
				continue
			}
			queue = append(queue, rule.Consequence)
			r.fire(rule, step, tag, fmt.Sprintf("%sRule %s fired: %s", prefix, rule.ID, rule.Description))
		}
		step++
	}
	return step
}
