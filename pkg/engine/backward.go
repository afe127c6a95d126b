package engine

import (
	"fmt"
	"slices"
)

// goalPreview bounds how many goals the initialization step lists.
const goalPreview = 10

// Backward tries to prove each goal from initial. With no goals it tries
// every rule consequence in declaration order.
func (e *Engine) Backward(initial []string, goals ...string) *Result {
	r := e.newRun()
	if goals == nil {
		goals = r.base.Consequences()
	}
	for _, f := range initial {
		r.facts.Add(f)
	}

	r.record(Step{
		Step:    0,
		Action:  ActionInitialization,
		Method:  string(Backward),
		Message: fmt.Sprintf("Backward chaining: checking %d candidate goals", len(goals)),
		Facts:   slices.Clone(initial),
		Goals:   slices.Clone(goals[:min(len(goals), goalPreview)]),
	})

	step := 1
	for _, goal := range goals {
		// The cycle guard is scoped to one goal's proof tree.
		if r.prove(goal, step, make(map[string]bool)) {
			step++
		}
	}
	return r.finish(Backward)
}

// prove resolves goal recursively. stack holds the goals on the current
// recursion path: a goal already on it is a cycle and fails without touching
// state. Only the first rule concluding goal is tried.
func (r *run) prove(goal string, step int, stack map[string]bool) bool {
	if stack[goal] {
		return false
	}
	if r.facts.Has(goal) {
		return true
	}

	rule, ok := r.base.FirstProducer(goal)
	if !ok {
		return false
	}

	stack[goal] = true
	defer delete(stack, goal)

	for _, cond := range rule.Conditions {
		if r.facts.Has(cond) {
			continue
		}
		if !r.prove(cond, step, stack) {
			return false
		}
	}

	r.facts.Add(goal)
	if !r.fired.Has(rule.ID) {
		r.fire(rule, step, string(Backward), fmt.Sprintf("Rule %s validated: %s", rule.ID, rule.Description))
	}
	return true
}
