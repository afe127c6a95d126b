package engine

import (
	"fmt"
	"slices"

	"github.com/duynguyendang/vultester/pkg/kb"
)

// Mixed runs a full forward phase, then one backward sweep over the rules
// that did not fire.
func (e *Engine) Mixed(initial []string) *Result {
	r := e.newRun()
	r.record(Step{
		Step:    0,
		Action:  ActionInitialization,
		Method:  string(Mixed),
		Message: fmt.Sprintf("Mixed chaining: forward then backward with %d facts", len(initial)),
		Facts:   slices.Clone(initial),
	})

	r.record(Step{
		Step:    1,
		Action:  ActionPhaseStart,
		Method:  string(Mixed),
		Message: "Phase 1: forward chaining, deriving facts",
	})
	step := r.forward(initial, tagMixedForward, "[forward] ", 2)

	r.record(Step{
		Step:    step,
		Action:  ActionPhaseStart,
		Method:  string(Mixed),
		Message: "Phase 2: backward chaining, checking remaining vulnerabilities",
	})
	step++

	// Single pass in declaration order. A rule fired earlier in this pass can
	// justify a later one; nothing is revisited.
	for _, rule := range r.rules {
		if r.fired.Has(rule.ID) || !r.justified(rule.Conditions) {
			continue
		}
		r.facts.Add(rule.Consequence)
		r.fire(rule, step, tagMixedBackward, fmt.Sprintf("[backward] Rule %s validated: %s", rule.ID, rule.Description))
		step++
	}
	return r.finish(Mixed)
}

// justified reports whether every condition is a known fact or the
// consequence of a rule that already fired. It looks one level deep only.
func (r *run) justified(conditions []string) bool {
	for _, cond := range conditions {
		if r.facts.Has(cond) {
			continue
		}
		if !slices.ContainsFunc(r.base.Producers(cond), func(p kb.Rule) bool { return r.fired.Has(p.ID) }) {
			return false
		}
	}
	return true
}
