// Package engine derives vulnerabilities from observed server facts by
// forward, backward or mixed chaining over a knowledge base.
//
// An Engine holds nothing but the shared, read-only knowledge base. Every
// evaluation builds its own fact set, fired-rule record and trace, so one
// Engine may serve concurrent callers.
package engine

import (
	"fmt"
	"slices"

	"github.com/duynguyendang/vultester/pkg/kb"
)

// Engine runs chaining strategies against a knowledge base.
type Engine struct {
	base *kb.KnowledgeBase
}

// New creates an Engine over base.
func New(base *kb.KnowledgeBase) *Engine {
	return &Engine{base: base}
}

// KnowledgeBase returns the rules the engine reasons over.
func (e *Engine) KnowledgeBase() *kb.KnowledgeBase {
	return e.base
}

// Evaluate validates the input and runs the selected strategy to completion.
// Invalid input is rejected before any run state exists.
func (e *Engine) Evaluate(method Method, facts []string) (*Result, error) {
	if err := ValidateFacts(facts); err != nil {
		return nil, err
	}
	switch method {
	case Forward:
		return e.Forward(facts), nil
	case Backward:
		return e.Backward(facts), nil
	case Mixed:
		return e.Mixed(facts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
}

// run is the state of a single evaluation. It is never shared.
type run struct {
	base  *kb.KnowledgeBase
	rules []kb.Rule
	facts *FactSet
	fired *firedRules
	trace *Trace
}

func (e *Engine) newRun() *run {
	return &run{
		base:  e.base,
		rules: e.base.Rules(),
		facts: NewFactSet(),
		fired: newFiredRules(),
		trace: &Trace{},
	}
}

func (r *run) record(s Step) {
	r.trace.append(s)
}

// fire marks rule as fired and logs it. The caller decides whether the
// consequence joins the fact set now or later.
func (r *run) fire(rule kb.Rule, step int, tag, message string) {
	r.fired.Mark(rule.ID)
	r.record(Step{
		Step:        step,
		Action:      ActionRuleFired,
		Method:      tag,
		RuleID:      rule.ID,
		Message:     message,
		Conditions:  slices.Clone(rule.Conditions),
		Consequence: rule.Consequence,
		Severity:    rule.Severity,
	})
}

func (r *run) finish(method Method) *Result {
	return Analyze(r.base, method, r.fired.IDs(), r.facts.Facts(), r.trace.Steps())
}
