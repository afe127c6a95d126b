package engine

import (
	"github.com/duynguyendang/vultester/pkg/kb"
)

// Action tags a trace step.
type Action string

const (
	ActionInitialization Action = "initialization"
	ActionFactAdded      Action = "fact_added"
	ActionRuleFired      Action = "rule_fired"
	ActionPhaseStart     Action = "phase_start"
)

// Step is one entry of the inference trace. Rule fields are set only for
// rule_fired steps.
type Step struct {
	Step         int         `json:"step"`
	Action       Action      `json:"action"`
	Method       string      `json:"method"`
	Message      string      `json:"message"`
	RuleID       string      `json:"rule_id,omitempty"`
	Conditions   []string    `json:"conditions,omitempty"`
	Consequence  string      `json:"consequence,omitempty"`
	Severity     kb.Severity `json:"severity,omitempty"`
	Facts        []string    `json:"facts,omitempty"`
	CurrentFacts []string    `json:"current_facts,omitempty"`
	Goals        []string    `json:"goals,omitempty"`
}

// Trace is the append-only audit log of one run.
type Trace struct {
	steps []Step
}

func (t *Trace) append(s Step) {
	t.steps = append(t.steps, s)
}

// Steps returns the recorded steps.
func (t *Trace) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}
