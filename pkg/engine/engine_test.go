package engine

import (
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainBase: a -> b, b & c -> d, d -> e, plus a second producer x -> b.
func chainBase(t *testing.T) *kb.KnowledgeBase {
	t.Helper()
	base, err := kb.New([]kb.Rule{
		{ID: "A", Conditions: []string{"a"}, Consequence: "b", Severity: kb.SeverityWarning, Description: "a gives b"},
		{ID: "B", Conditions: []string{"b", "c"}, Consequence: "d", Severity: kb.SeverityCritical, Description: "b and c give d"},
		{ID: "C", Conditions: []string{"d"}, Consequence: "e", Severity: kb.SeverityInfo, Description: "d gives e"},
		{ID: "D", Conditions: []string{"x"}, Consequence: "b", Severity: kb.SeverityDangerous, Description: "x gives b"},
	}, map[string]string{"d": "fix d", "b": "fix b"})
	require.NoError(t, err)
	return base
}

func TestForwardPort22Scenario(t *testing.T) {
	res := New(kb.Default()).Forward([]string{"port_22_open", "password_auth_enabled"})

	assert.Equal(t, []string{"PORT-01"}, res.FiredRules)
	assert.Contains(t, res.FinalFacts, "ssh_brute_force_risk")
	assert.Equal(t, StatusDangerous, res.OverallStatus)
	assert.Equal(t, "Dangerous configuration detected. Action recommended.", res.StatusMessage)
	assert.Equal(t, "Forward Chaining", res.MethodName)
	require.Len(t, res.Vulnerabilities.Dangerous, 1)
	assert.Equal(t, "ssh_brute_force_risk", res.Vulnerabilities.Dangerous[0].Consequence)
}

func TestForwardTelnetScenario(t *testing.T) {
	res := New(kb.Default()).Forward([]string{"port_23_open"})

	assert.Equal(t, []string{"PORT-02"}, res.FiredRules)
	assert.Equal(t, StatusCritical, res.OverallStatus)
	require.Len(t, res.Patches, 1)
	assert.Equal(t, "PORT-02", res.Patches[0].RuleID)
	assert.Contains(t, res.Patches[0].Recommendation, "Disable Telnet")
}

func TestForwardChain(t *testing.T) {
	res := New(chainBase(t)).Forward([]string{"a", "c"})

	assert.Equal(t, []string{"A", "B", "C"}, res.FiredRules)
	assert.Equal(t, []string{"a", "c", "b", "d", "e"}, res.FinalFacts)
	assert.Equal(t, StatusCritical, res.OverallStatus)
	assert.Equal(t, 3, res.TotalRulesFired)

	// Patches follow firing order and skip consequences without a fix.
	require.Len(t, res.Patches, 2)
	assert.Equal(t, "A", res.Patches[0].RuleID)
	assert.Equal(t, "B", res.Patches[1].RuleID)

	trace := res.InferenceTrace
	assert.Equal(t, ActionInitialization, trace[0].Action)
	assert.Equal(t, 0, trace[0].Step)

	var fired []Step
	for _, s := range trace {
		if s.Action == ActionRuleFired {
			fired = append(fired, s)
		}
	}
	require.Len(t, fired, 3)
	// A fires while popping a (step 1); B waits until b is popped (step 3).
	assert.Equal(t, 1, fired[0].Step)
	assert.Equal(t, 3, fired[1].Step)
	assert.Equal(t, []string{"b", "c"}, fired[1].Conditions)
	assert.Equal(t, kb.SeverityCritical, fired[1].Severity)
}

func TestForwardSkipsKnownConsequence(t *testing.T) {
	res := New(chainBase(t)).Forward([]string{"b", "a"})

	// b is already known when a is popped, so A stays silent.
	assert.NotContains(t, res.FiredRules, "A")
}

func TestForwardIsMonotonic(t *testing.T) {
	res := New(chainBase(t)).Forward([]string{"a", "c", "x"})

	prev := []string{}
	for _, s := range res.InferenceTrace {
		if s.Action != ActionFactAdded {
			continue
		}
		require.Len(t, s.CurrentFacts, len(prev)+1)
		assert.Equal(t, prev, s.CurrentFacts[:len(prev)])
		prev = s.CurrentFacts
	}
	assert.Equal(t, prev, res.FinalFacts)
}

func TestForwardFiresEverySatisfiedRule(t *testing.T) {
	base := kb.Default()
	e := New(base)

	for _, rule := range base.Rules() {
		t.Run(rule.ID, func(t *testing.T) {
			res := e.Forward(rule.Conditions)
			assert.Contains(t, res.FiredRules, rule.ID)
			assert.Contains(t, res.FinalFacts, rule.Consequence)
		})
	}
}

func TestBackwardChain(t *testing.T) {
	res := New(chainBase(t)).Backward([]string{"a", "c"})

	assert.Equal(t, []string{"A", "B", "C"}, res.FiredRules)
	assert.Equal(t, "Backward Chaining", res.MethodName)

	init := res.InferenceTrace[0]
	assert.Equal(t, ActionInitialization, init.Action)
	assert.Equal(t, []string{"b", "d", "e", "b"}, init.Goals)

	for _, s := range res.InferenceTrace {
		assert.NotEqual(t, ActionFactAdded, s.Action)
	}
}

func TestBackwardTriesFirstProducerOnly(t *testing.T) {
	e := New(chainBase(t))

	// Only A is tried for b, and a is unprovable, so nothing fires even
	// though D would have produced b from x.
	res := e.Backward([]string{"x", "c"})
	assert.Empty(t, res.FiredRules)
	assert.Equal(t, StatusAcceptable, res.OverallStatus)

	// Forward chaining has no such restriction.
	assert.Equal(t, []string{"D", "B", "C"}, e.Forward([]string{"x", "c"}).FiredRules)
}

func TestBackwardExplicitGoals(t *testing.T) {
	res := New(chainBase(t)).Backward([]string{"a", "c"}, "d")

	assert.Equal(t, []string{"A", "B"}, res.FiredRules)
	assert.NotContains(t, res.FinalFacts, "e")
}

func TestBackwardTerminatesOnCycle(t *testing.T) {
	base, err := kb.New([]kb.Rule{
		{ID: "A", Conditions: []string{"x", "q"}, Consequence: "p", Severity: kb.SeverityCritical},
		{ID: "B", Conditions: []string{"p"}, Consequence: "q", Severity: kb.SeverityCritical},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, base.Cycles())

	res := New(base).Backward([]string{"x"})
	assert.Empty(t, res.FiredRules)
	assert.Equal(t, []string{"x"}, res.FinalFacts)
	assert.Equal(t, StatusAcceptable, res.OverallStatus)

	// A base fact breaks the cycle.
	res = New(base).Backward([]string{"x", "q"})
	assert.Equal(t, []string{"A"}, res.FiredRules)
}

func TestBackwardWithoutFacts(t *testing.T) {
	res := New(kb.Default()).Backward(nil)

	assert.Empty(t, res.FiredRules)
	assert.Equal(t, StatusAcceptable, res.OverallStatus)
	assert.Equal(t, "Configuration acceptable. Keep monitoring.", res.StatusMessage)
	assert.Len(t, res.InferenceTrace[0].Goals, goalPreview)
}

func TestBackwardDeduplicatesInitialFacts(t *testing.T) {
	res := New(kb.Default()).Backward([]string{"port_23_open", "port_23_open"})

	assert.Equal(t, []string{"port_23_open", "telnet_vulnerability"}, res.FinalFacts)
	assert.Equal(t, StatusCritical, res.OverallStatus)
}

func TestMixedPhases(t *testing.T) {
	res := New(chainBase(t)).Mixed([]string{"a", "c"})

	assert.Equal(t, []string{"A", "B", "C"}, res.FiredRules)
	assert.Equal(t, "Mixed Chaining", res.MethodName)

	trace := res.InferenceTrace
	assert.Equal(t, ActionInitialization, trace[0].Action)
	assert.Equal(t, ActionPhaseStart, trace[1].Action)
	assert.Equal(t, 1, trace[1].Step)
	assert.Equal(t, 2, trace[2].Step)
	assert.Equal(t, tagMixedForward, trace[2].Method)
	assert.Equal(t, "[forward] Fact added: a", trace[2].Message)

	last := trace[len(trace)-1]
	assert.Equal(t, ActionPhaseStart, last.Action)
	assert.Contains(t, last.Message, "Phase 2")
}

func TestMixedBackwardPhaseFiresSkippedRules(t *testing.T) {
	base, err := kb.New([]kb.Rule{
		{ID: "P", Conditions: []string{"a"}, Consequence: "k", Severity: kb.SeverityWarning},
	}, nil)
	require.NoError(t, err)
	e := New(base)

	// k is known before a is popped, so the forward phase skips P.
	assert.Empty(t, e.Forward([]string{"k", "a"}).FiredRules)

	res := e.Mixed([]string{"k", "a"})
	require.Equal(t, []string{"P"}, res.FiredRules)
	assert.Equal(t, []string{"k", "a"}, res.FinalFacts)

	last := res.InferenceTrace[len(res.InferenceTrace)-1]
	assert.Equal(t, ActionRuleFired, last.Action)
	assert.Equal(t, tagMixedBackward, last.Method)
	assert.Equal(t, StatusWarning, res.OverallStatus)
}

func TestEachRuleFiresOnce(t *testing.T) {
	base := kb.Default()
	all := base.Conditions()
	e := New(base)

	for _, m := range Methods {
		t.Run(string(m), func(t *testing.T) {
			res, err := e.Evaluate(m, all)
			require.NoError(t, err)

			seen := make(map[string]bool)
			for _, id := range res.FiredRules {
				assert.False(t, seen[id], "rule %s fired twice", id)
				seen[id] = true
			}

			var steps int
			for _, s := range res.InferenceTrace {
				if s.Action == ActionRuleFired {
					steps++
				}
			}
			assert.Equal(t, len(res.FiredRules), steps)
		})
	}
}

func TestBucketsAreExhaustiveAndDisjoint(t *testing.T) {
	base := kb.Default()
	res := New(base).Forward(base.Conditions())
	require.NotEmpty(t, res.FiredRules)

	assert.Equal(t, len(res.FiredRules), res.Vulnerabilities.Total())
	for _, id := range res.FiredRules {
		rule, ok := base.Rule(id)
		require.True(t, ok)

		var hits int
		for _, sev := range kb.Severities {
			for _, v := range res.Vulnerabilities.Bucket(sev) {
				if v.RuleID == id {
					hits++
					assert.Equal(t, rule.Severity, sev)
				}
			}
		}
		assert.Equal(t, 1, hits, "rule %s", id)
	}
	assert.Equal(t, StatusCritical, res.OverallStatus)
}

func TestStatusPrecedence(t *testing.T) {
	base, err := kb.New([]kb.Rule{
		{ID: "I1", Conditions: []string{"i"}, Consequence: "ii", Severity: kb.SeverityInfo},
		{ID: "W1", Conditions: []string{"w"}, Consequence: "ww", Severity: kb.SeverityWarning},
		{ID: "W2", Conditions: []string{"w"}, Consequence: "ww2", Severity: kb.SeverityWarning},
		{ID: "C1", Conditions: []string{"c"}, Consequence: "cc", Severity: kb.SeverityCritical},
	}, nil)
	require.NoError(t, err)
	e := New(base)

	tests := []struct {
		facts []string
		want  Status
	}{
		{[]string{"i"}, StatusAcceptable},
		{[]string{"i", "w"}, StatusWarning},
		{[]string{"i", "w", "c"}, StatusCritical},
		{[]string{"nothing"}, StatusAcceptable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.facts), func(t *testing.T) {
			assert.Equal(t, tt.want, e.Forward(tt.facts).OverallStatus)
		})
	}
}

func TestEvaluateRejectsInput(t *testing.T) {
	e := New(kb.Default())

	for _, m := range Methods {
		_, err := e.Evaluate(m, nil)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, ErrNoFacts))
		assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
	}

	_, err := e.Evaluate(Forward, []string{"port_22_open", "  "})
	assert.True(t, stderrors.Is(err, ErrEmptyFact))

	_, err = e.Evaluate(Method("sideways"), []string{"port_22_open"})
	assert.True(t, stderrors.Is(err, ErrUnknownMethod))
	assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
}

func TestParseMethod(t *testing.T) {
	for _, want := range Methods {
		m, err := ParseMethod(string(want))
		require.NoError(t, err)
		assert.Equal(t, want, m)
	}

	for _, bad := range []string{"lateral", "FORWARD", " Backward ", "Mixed", ""} {
		_, err := ParseMethod(bad)
		assert.True(t, stderrors.Is(err, ErrUnknownMethod), "method %q", bad)
	}
}

func TestFiringTwicePanics(t *testing.T) {
	f := newFiredRules()
	f.Mark("R")
	assert.Panics(t, func() { f.Mark("R") })
}

func TestConcurrentRuns(t *testing.T) {
	e := New(kb.Default())
	inputs := [][]string{
		{"port_22_open", "password_auth_enabled"},
		{"port_23_open"},
		kb.Default().Conditions(),
	}

	want := make([]*Result, len(inputs))
	for i, in := range inputs {
		want[i] = e.Forward(in)
	}

	var wg sync.WaitGroup
	for range 8 {
		for i, in := range inputs {
			for _, m := range Methods {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := e.Evaluate(m, in)
					assert.NoError(t, err)
					if m == Forward {
						assert.Equal(t, want[i].FiredRules, res.FiredRules)
						assert.True(t, slices.Equal(want[i].FinalFacts, res.FinalFacts))
					}
				}()
			}
		}
	}
	wg.Wait()
}
