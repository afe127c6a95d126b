package engine

import "github.com/duynguyendang/vultester/pkg/kb"

// Analyze turns the terminal state of a run into a report. Buckets and
// patches follow firing order. It never fails: rule ids missing from base
// are ignored and consequences without a recommendation get no patch.
func Analyze(base *kb.KnowledgeBase, method Method, fired, facts []string, trace []Step) *Result {
	res := &Result{
		Method:          method,
		MethodName:      method.Name(),
		Vulnerabilities: newVulnerabilities(),
		FiredRules:      append([]string{}, fired...),
		Patches:         []Patch{},
		InferenceTrace:  append([]Step{}, trace...),
		FinalFacts:      append([]string{}, facts...),
	}

	for _, id := range fired {
		rule, ok := base.Rule(id)
		if !ok {
			continue
		}
		res.Vulnerabilities.add(rule.Severity, Vulnerability{
			RuleID:      rule.ID,
			Description: rule.Description,
			Consequence: rule.Consequence,
		})
		if text, ok := base.Recommendation(rule.Consequence); ok {
			res.Patches = append(res.Patches, Patch{
				RuleID:         rule.ID,
				Vulnerability:  rule.Description,
				Recommendation: text,
			})
		}
	}

	res.TotalRulesFired = len(res.FiredRules)
	res.OverallStatus = overallStatus(&res.Vulnerabilities)
	res.StatusMessage = res.OverallStatus.Message()
	return res
}

func overallStatus(v *Vulnerabilities) Status {
	switch {
	case len(v.Critical) > 0:
		return StatusCritical
	case len(v.Dangerous) > 0:
		return StatusDangerous
	case len(v.Warning) > 0:
		return StatusWarning
	}
	return StatusAcceptable
}
