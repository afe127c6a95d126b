package engine

import "github.com/duynguyendang/vultester/pkg/kb"

// Status is the overall verdict of a run.
type Status string

const (
	StatusCritical   Status = "CRITICAL"
	StatusDangerous  Status = "DANGEROUS"
	StatusWarning    Status = "WARNING"
	StatusAcceptable Status = "ACCEPTABLE"
)

// Message is the fixed human readable text for the status tier.
func (s Status) Message() string {
	switch s {
	case StatusCritical:
		return "Critical vulnerabilities detected! Immediate action required."
	case StatusDangerous:
		return "Dangerous configuration detected. Action recommended."
	case StatusWarning:
		return "Security warnings found. Review recommended."
	}
	return "Configuration acceptable. Keep monitoring."
}

// Vulnerability is a fired rule as shown in a report.
type Vulnerability struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Consequence string `json:"consequence"`
}

// Patch is the remediation for one fired rule.
type Patch struct {
	RuleID         string `json:"rule_id"`
	Vulnerability  string `json:"vulnerability"`
	Recommendation string `json:"recommendation"`
}

// Vulnerabilities buckets fired rules by severity. Buckets are never nil so
// they serialize as empty lists.
type Vulnerabilities struct {
	Critical  []Vulnerability `json:"critical"`
	Dangerous []Vulnerability `json:"dangerous"`
	Warning   []Vulnerability `json:"warning"`
	Info      []Vulnerability `json:"info"`
}

func newVulnerabilities() Vulnerabilities {
	return Vulnerabilities{
		Critical:  []Vulnerability{},
		Dangerous: []Vulnerability{},
		Warning:   []Vulnerability{},
		Info:      []Vulnerability{},
	}
}

// Bucket returns the list for severity s.
func (v *Vulnerabilities) Bucket(s kb.Severity) []Vulnerability {
	switch s {
	case kb.SeverityCritical:
		return v.Critical
	case kb.SeverityDangerous:
		return v.Dangerous
	case kb.SeverityWarning:
		return v.Warning
	case kb.SeverityInfo:
		return v.Info
	}
	return nil
}

func (v *Vulnerabilities) add(s kb.Severity, item Vulnerability) {
	switch s {
	case kb.SeverityCritical:
		v.Critical = append(v.Critical, item)
	case kb.SeverityDangerous:
		v.Dangerous = append(v.Dangerous, item)
	case kb.SeverityWarning:
		v.Warning = append(v.Warning, item)
	case kb.SeverityInfo:
		v.Info = append(v.Info, item)
	}
}

// Total counts the bucketed vulnerabilities.
func (v *Vulnerabilities) Total() int {
	return len(v.Critical) + len(v.Dangerous) + len(v.Warning) + len(v.Info)
}

// Result is the immutable report of one run.
type Result struct {
	RunID           string          `json:"run_id,omitempty"`
	Method          Method          `json:"method"`
	MethodName      string          `json:"method_name"`
	OverallStatus   Status          `json:"overall_status"`
	StatusMessage   string          `json:"status_message"`
	Vulnerabilities Vulnerabilities `json:"vulnerabilities"`
	TotalRulesFired int             `json:"total_rules_fired"`
	FiredRules      []string        `json:"fired_rules"`
	Patches         []Patch         `json:"patches"`
	InferenceTrace  []Step          `json:"inference_trace"`
	FinalFacts      []string        `json:"final_facts"`
	Warnings        []string        `json:"warnings,omitempty"`
}
