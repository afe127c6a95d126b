package kb

import (
	"slices"
	"strings"
)

// Severity classifies how dangerous a derived vulnerability is.
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityDangerous Severity = "dangerous"
	SeverityWarning   Severity = "warning"
	SeverityInfo      Severity = "info"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityDangerous, SeverityWarning, SeverityInfo}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Rank orders severities: critical=3 down to info=0, unknown=-1.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityDangerous:
		return 2
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// Rule maps a conjunction of condition facts to a single consequence fact.
type Rule struct {
	ID          string   `json:"id" yaml:"id"`
	Conditions  []string `json:"conditions" yaml:"conditions"`
	Consequence string   `json:"consequence" yaml:"consequence"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
}

// Category returns the id prefix before the first dash (PORT-01 -> PORT).
func (r Rule) Category() string {
	if idx := strings.Index(r.ID, "-"); idx > 0 {
		return r.ID[:idx]
	}
	return r.ID
}

// HasCondition reports whether fact is one of the rule's conditions.
func (r Rule) HasCondition(fact string) bool {
	return slices.Contains(r.Conditions, fact)
}

func (r Rule) clone() Rule {
	r.Conditions = slices.Clone(r.Conditions)
	return r
}
