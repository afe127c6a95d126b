package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/kb"
)

// MaxListedFacts limits how many derived facts a report prints.
const MaxListedFacts = 20

var severityIcons = map[kb.Severity]string{
	kb.SeverityCritical:  "🔴",
	kb.SeverityDangerous: "🟠",
	kb.SeverityWarning:   "🟡",
	kb.SeverityInfo:      "🔵",
}

// PrintReport writes a human readable report. verbose adds the trace.
func PrintReport(w io.Writer, res *engine.Result, verbose bool) {
	fmt.Fprintf(w, "\n=== %s ===\n", res.MethodName)
	if res.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", res.RunID)
	}
	fmt.Fprintf(w, "Status: %s - %s\n", res.OverallStatus, res.StatusMessage)
	fmt.Fprintf(w, "Rules fired: %d\n", res.TotalRulesFired)

	for _, sev := range []kb.Severity{kb.SeverityCritical, kb.SeverityDangerous, kb.SeverityWarning, kb.SeverityInfo} {
		items := res.Vulnerabilities.Bucket(sev)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s %s (%d):\n", severityIcons[sev], strings.ToUpper(string(sev)), len(items))
		for _, v := range items {
			fmt.Fprintf(w, "   - [%s] %s\n", v.RuleID, v.Description)
		}
	}

	if len(res.Patches) > 0 {
		fmt.Fprintf(w, "\n🩹 Patches (%d):\n", len(res.Patches))
		for _, p := range res.Patches {
			fmt.Fprintf(w, "   - %s: %s\n", p.RuleID, p.Recommendation)
		}
	}

	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "⚠️  %s\n", warn)
	}

	fmt.Fprintf(w, "\nFinal facts (%d):\n", len(res.FinalFacts))
	for i, f := range res.FinalFacts {
		if i >= MaxListedFacts {
			fmt.Fprintf(w, "   ... and %d more\n", len(res.FinalFacts)-MaxListedFacts)
			break
		}
		fmt.Fprintf(w, "   - %s\n", f)
	}

	if verbose {
		PrintTrace(w, res.InferenceTrace)
	}
}

// PrintTrace writes one line per trace step.
func PrintTrace(w io.Writer, steps []engine.Step) {
	fmt.Fprintf(w, "\nTrace (%d steps):\n", len(steps))
	for _, s := range steps {
		fmt.Fprintf(w, "  %3d %-10s %s\n", s.Step, s.Action, s.Message)
	}
}
