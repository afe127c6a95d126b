package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/duynguyendang/vultester/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREPL(input string) (*REPL, *bytes.Buffer) {
	svc := service.NewAnalysisService(kb.Default(), nil, nil, nil)
	var out bytes.Buffer
	return New(svc, strings.NewReader(input), &out), &out
}

func TestRunSession(t *testing.T) {
	input := strings.Join([]string{
		"add port_22_open, password_auth_enabled",
		"add port_23_open",
		"facts",
		"run",
		"history",
		"exit",
		"add never_reached",
	}, "\n")
	r, out := newTestREPL(input)

	require.NoError(t, r.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Added 2 fact(s), 2 in session")
	assert.Contains(t, text, "port_23_open (Port 23 (Telnet))")
	assert.Contains(t, text, "Status: CRITICAL")
	assert.Contains(t, text, "[PORT-01]")
	assert.Contains(t, text, "[PORT-02]")
	assert.Contains(t, text, "systemctl disable telnet")
	assert.Contains(t, text, "1. forward over 3 fact(s): CRITICAL, 2 rule(s) fired")
	assert.Contains(t, text, "👋 Bye!")

	assert.Equal(t, []string{"port_22_open", "password_auth_enabled", "port_23_open"}, r.Session().Facts())
	require.NotNil(t, r.Session().Last())
	assert.Equal(t, engine.StatusCritical, r.Session().Last().OverallStatus)
}

func TestRunStopsAtEndOfInput(t *testing.T) {
	r, out := newTestREPL("help")
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "👋 Bye!")
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, _ := newTestREPL("add port_23_open\n")
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Empty(t, r.Session().Facts())
}

func TestExecuteCommands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{"space separated add", []string{"add port_23_open ssl_enabled"}, []string{"Added 2 fact(s)"}},
		{"unknown fact warns", []string{"add port_22_opn"}, []string{"port_22_opn is not a known fact", "did you mean port_22_open"}},
		{"empty add", []string{"add"}, []string{"empty fact list"}},
		{"remove", []string{"add port_23_open", "remove port_23_open", "remove port_23_open"}, []string{"Removed port_23_open", "port_23_open is not in the session"}},
		{"clear", []string{"add port_23_open", "clear", "facts"}, []string{"Session cleared", "No facts yet"}},
		{"method", []string{"method mixed", "method"}, []string{"Method: mixed"}},
		{"bad method", []string{"method sideways"}, []string{"❌"}},
		{"run with method", []string{"add port_23_open", "run backward"}, []string{"Backward Chaining", "Status: CRITICAL"}},
		{"trace before run", []string{"trace"}, []string{"Nothing has run yet"}},
		{"trace", []string{"add port_23_open", "run", "trace"}, []string{"Trace (", "rule_fired"}},
		{"rules by category", []string{"rules SSH"}, []string{"SSH-01"}},
		{"unknown category", []string{"rules NOPE"}, []string{"No rules"}},
		{"rule", []string{"rule PORT-02"}, []string{"then: telnet_vulnerability", "fix:  Disable Telnet"}},
		{"rule miss", []string{"rule PORT-1"}, []string{"did you mean"}},
		{"search", []string{"search telnet"}, []string{"port_23_open"}},
		{"why", []string{"add port_23_open", "why telnet_vulnerability"}, []string{"port_23_open --PORT-02--> telnet_vulnerability"}},
		{"why unreachable", []string{"why telnet_vulnerability"}, []string{"No derivation of telnet_vulnerability"}},
		{"explain before run", []string{"explain"}, []string{"Run an analysis first"}},
		{"explain without narrator", []string{"add port_23_open", "run", "explain"}, []string{"unavailable"}},
		{"unknown command", []string{"frobnicate"}, []string{`Unknown command "frobnicate"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out := newTestREPL("")
			for _, line := range tt.lines {
				assert.False(t, r.Execute(ctx, line))
			}
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestExecuteQuit(t *testing.T) {
	r, _ := newTestREPL("")
	assert.True(t, r.Execute(context.Background(), "quit"))
	assert.True(t, r.Execute(context.Background(), "  EXIT "))
	assert.False(t, r.Execute(context.Background(), "   "))
}

func TestSessionHistoryIsBounded(t *testing.T) {
	s := NewSession()
	for i := 0; i < maxHistory+3; i++ {
		s.Record(&engine.Result{Method: engine.Forward, TotalRulesFired: i})
	}
	h := s.History()
	require.Len(t, h, maxHistory)
	assert.Equal(t, 3, h[0].Fired)
	assert.Equal(t, maxHistory+2, h[len(h)-1].Fired)
}

func TestPrintReportTruncatesFacts(t *testing.T) {
	facts := make([]string, MaxListedFacts+5)
	for i := range facts {
		facts[i] = "f"
	}
	res := &engine.Result{MethodName: "Forward Chaining", OverallStatus: engine.StatusAcceptable, FinalFacts: facts}

	var out bytes.Buffer
	PrintReport(&out, res, true)
	assert.Contains(t, out.String(), "... and 5 more")
	assert.Contains(t, out.String(), "Trace (0 steps)")
}
