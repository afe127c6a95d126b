// Package repl is an interactive shell for building a fact set step by step
// and running the engine over it.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/duynguyendang/vultester/pkg/datalog"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/service"
)

const helpText = `Commands:
  add <facts>        add facts (comma or space separated)
  remove <fact>      drop a fact
  clear              drop every fact
  facts              list the session facts
  method [name]      show or set the method (forward, backward, mixed)
  run [method]       evaluate the session facts
  trace              print the trace of the last run
  history            list recent runs
  rules [category]   list rules
  rule <id>          show a rule and its fix
  search <text>      find catalog facts by name or label
  why <fact>         shortest derivation from the session facts
  explain            narrate the last run (needs GEMINI_API_KEY)
  help               this text
  exit | quit        leave`

// REPL reads commands from in and writes results to out.
type REPL struct {
	svc     *service.AnalysisService
	in      io.Reader
	out     io.Writer
	session *Session
}

// New creates a REPL over svc.
func New(svc *service.AnalysisService, in io.Reader, out io.Writer) *REPL {
	return &REPL{svc: svc, in: in, out: out, session: NewSession()}
}

// Session exposes the session state.
func (r *REPL) Session() *Session { return r.session }

// Run loops until exit, end of input or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "\n--- Interactive Analysis Mode ---")
	fmt.Fprintf(r.out, "Rules: %d  Known facts: %d\n", r.svc.KnowledgeBase().Len(), len(r.svc.Catalog().Facts()))
	fmt.Fprintln(r.out, "Type 'help' for commands, 'exit' or 'quit' to stop.")

	scanner := bufio.NewScanner(r.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		if r.Execute(ctx, scanner.Text()) {
			break
		}
	}
	fmt.Fprintln(r.out, "👋 Bye!")
	return scanner.Err()
}

// Execute runs one command line and reports whether the session should end.
func (r *REPL) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "add":
		r.add(arg)
	case "remove", "rm":
		if r.session.Remove(arg) {
			fmt.Fprintf(r.out, "Removed %s\n", arg)
		} else {
			fmt.Fprintf(r.out, "%s is not in the session\n", arg)
		}
	case "clear":
		r.session.Clear()
		fmt.Fprintln(r.out, "Session cleared")
	case "facts":
		r.listFacts()
	case "method":
		r.method(arg)
	case "run":
		r.run(ctx, arg)
	case "trace":
		if last := r.session.Last(); last != nil {
			PrintTrace(r.out, last.InferenceTrace)
		} else {
			fmt.Fprintln(r.out, "Nothing has run yet")
		}
	case "history":
		r.history()
	case "rules":
		r.rules(arg)
	case "rule":
		r.rule(arg)
	case "search":
		r.search(arg)
	case "why":
		r.why(arg)
	case "explain":
		r.explain(ctx)
	default:
		fmt.Fprintf(r.out, "Unknown command %q. Type 'help'.\n", cmd)
	}
	return false
}

func (r *REPL) add(arg string) {
	if !strings.Contains(arg, ",") {
		arg = strings.Join(strings.Fields(arg), ",")
	}
	facts, err := datalog.ParseFacts(arg)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	if len(facts) == 0 {
		fmt.Fprintln(r.out, "Usage: add <facts>")
		return
	}
	catalog := r.svc.Catalog()
	for _, f := range catalog.Unknown(facts, r.svc.KnowledgeBase()) {
		msg := fmt.Sprintf("⚠️  %s is not a known fact", f)
		if hints := catalog.Suggest(f); len(hints) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(hints, ", "))
		}
		fmt.Fprintln(r.out, msg)
	}
	added := 0
	for _, f := range facts {
		if r.session.Add(f) {
			added++
		}
	}
	fmt.Fprintf(r.out, "✅ Added %d fact(s), %d in session\n", added, len(r.session.Facts()))
}

func (r *REPL) listFacts() {
	facts := r.session.Facts()
	if len(facts) == 0 {
		fmt.Fprintln(r.out, "📭 No facts yet. Use 'add'.")
		return
	}
	for _, f := range facts {
		if opt, ok := r.svc.Catalog().Lookup(f); ok {
			fmt.Fprintf(r.out, "   - %s (%s)\n", f, opt.Label)
		} else {
			fmt.Fprintf(r.out, "   - %s\n", f)
		}
	}
}

func (r *REPL) method(arg string) {
	if arg == "" {
		fmt.Fprintf(r.out, "Method: %s\n", r.session.Method())
		return
	}
	m, err := engine.ParseMethod(arg)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	r.session.SetMethod(m)
	fmt.Fprintf(r.out, "Method: %s\n", m)
}

func (r *REPL) run(ctx context.Context, arg string) {
	m := r.session.Method()
	if arg != "" {
		var err error
		if m, err = engine.ParseMethod(arg); err != nil {
			fmt.Fprintf(r.out, "❌ %v\n", err)
			return
		}
	}
	res, err := r.svc.Evaluate(ctx, r.session.Facts(), m)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	r.session.Record(res)
	PrintReport(r.out, res, false)
}

func (r *REPL) history() {
	turns := r.session.History()
	if len(turns) == 0 {
		fmt.Fprintln(r.out, "Nothing has run yet")
		return
	}
	for i, t := range turns {
		fmt.Fprintf(r.out, "%d. %s over %d fact(s): %s, %d rule(s) fired\n", i+1, t.Method, len(t.Facts), t.Status, t.Fired)
	}
}

func (r *REPL) rules(category string) {
	rules := r.svc.ListRules().Rules
	if category != "" {
		rules = r.svc.RulesByCategory(category)
	}
	if len(rules) == 0 {
		fmt.Fprintln(r.out, "📭 No rules")
		return
	}
	for _, rule := range rules {
		fmt.Fprintf(r.out, "%-8s %-9s %s\n", rule.ID, rule.Severity, rule.Description)
	}
}

func (r *REPL) rule(id string) {
	d, err := r.svc.GetRule(id)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "%s [%s] %s\n", d.Rule.ID, d.Rule.Severity, d.Rule.Description)
	fmt.Fprintf(r.out, "   if:   %s\n", strings.Join(d.Rule.Conditions, ", "))
	fmt.Fprintf(r.out, "   then: %s\n", d.Rule.Consequence)
	fmt.Fprintf(r.out, "   fix:  %s\n", d.Recommendation)
}

func (r *REPL) search(query string) {
	matches := FindFactsBySimilarity(query, r.svc.Catalog().Facts(), 10)
	if len(matches) == 0 {
		fmt.Fprintln(r.out, "📭 No matching facts")
		return
	}
	for _, m := range matches {
		fmt.Fprintf(r.out, "   %.2f %s (%s)\n", m.Score, m.Fact.Fact, m.Fact.Label)
	}
}

func (r *REPL) why(goal string) {
	d, err := r.svc.ShortestDerivation(r.session.Facts(), goal)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	if !d.Found {
		fmt.Fprintf(r.out, "No derivation of %s from the session facts\n", d.Goal)
		return
	}
	var b strings.Builder
	b.WriteString(d.Path[0])
	for i, rule := range d.Rules {
		fmt.Fprintf(&b, " --%s--> %s", rule, d.Path[i+1])
	}
	fmt.Fprintln(r.out, b.String())
}

func (r *REPL) explain(ctx context.Context) {
	last := r.session.Last()
	if last == nil {
		fmt.Fprintln(r.out, "Run an analysis first")
		return
	}
	_, text, err := r.svc.Explain(ctx, r.session.Facts(), last.Method)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	fmt.Fprintln(r.out, text)
}
