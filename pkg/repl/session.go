package repl

import (
	"slices"

	"github.com/duynguyendang/vultester/pkg/engine"
)

// maxHistory bounds the remembered runs.
const maxHistory = 5

// Session is the working state of one interactive session: the facts typed
// so far and the reports they produced.
type Session struct {
	facts   []string
	method  engine.Method
	last    *engine.Result
	history []Turn
}

// Turn is one finished run.
type Turn struct {
	Facts  []string
	Method engine.Method
	Status engine.Status
	Fired  int
}

// NewSession starts an empty session using forward chaining.
func NewSession() *Session {
	return &Session{method: engine.Forward}
}

// Add appends fact unless present and reports whether it was new.
func (s *Session) Add(fact string) bool {
	if slices.Contains(s.facts, fact) {
		return false
	}
	s.facts = append(s.facts, fact)
	return true
}

// Remove drops fact and reports whether it was present.
func (s *Session) Remove(fact string) bool {
	i := slices.Index(s.facts, fact)
	if i < 0 {
		return false
	}
	s.facts = slices.Delete(s.facts, i, i+1)
	return true
}

// Clear forgets all facts and the last report.
func (s *Session) Clear() {
	s.facts = nil
	s.last = nil
}

// Facts returns a copy of the session facts in insertion order.
func (s *Session) Facts() []string { return slices.Clone(s.facts) }

// Method is the default chaining method for run.
func (s *Session) Method() engine.Method { return s.method }

// SetMethod changes the default chaining method.
func (s *Session) SetMethod(m engine.Method) { s.method = m }

// Last returns the most recent report, or nil.
func (s *Session) Last() *engine.Result { return s.last }

// Record stores res as the latest report.
func (s *Session) Record(res *engine.Result) {
	s.last = res
	s.history = append(s.history, Turn{
		Facts:  s.Facts(),
		Method: res.Method,
		Status: res.OverallStatus,
		Fired:  res.TotalRulesFired,
	})
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}

// History returns the recent runs, oldest first.
func (s *Session) History() []Turn { return slices.Clone(s.history) }
