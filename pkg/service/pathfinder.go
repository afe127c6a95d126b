package service

import (
	"fmt"
	"slices"
	"strings"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/export"
	"go.uber.org/zap"
)

const (
	maxPathDepth   = 50
	maxPathVisited = 2000
)

// Derivation is a chain of facts from an observed fact to a goal. Rules[i]
// links Path[i] to Path[i+1].
type Derivation struct {
	Goal  string   `json:"goal"`
	Path  []string `json:"path"`
	Rules []string `json:"rules"`
	Found bool     `json:"found"`
}

// ShortestDerivation runs a breadth first search from every fact in facts to
// goal, following condition to consequence edges. Edges ignore the other
// conditions of a conjunction, so a path shows how a goal can be reached, not
// that it will be.
func (s *AnalysisService) ShortestDerivation(facts []string, goal string) (Derivation, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return Derivation{}, fmt.Errorf("%w: empty goal", errors.ErrInvalidInput)
	}
	if !s.knownFact(goal) {
		err := fmt.Errorf("%w: fact %q", errors.ErrNotFound, goal)
		if hints := s.catalog.Suggest(goal); len(hints) > 0 {
			err = fmt.Errorf("%w (did you mean %s?)", err, strings.Join(hints, ", "))
		}
		return Derivation{}, err
	}

	type hop struct {
		path  []string
		rules []string
	}

	d := Derivation{Goal: goal, Path: []string{}, Rules: []string{}}
	var queue []hop
	visited := make(map[string]bool)
	for _, f := range NormalizeFacts(facts) {
		if visited[f] {
			continue
		}
		visited[f] = true
		queue = append(queue, hop{path: []string{f}})
	}

	for len(queue) > 0 && len(visited) <= maxPathVisited {
		h := queue[0]
		queue = queue[1:]
		current := h.path[len(h.path)-1]

		if current == goal {
			d.Path, d.Rules, d.Found = h.path, h.rules, true
			if d.Rules == nil {
				d.Rules = []string{}
			}
			break
		}
		if len(h.path) >= maxPathDepth {
			continue
		}

		// Neighbours in rule declaration order keep the search deterministic.
		for _, r := range s.base.Rules() {
			if !r.HasCondition(current) || visited[r.Consequence] {
				continue
			}
			visited[r.Consequence] = true
			queue = append(queue, hop{
				path:  append(slices.Clone(h.path), r.Consequence),
				rules: append(slices.Clone(h.rules), r.ID),
			})
		}
	}

	s.logger.Debug("derivation search",
		zap.String("goal", goal),
		zap.Bool("found", d.Found),
		zap.Int("visited", len(visited)))
	return d, nil
}

// DerivationPath is ShortestDerivation rendered for D3. An unreachable goal
// yields an empty graph.
func (s *AnalysisService) DerivationPath(facts []string, goal string) (*export.D3Graph, error) {
	d, err := s.ShortestDerivation(facts, goal)
	if err != nil {
		return nil, err
	}
	if !d.Found {
		return export.Empty(), nil
	}
	return export.PathGraph(s.base, s.catalog, d.Path, d.Rules), nil
}

func (s *AnalysisService) knownFact(fact string) bool {
	if _, ok := s.catalog.Lookup(fact); ok {
		return true
	}
	for _, r := range s.base.Rules() {
		if r.Consequence == fact || r.HasCondition(fact) {
			return true
		}
	}
	return false
}
