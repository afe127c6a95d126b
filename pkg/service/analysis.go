// Package service is the transport independent API over the knowledge base
// and the inference engine. REST, MCP, CLI and REPL all go through it.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/duynguyendang/vultester/internal/logging"
	"github.com/duynguyendang/vultester/internal/manager"
	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/export"
	"github.com/duynguyendang/vultester/pkg/history"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRecommendation is shown for rules whose consequence has no fix.
const DefaultRecommendation = "No specific recommendation"

// Observer is told about every finished evaluation.
type Observer func(method engine.Method, res *engine.Result, cached bool)

// Narrator explains a finished report in prose.
type Narrator interface {
	Explain(ctx context.Context, res *engine.Result, initial []string) (string, error)
}

// RunStore persists finished runs.
type RunStore interface {
	Save(rec history.Record) error
	Get(runID string) (history.Record, error)
	List(limit int) ([]history.Summary, error)
}

// AnalysisService evaluates facts and answers knowledge base queries.
type AnalysisService struct {
	base      *kb.KnowledgeBase
	catalog   *kb.Catalog
	engine    *engine.Engine
	cache     *manager.ReportCache
	logger    *zap.Logger
	narrator  Narrator
	runs      RunStore
	observers []Observer
}

// NewAnalysisService creates the service. catalog, cache and logger may be nil.
func NewAnalysisService(base *kb.KnowledgeBase, catalog *kb.Catalog, cache *manager.ReportCache, logger *zap.Logger) *AnalysisService {
	if catalog == nil {
		catalog = kb.DefaultCatalog()
	}
	return &AnalysisService{
		base:    base,
		catalog: catalog,
		engine:  engine.New(base),
		cache:   cache,
		logger:  logging.OrNop(logger),
	}
}

// SetNarrator enables Explain. It must be called before the service is shared.
func (s *AnalysisService) SetNarrator(n Narrator) {
	s.narrator = n
}

// SetRunStore enables run history. It must be called before the service is
// shared.
func (s *AnalysisService) SetRunStore(rs RunStore) {
	s.runs = rs
}

// Observe registers fn. It must be called before the service is shared.
func (s *AnalysisService) Observe(fn Observer) {
	s.observers = append(s.observers, fn)
}

// KnowledgeBase returns the rules in use.
func (s *AnalysisService) KnowledgeBase() *kb.KnowledgeBase { return s.base }

// Catalog returns the fact catalog in use.
func (s *AnalysisService) Catalog() *kb.Catalog { return s.catalog }

// NormalizeFacts trims surrounding whitespace from every fact.
func NormalizeFacts(facts []string) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// Evaluate runs method over facts. Input errors wrap ErrInvalidInput and are
// reported before any run starts. Every call gets its own run id, even when
// the report itself comes from the cache.
func (s *AnalysisService) Evaluate(ctx context.Context, facts []string, method engine.Method) (*engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	facts = NormalizeFacts(facts)

	res, cached, err := s.cache.GetOrCompute(method, facts, func() (*engine.Result, error) {
		res, err := s.engine.Evaluate(method, facts)
		if err != nil {
			return nil, err
		}
		res.Warnings = s.warnings(facts)
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	// Cached reports are shared: copy before stamping the run id.
	out := *res
	out.RunID = uuid.NewString()

	s.logger.Debug("evaluation finished",
		zap.String("run_id", out.RunID),
		zap.String("method", string(method)),
		zap.Int("facts", len(facts)),
		zap.Int("rules_fired", out.TotalRulesFired),
		zap.String("status", string(out.OverallStatus)),
		zap.Bool("cached", cached))

	if s.runs != nil {
		// History is best effort; a failed write never fails the run.
		if err := s.runs.Save(history.Record{RunID: out.RunID, Facts: facts, Result: &out}); err != nil {
			s.logger.Warn("failed to record run", zap.String("run_id", out.RunID), zap.Error(err))
		}
	}

	for _, fn := range s.observers {
		fn(method, &out, cached)
	}
	return &out, nil
}

// Runs lists stored runs, newest first.
func (s *AnalysisService) Runs(limit int) ([]history.Summary, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: run history is not configured", errors.ErrUnavailable)
	}
	return s.runs.List(limit)
}

// Run returns a stored run. A miss wraps ErrNotFound.
func (s *AnalysisService) Run(runID string) (history.Record, error) {
	if s.runs == nil {
		return history.Record{}, fmt.Errorf("%w: run history is not configured", errors.ErrUnavailable)
	}
	return s.runs.Get(strings.TrimSpace(runID))
}

// warnings reports contradictory and unknown facts. They never block a run.
func (s *AnalysisService) warnings(facts []string) []string {
	var out []string
	for _, c := range s.catalog.Conflicts(facts) {
		out = append(out, "conflicting facts: "+c.String())
	}
	for _, f := range s.catalog.Unknown(facts, s.base) {
		msg := fmt.Sprintf("unknown fact %q matches no rule", f)
		if hints := s.catalog.Suggest(f); len(hints) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(hints, ", "))
		}
		out = append(out, msg)
	}
	return out
}

// RuleList is the full knowledge base.
type RuleList struct {
	Version    string    `json:"version,omitempty"`
	Categories []string  `json:"categories"`
	Rules      []kb.Rule `json:"rules"`
	Count      int       `json:"count"`
}

// ListRules returns every rule in declaration order.
func (s *AnalysisService) ListRules() RuleList {
	rules := s.base.Rules()
	return RuleList{
		Version:    s.base.Version(),
		Categories: s.base.Categories(),
		Rules:      rules,
		Count:      len(rules),
	}
}

// RulesByCategory returns the rules whose id prefix is category, case
// insensitively. An empty category returns everything.
func (s *AnalysisService) RulesByCategory(category string) []kb.Rule {
	rules := s.base.Rules()
	if category == "" {
		return rules
	}
	var out []kb.Rule
	for _, r := range rules {
		if strings.EqualFold(r.Category(), category) {
			out = append(out, r)
		}
	}
	return out
}

// RuleDetail is one rule with its remediation.
type RuleDetail struct {
	Rule           kb.Rule `json:"rule"`
	Recommendation string  `json:"recommendation"`
}

// GetRule looks up a rule. A miss wraps ErrNotFound and names close ids.
func (s *AnalysisService) GetRule(id string) (RuleDetail, error) {
	r, err := s.base.Find(strings.TrimSpace(id))
	if err != nil {
		return RuleDetail{}, err
	}
	text, ok := s.base.Recommendation(r.Consequence)
	if !ok {
		text = DefaultRecommendation
	}
	return RuleDetail{Rule: r, Recommendation: text}, nil
}

// FactList is the selectable fact catalog.
type FactList struct {
	Categories []kb.FactCategory `json:"categories"`
	Facts      []kb.FactOption   `json:"facts"`
	Count      int               `json:"count"`
}

// Facts returns the catalog.
func (s *AnalysisService) Facts() FactList {
	facts := s.catalog.Facts()
	return FactList{
		Categories: s.catalog.Categories(),
		Facts:      facts,
		Count:      len(facts),
	}
}

// RuleGraph renders the knowledge base for D3.
func (s *AnalysisService) RuleGraph() *export.D3Graph {
	return export.RuleGraph(s.base, s.catalog)
}

// TraceGraph renders the fired part of a report for D3.
func (s *AnalysisService) TraceGraph(res *engine.Result) *export.D3Graph {
	return export.TraceGraph(s.base, s.catalog, res)
}

// Explain evaluates facts and narrates the report.
func (s *AnalysisService) Explain(ctx context.Context, facts []string, method engine.Method) (*engine.Result, string, error) {
	if s.narrator == nil {
		return nil, "", fmt.Errorf("%w: report narration is not configured", errors.ErrUnavailable)
	}
	res, err := s.Evaluate(ctx, facts, method)
	if err != nil {
		return nil, "", err
	}
	text, err := s.narrator.Explain(ctx, res, NormalizeFacts(facts))
	if err != nil {
		return nil, "", err
	}
	return res, text, nil
}

// Health is static service metadata.
type Health struct {
	Status     string             `json:"status"`
	Version    string             `json:"version,omitempty"`
	Rules      int                `json:"rules"`
	Categories []string           `json:"categories"`
	Methods    []engine.Method    `json:"methods"`
	Cache      manager.CacheStats `json:"cache"`
	Narration  bool               `json:"narration"`
	History    bool               `json:"history"`
}

// Health reports service metadata.
func (s *AnalysisService) Health() Health {
	return Health{
		Status:     "ok",
		Version:    s.base.Version(),
		Rules:      s.base.Len(),
		Categories: s.base.Categories(),
		Methods:    append([]engine.Method(nil), engine.Methods...),
		Cache:      s.cache.Stats(),
		Narration:  s.narrator != nil,
		History:    s.runs != nil,
	}
}
