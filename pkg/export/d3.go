package export

import (
	"encoding/json"
	"os"

	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/kb"
)

// Node kinds.
const (
	KindInitial = "initial" // only ever a condition: observed, never derived
	KindDerived = "derived" // consequence of at least one rule
)

// D3Node represents a fact in the D3 force-directed graph.
type D3Node struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     string            `json:"kind,omitempty"`
	Group    string            `json:"group,omitempty"`    // catalog or rule category
	Severity kb.Severity       `json:"severity,omitempty"` // highest severity deriving this fact
	Present  *bool             `json:"present,omitempty"`  // in the final facts of a run
	Metadata map[string]string `json:"metadata,omitempty"`
}

// D3Link is one rule edge from a condition to the consequence.
type D3Link struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"` // rule id
	Weight   float64 `json:"weight,omitempty"`
	Type     string  `json:"type"` // rule severity
}

// D3Graph represents the full graph structure for D3.js.
type D3Graph struct {
	Nodes []D3Node `json:"nodes"`
	Links []D3Link `json:"links"`
}

// Empty returns a graph that serializes with empty lists.
func Empty() *D3Graph {
	return &D3Graph{Nodes: []D3Node{}, Links: []D3Link{}}
}

// builder collects nodes in first-seen order.
type builder struct {
	base    *kb.KnowledgeBase
	catalog *kb.Catalog
	graph   *D3Graph
	index   map[string]int
}

func newBuilder(base *kb.KnowledgeBase, catalog *kb.Catalog) *builder {
	return &builder{base: base, catalog: catalog, graph: Empty(), index: make(map[string]int)}
}

func (b *builder) node(fact string) *D3Node {
	if i, ok := b.index[fact]; ok {
		return &b.graph.Nodes[i]
	}

	n := D3Node{ID: fact, Name: fact, Kind: KindInitial}
	if b.catalog != nil {
		if opt, ok := b.catalog.Lookup(fact); ok {
			n.Name = opt.Label
			n.Group = opt.Category
		}
	}
	for _, r := range b.base.Producers(fact) {
		n.Kind = KindDerived
		if n.Group == "" {
			n.Group = r.Category()
		}
		if r.Severity.Rank() > n.Severity.Rank() {
			n.Severity = r.Severity
		}
	}
	if text, ok := b.base.Recommendation(fact); ok {
		n.Metadata = map[string]string{"recommendation": text}
	}

	b.index[fact] = len(b.graph.Nodes)
	b.graph.Nodes = append(b.graph.Nodes, n)
	return &b.graph.Nodes[len(b.graph.Nodes)-1]
}

func (b *builder) rule(r kb.Rule) {
	for _, c := range r.Conditions {
		b.node(c)
	}
	b.node(r.Consequence)
	// Links weigh 1/n so a conjunction of n conditions sums to one.
	w := 1 / float64(len(r.Conditions))
	for _, c := range r.Conditions {
		b.graph.Links = append(b.graph.Links, D3Link{
			Source:   c,
			Target:   r.Consequence,
			Relation: r.ID,
			Weight:   w,
			Type:     string(r.Severity),
		})
	}
}

// RuleGraph renders the whole knowledge base: one node per fact and one link
// per rule condition. catalog may be nil.
func RuleGraph(base *kb.KnowledgeBase, catalog *kb.Catalog) *D3Graph {
	b := newBuilder(base, catalog)
	for _, r := range base.Rules() {
		b.rule(r)
	}
	return b.graph
}

// TraceGraph renders only the rules fired in res. Each node records whether
// the fact ended up in the final fact set.
func TraceGraph(base *kb.KnowledgeBase, catalog *kb.Catalog, res *engine.Result) *D3Graph {
	b := newBuilder(base, catalog)
	for _, id := range res.FiredRules {
		if r, ok := base.Rule(id); ok {
			b.rule(r)
		}
	}
	// Initial facts that fired nothing still belong to the picture.
	for _, f := range res.FinalFacts {
		b.node(f)
	}

	final := make(map[string]bool, len(res.FinalFacts))
	for _, f := range res.FinalFacts {
		final[f] = true
	}
	for i := range b.graph.Nodes {
		present := final[b.graph.Nodes[i].ID]
		b.graph.Nodes[i].Present = &present
	}
	return b.graph
}

// PathGraph renders a derivation path: consecutive facts joined by the rule
// that links them.
func PathGraph(base *kb.KnowledgeBase, catalog *kb.Catalog, path []string, rules []string) *D3Graph {
	b := newBuilder(base, catalog)
	for _, f := range path {
		b.node(f)
	}
	for i, id := range rules {
		if i+1 >= len(path) {
			break
		}
		r, _ := base.Rule(id)
		b.graph.Links = append(b.graph.Links, D3Link{
			Source:   path[i],
			Target:   path[i+1],
			Relation: id,
			Weight:   1,
			Type:     string(r.Severity),
		})
	}
	return b.graph
}

// SaveD3Graph writes the graph to a JSON file.
func SaveD3Graph(graph *D3Graph, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(graph)
}
