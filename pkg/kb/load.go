package kb

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/datalog"
	"gopkg.in/yaml.v3"
)

//go:embed data/rules.yaml
var defaultRules []byte

// Document is the YAML form of a knowledge base.
type Document struct {
	Version         string            `yaml:"version"`
	Categories      []string          `yaml:"categories"`
	Rules           []RuleEntry       `yaml:"rules"`
	Recommendations map[string]string `yaml:"recommendations"`
}

// RuleEntry is a rule as written in YAML. Conditions and consequence may be
// given as a clause ("consequence :- c1, c2.") instead of separate fields.
type RuleEntry struct {
	Rule   `yaml:",inline"`
	Clause string `yaml:"clause,omitempty"`
}

func (e RuleEntry) resolve() (Rule, error) {
	r := e.Rule
	if e.Clause == "" {
		return r, nil
	}
	if len(r.Conditions) > 0 || r.Consequence != "" {
		return Rule{}, fmt.Errorf("rule %s: clause and conditions/consequence are mutually exclusive", r.ID)
	}
	c, err := datalog.ParseClause(e.Clause)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.Conditions = c.Body
	r.Consequence = c.Head
	return r, nil
}

// Load decodes a YAML knowledge base and validates it. Unknown keys are
// rejected so that typos do not silently drop conditions.
func Load(r io.Reader) (*KnowledgeBase, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode knowledge base: %v", errors.ErrInvalidInput, err)
	}
	return FromDocument(doc)
}

// LoadFile loads a knowledge base from a YAML file.
func LoadFile(path string) (*KnowledgeBase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// FromDocument builds a knowledge base from an already decoded document.
func FromDocument(doc Document) (*KnowledgeBase, error) {
	rules := make([]Rule, 0, len(doc.Rules))
	for _, e := range doc.Rules {
		r, err := e.resolve()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
		}
		rules = append(rules, r)
	}

	kb, err := New(rules, doc.Recommendations)
	if err != nil {
		return nil, err
	}
	kb.version = doc.Version
	if len(doc.Categories) > 0 {
		kb.categories = append([]string(nil), doc.Categories...)
	}
	return kb, nil
}

var loadDefault = sync.OnceValues(func() (*KnowledgeBase, error) {
	return Load(bytes.NewReader(defaultRules))
})

// Default returns the embedded knowledge base. It is parsed once and shared.
func Default() *KnowledgeBase {
	kb, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("kb: embedded knowledge base is invalid: %v", err))
	}
	return kb
}

// Open returns the knowledge base at path, or the embedded default when path
// is empty.
func Open(path string) (*KnowledgeBase, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
