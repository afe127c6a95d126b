package kb

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"gopkg.in/yaml.v3"
)

//go:embed data/facts.yaml
var defaultCatalog []byte

// FactCategory groups related observation facts.
type FactCategory struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

// FactOption is a fact a scanner or user can report.
type FactOption struct {
	Fact     string `json:"fact" yaml:"fact"`
	Label    string `json:"label" yaml:"label"`
	Category string `json:"category" yaml:"category"`
}

// Conflict is a pair of facts that cannot both describe the same server.
type Conflict struct {
	Fact          string `json:"fact"`
	ConflictsWith string `json:"conflicts_with"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s contradicts %s", c.Fact, c.ConflictsWith)
}

// Catalog is the read-only list of known observation facts.
type Catalog struct {
	categories []FactCategory
	facts      []FactOption
	index      map[string]int
	exclusions map[string][]string
}

type catalogDocument struct {
	Categories []FactCategory      `yaml:"categories"`
	Facts      []FactOption        `yaml:"facts"`
	Exclusions map[string][]string `yaml:"exclusions"`
}

// LoadCatalog decodes a YAML fact catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var doc catalogDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode fact catalog: %v", errors.ErrInvalidInput, err)
	}

	c := &Catalog{
		categories: doc.Categories,
		facts:      doc.Facts,
		index:      make(map[string]int, len(doc.Facts)),
		exclusions: doc.Exclusions,
	}
	for i, f := range doc.Facts {
		if f.Fact == "" {
			return nil, fmt.Errorf("%w: fact catalog entry #%d has no fact", errors.ErrInvalidInput, i)
		}
		if _, dup := c.index[f.Fact]; dup {
			return nil, fmt.Errorf("%w: fact catalog lists %q twice", errors.ErrInvalidInput, f.Fact)
		}
		c.index[f.Fact] = i
	}
	return c, nil
}

// LoadCatalogFile loads a fact catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

var loadDefaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
})

// DefaultCatalog returns the embedded fact catalog.
func DefaultCatalog() *Catalog {
	c, err := loadDefaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("kb: embedded fact catalog is invalid: %v", err))
	}
	return c
}

// OpenCatalog returns the catalog at path, or the embedded one when path is empty.
func OpenCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	return LoadCatalogFile(path)
}

// Categories returns the fact categories in declaration order.
func (c *Catalog) Categories() []FactCategory {
	return slices.Clone(c.categories)
}

// Facts returns every catalog entry in declaration order.
func (c *Catalog) Facts() []FactOption {
	return slices.Clone(c.facts)
}

// Lookup returns the catalog entry for fact.
func (c *Catalog) Lookup(fact string) (FactOption, bool) {
	i, ok := c.index[fact]
	if !ok {
		return FactOption{}, false
	}
	return c.facts[i], true
}

// Conflicts returns each mutually exclusive pair present in facts, once per
// pair, ordered by the position of the first fact of the pair.
func (c *Catalog) Conflicts(facts []string) []Conflict {
	present := make(map[string]bool, len(facts))
	for _, f := range facts {
		present[f] = true
	}

	var out []Conflict
	reported := make(map[[2]string]bool)
	for _, f := range facts {
		for _, other := range c.exclusions[f] {
			if !present[other] {
				continue
			}
			key := [2]string{min(f, other), max(f, other)}
			if reported[key] {
				continue
			}
			reported[key] = true
			out = append(out, Conflict{Fact: f, ConflictsWith: other})
		}
	}
	return out
}

// Unknown returns the facts that neither appear in the catalog nor in any
// rule condition of base, in input order without repeats.
func (c *Catalog) Unknown(facts []string, base *KnowledgeBase) []string {
	known := make(map[string]bool)
	for _, cond := range base.Conditions() {
		known[cond] = true
	}

	var out []string
	seen := make(map[string]bool)
	for _, f := range facts {
		if seen[f] {
			continue
		}
		seen[f] = true
		if _, ok := c.index[f]; ok || known[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Suggest returns up to three catalog facts close to fact.
func (c *Catalog) Suggest(fact string) []string {
	names := make([]string, len(c.facts))
	for i, f := range c.facts {
		names[i] = f.Fact
	}
	return Suggest(fact, names, 3)
}
