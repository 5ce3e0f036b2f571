// Package category standardizes messy account names into a fixed category
// taxonomy using an ordered keyword table.
package category

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

//go:embed categories.yaml
var embeddedTable []byte

// DefaultCategory is assigned when no keyword matches.
const DefaultCategory = "Other Expenses"

// Category is one entry of the taxonomy with its matching keywords.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type table struct {
	Categories []Category `yaml:"categories"`
}

// Mapper assigns standardized categories to accounts. Categories are matched
// in declaration order, so the table lists specific categories first.
type Mapper struct {
	categories []Category
	names      map[string]struct{}
}

// NewMapper creates a mapper from the embedded category table.
func NewMapper() (*Mapper, error) {
	return parseTable(embeddedTable)
}

// LoadFromFile creates a mapper from a category table on disk, for
// deployments that override the built-in taxonomy.
func LoadFromFile(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category table: %w", err)
	}
	m, err := parseTable(data)
	if err != nil {
		return nil, fmt.Errorf("category table %s: %w", path, err)
	}
	return m, nil
}

func parseTable(data []byte) (*Mapper, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse category table: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("category table has no categories")
	}

	names := make(map[string]struct{}, len(t.Categories))
	for i, c := range t.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d: missing name", i)
		}
		if _, dup := names[c.Name]; dup {
			return nil, fmt.Errorf("category %d: duplicate name %q", i, c.Name)
		}
		names[c.Name] = struct{}{}
		// Keywords are matched against folded text, so fold them too.
		for j, kw := range c.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("category %q: empty keyword at %d", c.Name, j)
			}
			t.Categories[i].Keywords[j] = fold(kw)
		}
	}

	if _, ok := names[DefaultCategory]; !ok {
		return nil, fmt.Errorf("category table must include %q", DefaultCategory)
	}

	return &Mapper{categories: t.Categories, names: names}, nil
}

// fold normalizes text for keyword matching: decompose, strip combining
// marks, recompose, lowercase. "Résumé Prep" and "resume prep" match the
// same keywords.
func fold(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Map returns the standardized category for an account. Revenue and COGS
// account types short-circuit to their fixed categories; expense accounts
// are matched by name first, then by name plus the hint (usually the parent
// account), and fall back to the default.
//
// Matching is plain substring, not word-boundary: "rental" matches "rent".
// That looseness is intentional, account names in the wild rarely tokenize
// cleanly.
func (m *Mapper) Map(accountName string, accountType domain.AccountType, hint string) string {
	switch accountType {
	case domain.AccountTypeRevenue:
		return "Revenue"
	case domain.AccountTypeCOGS:
		return "Cost of Goods Sold"
	}

	name := fold(accountName)
	if cat, ok := m.match(name); ok {
		return cat
	}
	if hint != "" {
		if cat, ok := m.match(name + " " + fold(hint)); ok {
			return cat
		}
	}
	return DefaultCategory
}

// match scans categories in declaration order and returns the first whose
// keywords appear in text.
func (m *Mapper) match(text string) (string, bool) {
	for _, c := range m.categories {
		for _, kw := range c.Keywords {
			if strings.Contains(text, kw) {
				return c.Name, true
			}
		}
	}
	return "", false
}

// Standard returns the taxonomy in declaration order.
func (m *Mapper) Standard() []string {
	names := make([]string, len(m.categories))
	for i, c := range m.categories {
		names[i] = c.Name
	}
	return names
}

// Valid reports whether cat belongs to the taxonomy.
func (m *Mapper) Valid(cat string) bool {
	_, ok := m.names[cat]
	return ok
}
