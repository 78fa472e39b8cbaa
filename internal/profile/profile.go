// Package profile loads the immutable category table that drives prompt
// construction, author attribution, tag seeding and keyword tagging.
package profile

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/models"
)

//go:embed default.yaml
var defaultYAML []byte

type categoryDoc struct {
	Name     string   `yaml:"name"`
	Author   string   `yaml:"author"`
	SeedTags []string `yaml:"seed_tags"`
	System   string   `yaml:"system"`
	User     string   `yaml:"user"`
	Topics   []string `yaml:"topics"`
}

type tableDoc struct {
	Categories []categoryDoc `yaml:"categories"`
	Keywords   [][]string    `yaml:"keywords"`
}

// Category is one compiled category profile.
type Category struct {
	Name     models.Category
	Author   string
	SeedTags []string
	Topics   []string
	System   string
	user     *template.Template
}

// UserPrompt renders the user instruction for topic.
func (c *Category) UserPrompt(topic string) (string, error) {
	var buf bytes.Buffer
	if err := c.user.Execute(&buf, struct{ Topic string }{Topic: topic}); err != nil {
		return "", fmt.Errorf("profile: render %s prompt: %w", c.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Keyword is a group of alternative spellings matched as whole words.
type Keyword struct {
	Terms []string
	re    *regexp.Regexp
}

// Find returns the first spelling of the group found in text, or "".
func (k Keyword) Find(text string) string {
	m := k.re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Table is the read-only category table. It is safe for concurrent use.
type Table struct {
	categories []*Category
	keywords   []Keyword
}

// Default returns the table embedded in the binary.
func Default() (*Table, error) {
	return Parse(defaultYAML)
}

// Load reads a table from path, or returns the embedded default when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse compiles a YAML table document.
func Parse(data []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("profile: parse: %w", err)
	}

	t := &Table{}
	seen := make(map[models.Category]bool)
	for _, cd := range doc.Categories {
		name := models.Category(cd.Name)
		if !name.Valid() {
			return nil, fmt.Errorf("profile: unknown category %q", cd.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("profile: duplicate category %q", cd.Name)
		}
		seen[name] = true

		tmpl, err := template.New(cd.Name).Option("missingkey=error").Parse(cd.User)
		if err != nil {
			return nil, fmt.Errorf("profile: %s user template: %w", cd.Name, err)
		}
		t.categories = append(t.categories, &Category{
			Name:     name,
			Author:   cd.Author,
			SeedTags: cd.SeedTags,
			Topics:   cd.Topics,
			System:   strings.TrimSpace(cd.System),
			user:     tmpl,
		})
	}
	for _, c := range models.Categories() {
		if !seen[c] {
			return nil, fmt.Errorf("profile: missing category %q", c)
		}
	}

	for _, terms := range doc.Keywords {
		if len(terms) == 0 {
			continue
		}
		quoted := make([]string, len(terms))
		for i, term := range terms {
			quoted[i] = regexp.QuoteMeta(term)
		}
		re, err := regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(quoted, "|") + `)(?:[^\p{L}\p{N}]|$)`)
		if err != nil {
			return nil, fmt.Errorf("profile: keyword %v: %w", terms, err)
		}
		t.keywords = append(t.keywords, Keyword{Terms: terms, re: re})
	}
	return t, nil
}

// Lookup returns the profile for category.
func (t *Table) Lookup(category models.Category) (*Category, bool) {
	for _, c := range t.categories {
		if c.Name == category {
			return c, true
		}
	}
	return nil, false
}

// SeedTags returns a copy of the seed tags for category.
func (t *Table) SeedTags(category models.Category) []string {
	c, ok := t.Lookup(category)
	if !ok {
		return nil
	}
	return append([]string(nil), c.SeedTags...)
}

// Keywords returns the keyword groups in match order.
func (t *Table) Keywords() []Keyword {
	return append([]Keyword(nil), t.keywords...)
}

// Topics returns the suggestion lists keyed by category.
func (t *Table) Topics() map[models.Category][]string {
	out := make(map[models.Category][]string, len(t.categories))
	for _, c := range t.categories {
		out[c.Name] = append([]string(nil), c.Topics...)
	}
	return out
}
