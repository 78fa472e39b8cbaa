package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/starford/folio/internal/models"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
	FormatTOML     = "toml"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("unsupported export format (use json, md or toml)")

// Export is a rendered record.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Export renders the record for slug in the requested format.
func (s *Store) Export(ctx context.Context, slug, format string) (*Export, error) {
	r, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatJSON:
		body, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("storage: export json: %w", err)
		}
		return &Export{Filename: slug + ".json", ContentType: "application/json; charset=utf-8", Body: body}, nil
	case FormatMarkdown, "markdown":
		return &Export{Filename: slug + ".md", ContentType: "text/markdown; charset=utf-8", Body: Markdown(r)}, nil
	case FormatTOML:
		body, err := TOMLDocument(r)
		if err != nil {
			return nil, err
		}
		return &Export{Filename: slug + ".md", ContentType: "text/markdown; charset=utf-8", Body: body}, nil
	default:
		return nil, fmt.Errorf("storage: export %q: %w", format, ErrUnsupportedFormat)
	}
}

// Markdown renders r as a front-matter header followed by its body.
func Markdown(r *models.Record) []byte {
	var b bytes.Buffer
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", r.Title)
	fmt.Fprintf(&b, "slug: %s\n", r.Slug)
	fmt.Fprintf(&b, "excerpt: %s\n", r.Excerpt)
	fmt.Fprintf(&b, "category: %s\n", r.Category)
	fmt.Fprintf(&b, "author: %s\n", r.Author)
	fmt.Fprintf(&b, "publishedAt: %s\n", r.PublishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "readTime: %d\n", r.ReadTime)
	fmt.Fprintf(&b, "tags: %s\n", strings.Join(r.Tags, ", "))
	fmt.Fprintf(&b, "featured: %t\n", r.Featured)
	b.WriteString("---\n\n")
	b.WriteString(r.Content)
	b.WriteString("\n")
	return b.Bytes()
}

type tomlFrontMatter struct {
	Title       string    `toml:"title"`
	Slug        string    `toml:"slug"`
	Description string    `toml:"description"`
	Date        time.Time `toml:"date"`
	Draft       bool      `toml:"draft"`
	Categories  []string  `toml:"categories"`
	Tags        []string  `toml:"tags"`
	Author      string    `toml:"author"`
	ReadTime    int       `toml:"readTime"`
	Featured    bool      `toml:"featured"`
}

// TOMLDocument renders r with a "+++" delimited TOML front matter.
func TOMLDocument(r *models.Record) ([]byte, error) {
	fm := tomlFrontMatter{
		Title:       r.Title,
		Slug:        r.Slug,
		Description: r.Excerpt,
		Date:        r.PublishedAt.UTC(),
		Draft:       r.Status != models.StatusPublished,
		Categories:  []string{string(r.Category)},
		Tags:        r.Tags,
		Author:      r.Author,
		ReadTime:    r.ReadTime,
		Featured:    r.Featured,
	}
	head, err := toml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("storage: export toml: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("+++\n")
	b.Write(head)
	b.WriteString("+++\n\n")
	b.WriteString(r.Content)
	b.WriteString("\n")
	return b.Bytes(), nil
}
