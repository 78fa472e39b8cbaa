// Package models defines the domain types for folio.
package models

import "time"

// Category is one of the closed set of article categories.
type Category string

// Categories served by the pipeline.
const (
	CategoryAesthetic Category = "medico-estetico"
	CategoryTechnical Category = "tecnico"
)

// Categories returns every valid category in display order.
func Categories() []Category {
	return []Category{CategoryAesthetic, CategoryTechnical}
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a persisted record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Shape is the on-disk layout a record was found in.
type Shape string

const (
	ShapeOrganized Shape = "organized"
	ShapeLegacy    Shape = "legacy"
)

// Provenance tags.
const (
	SourceGenerated = "ai-generated-local"
	SourceLocal     = "local-generator"
	SourceLegacy    = "legacy"
)

// Paths points at the files that make up an organized record.
type Paths struct {
	Blog     string `json:"blog"`
	Images   string `json:"images"`
	Metadata string `json:"metadata"`
}

// Record is one synthesized article with its derived metadata.
type Record struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content"`
	Category    Category  `json:"category"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"publishedAt"`
	ReadTime    int       `json:"readTime"`
	Tags        []string  `json:"tags"`

	Image           string     `json:"image"`
	ImagePrimary    string     `json:"imagenPrincipal"`
	ImageConclusion string     `json:"imagenConclusion"`
	Images          []ImageRef `json:"images,omitempty"`
	Featured        bool       `json:"featured"`
	Source          string     `json:"source"`
	Status          Status     `json:"status,omitempty"`

	SavedAt   *time.Time `json:"savedAt,omitempty"`
	Structure Shape      `json:"structure,omitempty"`
	Paths     *Paths     `json:"paths,omitempty"`
}

// Metadata is the smaller per-record document used for index rebuilding
// and status tracking.
type Metadata struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Category    Category   `json:"category"`
	Author      string     `json:"author"`
	PublishedAt time.Time  `json:"publishedAt"`
	SavedAt     *time.Time `json:"savedAt,omitempty"`
	ReadTime    int        `json:"readTime"`
	Tags        []string   `json:"tags"`
	Featured    bool       `json:"featured"`
	Source      string     `json:"source"`
	Structure   Shape      `json:"structure"`
	Paths       *Paths     `json:"paths,omitempty"`
	Images      []ImageRef `json:"images"`
	Status      Status     `json:"status,omitempty"`
}

// MetadataOf projects a record onto its metadata document.
func MetadataOf(r *Record) Metadata {
	images := r.Images
	if images == nil {
		images = []ImageRef{}
	}
	return Metadata{
		ID:          r.ID,
		Title:       r.Title,
		Slug:        r.Slug,
		Category:    r.Category,
		Author:      r.Author,
		PublishedAt: r.PublishedAt,
		SavedAt:     r.SavedAt,
		ReadTime:    r.ReadTime,
		Tags:        r.Tags,
		Featured:    r.Featured,
		Source:      r.Source,
		Structure:   r.Structure,
		Paths:       r.Paths,
		Images:      images,
		Status:      r.Status,
	}
}

// IndexSummary is the materialized view written to index.json.
type IndexSummary struct {
	LastUpdated time.Time  `json:"lastUpdated"`
	Total       int        `json:"total"`
	Organized   int        `json:"organized"`
	Legacy      int        `json:"legacy"`
	Blogs       []Metadata `json:"blogs"`
}

// FileInfo is a lightweight description of a stored file.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
