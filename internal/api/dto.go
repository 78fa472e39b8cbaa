package api

import (
	"github.com/starford/folio/internal/deploy"
	"github.com/starford/folio/internal/images"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/synth"
)

// GenerateRequest is the request body for POST /generate.
type GenerateRequest struct {
	Category models.Category `json:"category" example:"medico-estetico" validate:"required"`
	Topic    string          `json:"topic" example:"Beneficios del ácido hialurónico" validate:"required"`
}

// GenerateResponse carries an unsaved record and its stats.
type GenerateResponse struct {
	Success bool           `json:"success"`
	Blog    *models.Record `json:"blog"`
	Stats   synth.Stats    `json:"stats"`
}

// SaveRequest is the request body for POST /records.
type SaveRequest struct {
	BlogData *models.Record `json:"blogData" validate:"required"`
}

// SaveResponse reports where a record was written.
type SaveResponse struct {
	Success  bool                    `json:"success"`
	Slug     string                  `json:"slug"`
	Paths    []string                `json:"paths"`
	Targets  []string                `json:"targets"`
	Migrated *images.MigrationResult `json:"migrated,omitempty"`
}

// RecordListResponse wraps the stored records.
type RecordListResponse struct {
	Success bool             `json:"success"`
	Blogs   []*models.Record `json:"blogs"`
	Total   int              `json:"total" example:"42"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Success bool                 `json:"success"`
	Results []index.SearchResult `json:"results"`
}

// ImageUploadResponse is returned after a successful image upload.
type ImageUploadResponse struct {
	Success  bool             `json:"success"`
	URL      string           `json:"url" example:"/images/blog/temporal/hero-1700000000000000000.png"`
	Filename string           `json:"filename" example:"hero-1700000000000000000.png"`
	Image    *models.ImageRef `json:"image"`
}

// MigrateRequest is the request body for POST /images/migrate.
type MigrateRequest struct {
	Slug string `json:"slug" validate:"required"`
}

// DeployRequest is the request body for POST /deploy.
type DeployRequest struct {
	Slug          string `json:"slug" validate:"required"`
	CommitMessage string `json:"commitMessage,omitempty"`
}

// BatchDeployRequest is the request body for POST /deploy/batch.
type BatchDeployRequest struct {
	Slugs         []string `json:"slugs" validate:"required"`
	CommitMessage string   `json:"commitMessage,omitempty"`
}

// DeployResponse reports a deploy attempt.
type DeployResponse struct {
	Success bool `json:"success"`
	*deploy.Result
}

// BatchDeployResponse reports a batch deploy.
type BatchDeployResponse struct {
	Success bool `json:"success"`
	*deploy.BatchResult
}
