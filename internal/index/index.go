package index

import (
	"context"

	"github.com/starford/folio/internal/models"
)

// RecordIndex is the search mirror consumed by the transports.
type RecordIndex interface {
	UpsertRecord(r *models.Record, checksum string) error
	DeleteRecord(slug string) error
	GetChecksum(slug string) (string, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies RecordIndex at compile time.
var _ RecordIndex = (*DB)(nil)

// RecordSource is the authoritative record store the index mirrors.
type RecordSource interface {
	List(ctx context.Context) ([]*models.Record, error)
	Get(ctx context.Context, slug string) (*models.Record, error)
}
