package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/models"
)

// Sync walks the record store and brings the index up to date:
//   - new/changed records are upserted
//   - records no longer in the store are deleted from the index
func Sync(ctx context.Context, db RecordIndex, src RecordSource, logger *slog.Logger) error {
	return syncAll(ctx, db, src, logger, nil)
}

func syncAll(ctx context.Context, db RecordIndex, src RecordSource, logger *slog.Logger, cb EventCallback) error {
	recs, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("index: sync list: %w", err)
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		seen[r.Slug] = struct{}{}

		kind, err := upsertIfChanged(db, r, checksums[r.Slug])
		if err != nil {
			logger.Warn("sync: index failed", slog.String("slug", r.Slug), slog.String("error", err.Error()))
			continue
		}
		if kind == "" {
			continue
		}
		logger.Debug("sync: indexed", slog.String("slug", r.Slug), slog.String("op", kind))
		if cb != nil {
			cb(kind, r.Slug)
		}
	}

	// Remove stale entries.
	for slug := range checksums {
		if _, ok := seen[slug]; ok {
			continue
		}
		if err := db.DeleteRecord(slug); err != nil {
			logger.Warn("sync: delete failed", slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("slug", slug))
		if cb != nil {
			cb(EventDeleted, slug)
		}
	}
	return nil
}

// upsertIfChanged indexes r when its checksum differs from stored and
// reports what happened ("" when nothing changed).
func upsertIfChanged(db RecordIndex, r *models.Record, stored string) (string, error) {
	cs, err := checksum.Of(r)
	if err != nil {
		return "", err
	}
	if cs == stored {
		return "", nil
	}
	if err := db.UpsertRecord(r, cs); err != nil {
		return "", err
	}
	if stored == "" {
		return EventCreated, nil
	}
	return EventUpdated, nil
}

// Refresh re-reads one record from src and mirrors it into the index.
// It returns the kind of change applied, or "" when the index was
// already current.
func Refresh(ctx context.Context, db RecordIndex, src RecordSource, slug string) (string, error) {
	stored, err := db.GetChecksum(slug)
	if err != nil {
		return "", err
	}
	r, err := src.Get(ctx, slug)
	if errors.Is(err, apperr.ErrNotFound) {
		if stored == "" {
			return "", nil
		}
		if err := db.DeleteRecord(slug); err != nil {
			return "", err
		}
		return EventDeleted, nil
	}
	if err != nil {
		return "", err
	}
	return upsertIfChanged(db, r, stored)
}
