package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/folio/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

// UpsertRecord inserts or replaces a record and its FTS entry within a transaction.
func (db *DB) UpsertRecord(r *models.Record, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	var published any
	if !r.PublishedAt.IsZero() {
		published = r.PublishedAt.UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO records (slug, title, excerpt, category, author, status, structure, tags, body, published_at, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title        = excluded.title,
			excerpt      = excluded.excerpt,
			category     = excluded.category,
			author       = excluded.author,
			status       = excluded.status,
			structure    = excluded.structure,
			tags         = excluded.tags,
			body         = excluded.body,
			published_at = excluded.published_at,
			checksum     = excluded.checksum,
			updated_at   = excluded.updated_at
	`, r.Slug, r.Title, r.Excerpt, string(r.Category), r.Author, string(r.Status), string(r.Structure),
		string(tagsJSON), r.Content, published, checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, r.Slug, r.Title, r.Excerpt, r.Content, tags); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRecord removes a record and its FTS entry.
func (db *DB) DeleteRecord(slug string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, slug)
	if _, err := tx.Exec(`DELETE FROM records WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("index: delete record: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a record, or "" if not indexed.
func (db *DB) GetChecksum(slug string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM records WHERE slug = ?`, slug).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns slug → checksum for every indexed record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT slug, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var slug, cs string
		if err := rows.Scan(&slug, &cs); err != nil {
			return nil, err
		}
		out[slug] = cs
	}
	return out, rows.Err()
}

// Count returns the number of indexed records.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
