package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

// Well-known file names.
const (
	IndexFile    = "index.json"
	RecordFile   = "index.json"
	MetadataFile = "metadata.json"
)

// Target is one physical root records are written to and read from.
type Target struct {
	Name     string
	Provider Provider
}

// SaveResult describes a successful save.
type SaveResult struct {
	Slug    string       `json:"slug"`
	Shape   models.Shape `json:"structure"`
	Paths   []string     `json:"paths"`
	Targets []string     `json:"targets"`
}

// Location is where the canonical copy of a record lives.
type Location struct {
	Slug   string
	Shape  models.Shape
	Dir    string // absolute record directory, organized shape only
	File   string // absolute path of the full record file
	Record *models.Record
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithImagePrefix sets the public URL prefix recorded in paths.images.
func WithImagePrefix(prefix string) Option {
	return func(s *Store) { s.imagePrefix = strings.TrimSuffix(prefix, "/") }
}

// Store persists records across an ordered list of targets. The first
// target is canonical: it is the one index.json is built from and the one
// deploys read. Reads scan targets in order and the first hit wins.
//
// Every mutation holds mu, so index rebuilds never interleave with writes.
type Store struct {
	targets     []Target
	logger      *slog.Logger
	now         func() time.Time
	imagePrefix string

	mu sync.Mutex
}

// New creates a Store over targets.
func New(targets []Target, opts ...Option) (*Store, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("storage: at least one target is required")
	}
	s := &Store{
		targets:     targets,
		logger:      slog.Default(),
		now:         time.Now,
		imagePrefix: "/images/blog",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Canonical returns the provider of the first target.
func (s *Store) Canonical() Provider {
	return s.targets[0].Provider
}

// Targets returns the configured targets in scan order.
func (s *Store) Targets() []Target {
	return append([]Target(nil), s.targets...)
}

func checkSlug(slug string) error {
	if !ValidSlug(slug) {
		return fmt.Errorf("storage: invalid slug %q: %w", slug, apperr.ErrNotFound)
	}
	return nil
}

func recordPath(slug string) string   { return path.Join(slug, RecordFile) }
func metadataPath(slug string) string { return path.Join(slug, MetadataFile) }
func legacyPath(slug string) string   { return slug + ".json" }

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save validates rec and writes it in the organized shape to every target.
// Nothing is written when validation fails.
func (s *Store) Save(_ context.Context, rec *models.Record) (*SaveResult, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := *rec
	stored.Tags = append([]string(nil), rec.Tags...)
	stored.SavedAt = &now
	stored.Structure = models.ShapeOrganized
	if stored.Source == "" {
		stored.Source = models.SourceLocal
	}
	if stored.Status == "" {
		stored.Status = models.StatusDraft
	}
	stored.Paths = &models.Paths{
		Blog:     recordPath(rec.Slug),
		Images:   s.imagePrefix + "/" + rec.Slug + "/",
		Metadata: metadataPath(rec.Slug),
	}
	if len(stored.Images) == 0 {
		stored.Images = s.existingImages(rec.Slug)
	}

	recData, err := marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("storage: encode record: %w", err)
	}
	metaData, err := marshal(models.MetadataOf(&stored))
	if err != nil {
		return nil, fmt.Errorf("storage: encode metadata: %w", err)
	}

	res := &SaveResult{Slug: rec.Slug, Shape: models.ShapeOrganized}
	for _, t := range s.targets {
		p := t.Provider
		if err := p.Write(recordPath(rec.Slug), recData); err != nil {
			return nil, fmt.Errorf("storage: save %s to %s: %w", rec.Slug, t.Name, err)
		}
		if err := p.Write(metadataPath(rec.Slug), metaData); err != nil {
			return nil, fmt.Errorf("storage: save %s metadata to %s: %w", rec.Slug, t.Name, err)
		}
		if p.Exists(legacyPath(rec.Slug)) {
			if err := p.Delete(legacyPath(rec.Slug)); err != nil {
				s.logger.Warn("storage: remove superseded legacy file failed",
					slog.String("target", t.Name), slog.String("slug", rec.Slug), slog.String("error", err.Error()))
			}
		}
		res.Paths = append(res.Paths,
			filepath.Join(p.Root(), recordPath(rec.Slug)),
			filepath.Join(p.Root(), metadataPath(rec.Slug)))
		res.Targets = append(res.Targets, t.Name)
	}

	if _, err := s.rebuildIndexLocked(); err != nil {
		s.logger.Warn("storage: index rebuild after save failed",
			slog.String("slug", rec.Slug), slog.String("error", err.Error()))
	}

	s.logger.Info("record saved", slog.String("slug", rec.Slug), slog.Int("targets", len(s.targets)))
	return res, nil
}

// existingImages returns the images already associated with slug in the
// canonical store, so a re-save does not drop them.
func (s *Store) existingImages(slug string) []models.ImageRef {
	meta, err := readMetadata(s.Canonical(), slug)
	if err != nil {
		return nil
	}
	return meta.Images
}

func readMetadata(p Provider, slug string) (*models.Metadata, error) {
	data, err := p.Read(metadataPath(slug))
	if err != nil {
		return nil, err
	}
	var m models.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", metadataPath(slug), err)
	}
	return &m, nil
}

func readRecord(p Provider, rel string) (*models.Record, error) {
	data, err := p.Read(rel)
	if err != nil {
		return nil, err
	}
	var r models.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", rel, err)
	}
	return &r, nil
}

// readOrganized loads the full record of an organized entry and overlays
// the fields tracked in metadata.json.
func readOrganized(p Provider, slug string) (*models.Record, error) {
	r, err := readRecord(p, recordPath(slug))
	if err != nil {
		return nil, err
	}
	if r.Slug == "" {
		r.Slug = slug
	}
	r.Structure = models.ShapeOrganized
	if meta, err := readMetadata(p, slug); err == nil {
		if meta.Status != "" {
			r.Status = meta.Status
		}
		if !meta.PublishedAt.IsZero() {
			r.PublishedAt = meta.PublishedAt
		}
		if len(meta.Images) > 0 {
			r.Images = meta.Images
		}
	}
	return r, nil
}

func readLegacy(p Provider, rel string) (*models.Record, error) {
	r, err := readRecord(p, rel)
	if err != nil {
		return nil, err
	}
	if r.Slug == "" {
		r.Slug = strings.TrimSuffix(path.Base(rel), ".json")
	}
	r.Structure = models.ShapeLegacy
	if r.Source == "" {
		r.Source = models.SourceLegacy
	}
	return r, nil
}

// Get returns the record for slug from the first target that has it.
func (s *Store) Get(_ context.Context, slug string) (*models.Record, error) {
	if err := checkSlug(slug); err != nil {
		return nil, err
	}
	for _, t := range s.targets {
		p := t.Provider
		if p.Exists(recordPath(slug)) {
			r, err := readOrganized(p, slug)
			if err == nil {
				return r, nil
			}
			s.logger.Warn("storage: unreadable organized record",
				slog.String("target", t.Name), slog.String("slug", slug), slog.String("error", err.Error()))
		}
		if p.Exists(legacyPath(slug)) {
			r, err := readLegacy(p, legacyPath(slug))
			if err == nil {
				return r, nil
			}
			s.logger.Warn("storage: unreadable legacy record",
				slog.String("target", t.Name), slog.String("slug", slug), slog.String("error", err.Error()))
		}
	}
	return nil, fmt.Errorf("storage: get %s: %w", slug, apperr.ErrNotFound)
}

// scanTarget returns every readable record in one target.
func (s *Store) scanTarget(t Target) ([]*models.Record, error) {
	entries, err := t.Provider.ReadDir("")
	if err != nil {
		return nil, err
	}
	var out []*models.Record
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if !t.Provider.Exists(recordPath(name)) {
				continue
			}
			r, err := readOrganized(t.Provider, name)
			if err != nil {
				s.logger.Warn("storage: skip organized entry",
					slog.String("target", t.Name), slog.String("entry", name), slog.String("error", err.Error()))
				continue
			}
			out = append(out, r)
		case isLegacyFile(e):
			r, err := readLegacy(t.Provider, name)
			if err != nil {
				s.logger.Warn("storage: skip legacy entry",
					slog.String("target", t.Name), slog.String("entry", name), slog.String("error", err.Error()))
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func isLegacyFile(e fs.DirEntry) bool {
	name := e.Name()
	return !e.IsDir() && strings.HasSuffix(name, ".json") && name != IndexFile && !IsTemp(name)
}

// List returns every record across all targets, counted once per slug
// (first target wins), newest publication first.
func (s *Store) List(_ context.Context) ([]*models.Record, error) {
	seen := make(map[string]bool)
	var out []*models.Record
	for _, t := range s.targets {
		recs, err := s.scanTarget(t)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", t.Name, err)
		}
		for _, r := range recs {
			if seen[r.Slug] {
				continue
			}
			seen[r.Slug] = true
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out, nil
}

// Delete removes every on-disk representation of slug in every target.
// It reports whether anything was removed.
func (s *Store) Delete(_ context.Context, slug string) (bool, error) {
	if err := checkSlug(slug); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	for _, t := range s.targets {
		p := t.Provider
		if p.Exists(slug) {
			if err := p.RemoveAll(slug); err != nil {
				return deleted, fmt.Errorf("storage: delete %s from %s: %w", slug, t.Name, err)
			}
			deleted = true
		}
		if p.Exists(legacyPath(slug)) {
			if err := p.Delete(legacyPath(slug)); err != nil {
				return deleted, fmt.Errorf("storage: delete %s from %s: %w", slug, t.Name, err)
			}
			deleted = true
		}
	}
	if deleted {
		if _, err := s.rebuildIndexLocked(); err != nil {
			s.logger.Warn("storage: index rebuild after delete failed",
				slog.String("slug", slug), slog.String("error", err.Error()))
		}
		s.logger.Info("record deleted", slog.String("slug", slug))
	}
	return deleted, nil
}

// RebuildIndex regenerates index.json in the canonical target.
func (s *Store) RebuildIndex(_ context.Context) (*models.IndexSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildIndexLocked()
}

func (s *Store) rebuildIndexLocked() (*models.IndexSummary, error) {
	p := s.Canonical()
	entries, err := p.ReadDir("")
	if err != nil {
		return nil, fmt.Errorf("storage: rebuild index: %w", err)
	}

	summary := &models.IndexSummary{Blogs: []models.Metadata{}}
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if !p.Exists(metadataPath(name)) {
				continue
			}
			meta, err := readMetadata(p, name)
			if err != nil {
				s.logger.Warn("storage: index skip organized entry",
					slog.String("entry", name), slog.String("error", err.Error()))
				continue
			}
			if meta.Slug == "" {
				meta.Slug = name
			}
			meta.Structure = models.ShapeOrganized
			summary.Blogs = append(summary.Blogs, *meta)
			summary.Organized++
		case isLegacyFile(e):
			r, err := readLegacy(p, name)
			if err != nil {
				s.logger.Warn("storage: index skip legacy entry",
					slog.String("entry", name), slog.String("error", err.Error()))
				continue
			}
			summary.Blogs = append(summary.Blogs, models.MetadataOf(r))
			summary.Legacy++
		}
	}
	sort.SliceStable(summary.Blogs, func(i, j int) bool {
		return summary.Blogs[i].PublishedAt.After(summary.Blogs[j].PublishedAt)
	})
	summary.Total = len(summary.Blogs)
	summary.LastUpdated = s.now().UTC()

	data, err := marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("storage: encode index: %w", err)
	}
	if err := p.Write(IndexFile, data); err != nil {
		return nil, fmt.Errorf("storage: write index: %w", err)
	}
	s.logger.Debug("index rebuilt",
		slog.Int("total", summary.Total),
		slog.Int("organized", summary.Organized),
		slog.Int("legacy", summary.Legacy))
	return summary, nil
}

// ReadIndex returns the current index.json, rebuilding it when absent.
func (s *Store) ReadIndex(ctx context.Context) (*models.IndexSummary, error) {
	data, err := s.Canonical().Read(IndexFile)
	if errors.Is(err, fs.ErrNotExist) {
		return s.RebuildIndex(ctx)
	}
	if err != nil {
		return nil, err
	}
	var summary models.IndexSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("storage: decode index: %w", err)
	}
	return &summary, nil
}

// AppendImages associates refs with an organized record in every target
// that holds it.
func (s *Store) AppendImages(_ context.Context, slug string, refs ...models.ImageRef) error {
	if err := checkSlug(slug); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, t := range s.targets {
		p := t.Provider
		if !p.Exists(metadataPath(slug)) {
			continue
		}
		found = true
		meta, err := readMetadata(p, slug)
		if err != nil {
			return err
		}
		meta.Images = append(meta.Images, refs...)
		if err := writeJSON(p, metadataPath(slug), meta); err != nil {
			return err
		}
		if rec, err := readRecord(p, recordPath(slug)); err == nil {
			rec.Images = append(rec.Images, refs...)
			if err := writeJSON(p, recordPath(slug), rec); err != nil {
				return err
			}
		}
	}
	if !found {
		return fmt.Errorf("storage: append images to %s: %w", slug, apperr.ErrNotFound)
	}
	if _, err := s.rebuildIndexLocked(); err != nil {
		s.logger.Warn("storage: index rebuild after image append failed",
			slog.String("slug", slug), slog.String("error", err.Error()))
	}
	return nil
}

// SetPublication writes status and publication time into the canonical
// metadata of slug and rebuilds the index.
func (s *Store) SetPublication(_ context.Context, slug string, status models.Status, at time.Time) error {
	if err := checkSlug(slug); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.Canonical()
	meta, err := readMetadata(p, slug)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: set publication of %s: %w", slug, apperr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	meta.Status = status
	meta.PublishedAt = at.UTC()
	if err := writeJSON(p, metadataPath(slug), meta); err != nil {
		return err
	}
	if _, err := s.rebuildIndexLocked(); err != nil {
		s.logger.Warn("storage: index rebuild after publish failed",
			slog.String("slug", slug), slog.String("error", err.Error()))
	}
	return nil
}

// Locate resolves the canonical on-disk copy of slug and checks that it parses.
func (s *Store) Locate(_ context.Context, slug string) (*Location, error) {
	if err := checkSlug(slug); err != nil {
		return nil, err
	}
	p := s.Canonical()
	if p.Exists(recordPath(slug)) {
		file := filepath.Join(p.Root(), recordPath(slug))
		r, err := readOrganized(p, slug)
		if err != nil {
			return nil, fmt.Errorf("storage: invalid record file %s: %w", file, err)
		}
		return &Location{
			Slug:   slug,
			Shape:  models.ShapeOrganized,
			Dir:    filepath.Join(p.Root(), slug),
			File:   file,
			Record: r,
		}, nil
	}
	if p.Exists(legacyPath(slug)) {
		file := filepath.Join(p.Root(), legacyPath(slug))
		r, err := readLegacy(p, legacyPath(slug))
		if err != nil {
			return nil, fmt.Errorf("storage: invalid record file %s: %w", file, err)
		}
		return &Location{Slug: slug, Shape: models.ShapeLegacy, File: file, Record: r}, nil
	}
	return nil, fmt.Errorf("storage: no record file at %s or %s: %w",
		filepath.Join(p.Root(), recordPath(slug)), filepath.Join(p.Root(), legacyPath(slug)), apperr.ErrNotFound)
}

func writeJSON(p Provider, rel string, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", rel, err)
	}
	return p.Write(rel, data)
}
