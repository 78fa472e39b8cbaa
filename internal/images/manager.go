// Package images stores uploaded article images and ties them to records.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

// HoldingKey is the owner of images uploaded before their record exists.
const HoldingKey = storage.HoldingSlug

// DefaultMaxUploadBytes caps a single upload.
const DefaultMaxUploadBytes = 5 << 20

// Associator attaches image refs to a persisted record.
type Associator interface {
	AppendImages(ctx context.Context, slug string, refs ...models.ImageRef) error
}

// Config tunes upload handling.
type Config struct {
	URLPrefix      string
	MaxUploadBytes int64
	MaxWidth       int
}

// MigrationResult reports the outcome of MigrateHeld.
type MigrationResult struct {
	Moved  []models.ImageRef `json:"moved"`
	Failed []string          `json:"failed,omitempty"`
}

// Manager writes images below a root with one directory per owner.
type Manager struct {
	files  storage.Provider
	assoc  Associator
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for stamps and uploadedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager. assoc may be nil, in which case uploads are
// stored but never associated.
func New(files storage.Provider, assoc Associator, cfg Config, opts ...Option) *Manager {
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/images/blog"
	}
	cfg.URLPrefix = strings.TrimSuffix(cfg.URLPrefix, "/")
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	m := &Manager{
		files:  files,
		assoc:  assoc,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the absolute image root.
func (m *Manager) Root() string { return m.files.Root() }

// Dir returns the absolute directory holding the images of owner.
func (m *Manager) Dir(owner string) string {
	return filepath.Join(m.files.Root(), owner)
}

// HasImages reports whether owner has at least one stored image.
func (m *Manager) HasImages(owner string) bool {
	entries, err := m.files.ReadDir(owner)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && !storage.IsTemp(e.Name()) {
			return true
		}
	}
	return false
}

// URL returns the public path of filename owned by owner.
func (m *Manager) URL(owner, filename string) string {
	return m.cfg.URLPrefix + "/" + owner + "/" + filename
}

func uploadErr(msg string) error {
	return &apperr.ValidationError{Fields: map[string]string{"file": msg}}
}

// RecordUpload stores the image read from r under owner. An empty owner
// means the holding area. Uploads to a real slug are associated with the
// record right away when it exists.
func (m *Manager) RecordUpload(ctx context.Context, owner, originalName string, r io.Reader) (*models.ImageRef, error) {
	if owner == "" {
		owner = HoldingKey
	}
	if owner != HoldingKey && !storage.ValidSlug(owner) {
		return nil, &apperr.ValidationError{Fields: map[string]string{"recordSlug": "must be a valid slug"}}
	}

	data, err := io.ReadAll(io.LimitReader(r, m.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("images: read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, uploadErr("cannot be empty")
	}
	if int64(len(data)) > m.cfg.MaxUploadBytes {
		return nil, uploadErr(fmt.Sprintf("file too large (max %d bytes)", m.cfg.MaxUploadBytes))
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	mime, err := sniff(data, ext)
	if err != nil {
		return nil, uploadErr(err.Error())
	}
	if ext == "" {
		originalName += mimeToExt[mime]
	}

	width, height, format := probe(data)
	if m.cfg.MaxWidth > 0 && width > m.cfg.MaxWidth && (format == "png" || format == "jpeg") {
		scaled, w, h, err := downscale(data, format, m.cfg.MaxWidth)
		if err != nil {
			m.logger.Warn("images: downscale failed, keeping original",
				slog.String("name", originalName), slog.String("error", err.Error()))
		} else {
			data, width, height = scaled, w, h
		}
	}

	now := m.now().UTC()
	filename := Filename(originalName, now.UnixNano())
	if err := m.files.Write(path.Join(owner, filename), data); err != nil {
		return nil, fmt.Errorf("images: store %s: %w", filename, err)
	}

	ref := &models.ImageRef{
		URL:          m.URL(owner, filename),
		Filename:     filename,
		OriginalName: originalName,
		Type:         Classify(filename),
		UploadedAt:   now,
		Width:        width,
		Height:       height,
		Size:         int64(len(data)),
	}
	m.logger.Info("image uploaded",
		slog.String("owner", owner), slog.String("filename", filename), slog.Int64("size", ref.Size))

	if owner != HoldingKey {
		if err := m.Associate(ctx, owner, *ref); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// Associate appends ref to the record identified by slug. A record that
// does not exist yet is not an error: the image stays in its directory.
func (m *Manager) Associate(ctx context.Context, slug string, refs ...models.ImageRef) error {
	if m.assoc == nil || len(refs) == 0 {
		return nil
	}
	err := m.assoc.AppendImages(ctx, slug, refs...)
	if errors.Is(err, apperr.ErrNotFound) {
		m.logger.Debug("images: record not saved yet, skipping association", slog.String("slug", slug))
		return nil
	}
	if err != nil {
		return fmt.Errorf("images: associate with %s: %w", slug, err)
	}
	return nil
}

// MigrateHeld moves every image in the holding area into slug's directory
// and associates the moved images with the record.
func (m *Manager) MigrateHeld(ctx context.Context, slug string) (*MigrationResult, error) {
	if !storage.ValidSlug(slug) {
		return nil, &apperr.ValidationError{Fields: map[string]string{"slug": "must be a valid slug"}}
	}
	res := &MigrationResult{}
	entries, err := m.files.ReadDir(HoldingKey)
	if err != nil {
		return nil, fmt.Errorf("images: read holding area: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || storage.IsTemp(name) {
			continue
		}
		if err := m.files.Move(path.Join(HoldingKey, name), path.Join(slug, name)); err != nil {
			m.logger.Warn("images: move held image failed",
				slog.String("file", name), slog.String("slug", slug), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, name)
			continue
		}
		res.Moved = append(res.Moved, m.describe(slug, name))
	}
	if len(res.Moved) > 0 {
		m.logger.Info("held images migrated", slog.String("slug", slug), slog.Int("moved", len(res.Moved)))
	}

	m.cleanupHolding()

	if err := m.Associate(ctx, slug, res.Moved...); err != nil {
		return res, err
	}
	return res, nil
}

// describe builds a ref for an image already on disk.
func (m *Manager) describe(owner, filename string) models.ImageRef {
	ref := models.ImageRef{
		URL:        m.URL(owner, filename),
		Filename:   filename,
		Type:       Classify(filename),
		UploadedAt: m.now().UTC(),
	}
	if data, err := m.files.Read(path.Join(owner, filename)); err == nil {
		ref.Size = int64(len(data))
		ref.Width, ref.Height, _ = probe(data)
	}
	return ref
}

// cleanupHolding removes the holding directory once it is empty.
func (m *Manager) cleanupHolding() {
	remaining, err := m.files.ReadDir(HoldingKey)
	if err != nil {
		m.logger.Warn("images: inspect holding area failed", slog.String("error", err.Error()))
		return
	}
	if len(remaining) > 0 {
		return
	}
	if err := m.files.RemoveAll(HoldingKey); err != nil {
		m.logger.Warn("images: remove holding area failed", slog.String("error", err.Error()))
	}
}
