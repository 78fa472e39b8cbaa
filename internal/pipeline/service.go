// Package pipeline coordinates synthesis, storage, images, the search index,
// deployment and event fan-out behind one API used by every transport.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/starford/folio/internal/deploy"
	"github.com/starford/folio/internal/images"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/synth"
)

// Synthesizer produces candidate records.
type Synthesizer interface {
	Synthesize(ctx context.Context, category models.Category, topic string) (*synth.Result, error)
	TopicSuggestions() map[models.Category][]string
	VerifyCredentials(ctx context.Context) error
}

// Deployer publishes records through version control.
type Deployer interface {
	Deploy(ctx context.Context, slug, message string) (*deploy.Result, error)
	DeployBatch(ctx context.Context, slugs []string, message string) *deploy.BatchResult
	Status(ctx context.Context) (*deploy.Status, error)
	RepositoryInfo(ctx context.Context) (*deploy.RepositoryInfo, error)
	Sync(ctx context.Context) (string, error)
	TestConnectivity(ctx context.Context) *deploy.Connectivity
}

// Publisher receives pipeline events.
type Publisher interface {
	PublishRecordEvent(typ, slug string, extra map[string]string)
}

// Verify the concrete types satisfy the pipeline interfaces at compile time.
var (
	_ Synthesizer = (*synth.Service)(nil)
	_ Deployer    = (*deploy.Orchestrator)(nil)
	_ Publisher   = (*sse.Broker)(nil)
)

// SaveOutcome is the result of Save.
type SaveOutcome struct {
	*storage.SaveResult
	Migrated *images.MigrationResult `json:"migrated,omitempty"`
}

// Service is the coordinator the HTTP API and MCP server call.
type Service struct {
	synth  Synthesizer
	store  *storage.Store
	images *images.Manager
	db     index.RecordIndex
	deploy Deployer
	events Publisher
	logger *slog.Logger
}

// Deps groups the collaborators of a Service. Events may be nil.
type Deps struct {
	Synth  Synthesizer
	Store  *storage.Store
	Images *images.Manager
	Index  index.RecordIndex
	Deploy Deployer
	Events Publisher
	Logger *slog.Logger
}

// New creates a pipeline service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		synth:  d.Synth,
		store:  d.Store,
		images: d.Images,
		db:     d.Index,
		deploy: d.Deploy,
		events: d.Events,
		logger: logger,
	}
}

func (s *Service) publish(typ, slug string, extra map[string]string) {
	if s.events != nil {
		s.events.PublishRecordEvent(typ, slug, extra)
	}
}

// reindex mirrors slug into the search index. Failures are logged; the
// watcher and the next sync will catch up.
func (s *Service) reindex(ctx context.Context, slug string) {
	if s.db == nil {
		return
	}
	if _, err := index.Refresh(ctx, s.db, s.store, slug); err != nil {
		s.logger.Warn("pipeline: reindex failed", slog.String("slug", slug), slog.String("error", err.Error()))
	}
}

// TopicSuggestions returns the suggested topics per category.
func (s *Service) TopicSuggestions() map[models.Category][]string {
	return s.synth.TopicSuggestions()
}

// VerifyProvider checks the configured provider credentials.
func (s *Service) VerifyProvider(ctx context.Context) error {
	return s.synth.VerifyCredentials(ctx)
}

// Generate synthesizes a candidate record. Nothing is persisted.
func (s *Service) Generate(ctx context.Context, category models.Category, topic string) (*synth.Result, error) {
	return s.synth.Synthesize(ctx, category, topic)
}

// Save persists rec, moves any held images into its directory, refreshes the
// search index and announces the save.
func (s *Service) Save(ctx context.Context, rec *models.Record) (*SaveOutcome, error) {
	res, err := s.store.Save(ctx, rec)
	if err != nil {
		return nil, err
	}
	out := &SaveOutcome{SaveResult: res}

	if s.images != nil {
		migrated, err := s.images.MigrateHeld(ctx, res.Slug)
		if err != nil {
			s.logger.Warn("pipeline: migrate held images failed",
				slog.String("slug", res.Slug), slog.String("error", err.Error()))
		} else if len(migrated.Moved) > 0 || len(migrated.Failed) > 0 {
			out.Migrated = migrated
		}
	}

	s.reindex(ctx, res.Slug)
	s.publish(sse.TypeSaved, res.Slug, map[string]string{"title": rec.Title})
	return out, nil
}

// Get returns the record stored under slug.
func (s *Service) Get(ctx context.Context, slug string) (*models.Record, error) {
	return s.store.Get(ctx, slug)
}

// List returns every stored record, newest first.
func (s *Service) List(ctx context.Context) ([]*models.Record, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*models.Record{}
	}
	return recs, nil
}

// Delete removes every representation of slug and reports whether anything
// was removed.
func (s *Service) Delete(ctx context.Context, slug string) (bool, error) {
	deleted, err := s.store.Delete(ctx, slug)
	if err != nil {
		return false, err
	}
	if deleted {
		s.reindex(ctx, slug)
		s.publish(sse.TypeDeleted, slug, nil)
	}
	return deleted, nil
}

// Export renders the record under slug in format (json, md or toml).
func (s *Service) Export(ctx context.Context, slug, format string) (*storage.Export, error) {
	return s.store.Export(ctx, slug, format)
}

// Stats computes aggregate statistics over the store.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.store.Stats(ctx)
}

// Index returns the current storage index, building it when absent.
func (s *Service) Index(ctx context.Context) (*models.IndexSummary, error) {
	return s.store.ReadIndex(ctx)
}

// RebuildIndex regenerates index.json and resyncs the search mirror.
func (s *Service) RebuildIndex(ctx context.Context) (*models.IndexSummary, error) {
	sum, err := s.store.RebuildIndex(ctx)
	if err != nil {
		return nil, err
	}
	if s.db != nil {
		if err := index.Sync(ctx, s.db, s.store, s.logger); err != nil {
			s.logger.Warn("pipeline: search resync failed", slog.String("error", err.Error()))
		}
	}
	return sum, nil
}

// Search runs a full-text query against the search mirror.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, errors.New("pipeline: search index not configured")
	}
	return s.db.Search(query, limit)
}

// UploadImage stores an image for owner (empty for the holding area).
func (s *Service) UploadImage(ctx context.Context, owner, name string, r io.Reader) (*models.ImageRef, error) {
	ref, err := s.images.RecordUpload(ctx, owner, name, r)
	if err != nil {
		return nil, err
	}
	if owner != "" && owner != images.HoldingKey {
		s.reindex(ctx, owner)
	}
	return ref, nil
}

// MigrateImages moves held images into slug's directory.
func (s *Service) MigrateImages(ctx context.Context, slug string) (*images.MigrationResult, error) {
	res, err := s.images.MigrateHeld(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, slug)
	return res, nil
}

// Deploy commits and pushes slug, then announces the deploy.
func (s *Service) Deploy(ctx context.Context, slug, message string) (*deploy.Result, error) {
	res, err := s.deploy.Deploy(ctx, slug, message)
	if err != nil {
		return nil, err
	}
	s.afterDeploy(ctx, res)
	return res, nil
}

// DeployBatch deploys slugs sequentially.
func (s *Service) DeployBatch(ctx context.Context, slugs []string, message string) *deploy.BatchResult {
	out := s.deploy.DeployBatch(ctx, slugs, message)
	for _, item := range out.Results {
		if item.Result != nil {
			s.afterDeploy(ctx, item.Result)
		}
	}
	return out
}

func (s *Service) afterDeploy(ctx context.Context, res *deploy.Result) {
	if res.Skipped {
		return
	}
	s.reindex(ctx, res.Slug)
	s.publish(sse.TypeDeployed, res.Slug, map[string]string{
		"commit": res.Commit,
		"pushed": strconv.FormatBool(res.Pushed),
	})
}

// GitStatus reports the working-copy status.
func (s *Service) GitStatus(ctx context.Context) (*deploy.Status, error) {
	return s.deploy.Status(ctx)
}

// RepositoryInfo reports status, remotes and recent commits.
func (s *Service) RepositoryInfo(ctx context.Context) (*deploy.RepositoryInfo, error) {
	return s.deploy.RepositoryInfo(ctx)
}

// SyncRepository pulls the configured branch.
func (s *Service) SyncRepository(ctx context.Context) (string, error) {
	out, err := s.deploy.Sync(ctx)
	if err != nil {
		return "", fmt.Errorf("pipeline: sync repository: %w", err)
	}
	return out, nil
}

// Connectivity checks that the remote is reachable.
func (s *Service) Connectivity(ctx context.Context) *deploy.Connectivity {
	return s.deploy.TestConnectivity(ctx)
}
