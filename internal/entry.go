// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/deploy"
	"github.com/starford/folio/internal/images"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/pipeline"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/synth"
)

// components is the wired object graph shared by every command.
type components struct {
	store  *storage.Store
	images *images.Manager
	db     *index.DB
	svc    *pipeline.Service
	broker *sse.Broker
}

func (c *components) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		// Initialize structured JSON logger.
		app.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	slog.SetDefault(app.logger)
	return app, nil
}

// build wires storage, images, the search index, the provider, the deploy
// orchestrator and the pipeline service from cfg. events may be nil.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, events pipeline.Publisher) (*components, error) {
	targets := make([]storage.Target, 0, len(cfg.Store.Targets))
	for _, t := range cfg.Store.Targets {
		fs, err := storage.NewFS(t.Root)
		if err != nil {
			return nil, fmt.Errorf("init target %s: %w", t.Name, err)
		}
		targets = append(targets, storage.Target{Name: t.Name, Provider: fs})
	}
	store, err := storage.New(targets,
		storage.WithLogger(logger),
		storage.WithImagePrefix(cfg.Images.URLPrefix))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	imgFS, err := storage.NewFS(cfg.Images.Root)
	if err != nil {
		return nil, fmt.Errorf("init image root: %w", err)
	}
	imgs := images.New(imgFS, store, images.Config{
		URLPrefix:      cfg.Images.URLPrefix,
		MaxUploadBytes: cfg.Images.MaxUploadBytes,
		MaxWidth:       cfg.Images.MaxWidth,
	}, images.WithLogger(logger))

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	table, err := loadProfiles(cfg.Provider.Profiles)
	if err != nil {
		db.Close()
		return nil, err
	}
	provider, err := synth.NewProvider(ctx, synth.ProviderConfig{
		Kind:    cfg.Provider.Kind,
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init provider: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		logger.Warn("no provider API key configured; generation will fail until one is set",
			slog.String("provider", provider.Name()))
	}
	synthSvc := synth.NewService(provider, table,
		synth.WithExcerptLength(cfg.Store.ExcerptLength),
		synth.WithSampling(cfg.Provider.MaxTokens, cfg.Provider.Temperature),
		synth.WithLogger(logger))

	orch := deploy.New(deploy.NewCLI(cfg.Git.RepoRoot), store, imgs, deploy.Config{
		RepoRoot:   cfg.Git.RepoRoot,
		Remote:     cfg.Git.Remote,
		Branch:     cfg.Git.Branch,
		BatchDelay: cfg.Git.BatchDelay,
		IndexFile:  filepath.Join(store.Canonical().Root(), storage.IndexFile),
	}, deploy.WithLogger(logger))

	svc := pipeline.New(pipeline.Deps{
		Synth:  synthSvc,
		Store:  store,
		Images: imgs,
		Index:  db,
		Deploy: orch,
		Events: events,
		Logger: logger,
	})
	return &components{store: store, images: imgs, db: db, svc: svc}, nil
}

func loadProfiles(path string) (*profile.Table, error) {
	if path == "" {
		t, err := profile.Default()
		if err != nil {
			return nil, fmt.Errorf("load default profiles: %w", err)
		}
		return t, nil
	}
	t, err := profile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load profiles %s: %w", path, err)
	}
	return t, nil
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Int("targets", len(cfg.Store.Targets)),
		slog.String("images_root", cfg.Images.Root),
		slog.String("repo_root", cfg.Git.RepoRoot),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("provider", cfg.Provider.Kind),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	c, err := build(ctx, cfg, logger, broker)
	if err != nil {
		broker.Close()
		return err
	}
	c.broker = broker
	defer c.Close()

	// Run initial sync.
	if err := index.Sync(ctx, c.db, c.store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(c.svc, api.RouterConfig{
		AuthEnabled:    cfg.Auth.AuthEnabled(),
		Token:          cfg.Auth.Token,
		Events:         broker,
		MaxUploadBytes: cfg.Images.MaxUploadBytes,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := c.db.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		healthOK(w, req)
	})

	r.Mount("/api", apiRouter)

	// Public image files.
	prefix := "/" + strings.Trim(cfg.Images.URLPrefix, "/")
	r.Get(prefix+"/{owner}/{filename}", api.NewImageServer(c.images.Root()).ServeHTTP)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the search index in step with the canonical target.
	canonical := c.store.Canonical().Root()
	g.Go(func() error {
		err := index.Watch(gCtx, c.db, c.store, canonical, logger, func(kind, slug string) {
			broker.PublishIndexChange(kind, slug)
		})
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio. Logs go to stderr so they never
// corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append(opts, func(a *application) {
		if a.config != nil && a.logger == nil {
			a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: a.config.App.LogLevel}))
		}
	})
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	c, err := build(ctx, app.config, app.logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := index.Sync(ctx, c.db, c.store, app.logger); err != nil {
		app.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	app.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

// Reindex rebuilds index.json on the canonical target and resyncs the
// search index, then exits.
func Reindex(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := build(ctx, app.config, app.logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	sum, err := c.svc.RebuildIndex(ctx)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	n, err := c.db.Count()
	if err != nil {
		return fmt.Errorf("count indexed records: %w", err)
	}
	app.logger.Info("Index rebuilt",
		slog.Int("records", sum.Total),
		slog.Int("searchable", n))
	return nil
}
