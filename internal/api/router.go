package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/pipeline"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events         http.Handler
	MaxUploadBytes int64
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *pipeline.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Generation.
	r.Get("/topics", h.Topics)
	r.Post("/generate", h.Generate)
	r.Post("/provider/verify", h.VerifyProvider)

	// Records.
	r.Get("/records", h.ListRecords)
	r.Post("/records", h.SaveRecord)
	r.Get("/records/{slug}", h.GetRecord)
	r.Delete("/records/{slug}", h.DeleteRecord)
	r.Get("/records/{slug}/export", h.ExportRecord)
	r.Get("/stats", h.Stats)
	r.Get("/index", h.GetIndex)
	r.Post("/index/rebuild", h.RebuildIndex)
	r.Get("/search", h.Search)

	// Images.
	r.Post("/images", h.UploadImage)
	r.Post("/images/migrate", h.MigrateImages)

	// Deploy and git.
	r.Post("/deploy", h.Deploy)
	r.Post("/deploy/batch", h.DeployBatch)
	r.Get("/git/status", h.GitStatus)
	r.Get("/git/info", h.GitInfo)
	r.Post("/git/sync", h.GitSync)
	r.Get("/git/connectivity", h.GitConnectivity)

	// SSE endpoint (protected by same auth middleware).
	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
