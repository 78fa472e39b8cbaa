package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/pipeline"
)

// Handler holds API route handlers.
type Handler struct {
	svc            *pipeline.Service
	maxUploadBytes int64
}

// NewHandler creates a new Handler.
func NewHandler(svc *pipeline.Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// decodeJSON reads a bounded JSON body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "invalid JSON body", Error: err.Error(), Code: codeBadRequest})
		return false
	}
	return true
}

// Topics handles GET /api/topics.
//
//	@Summary		Suggested topics per category
//	@Tags			generation
//	@Produce		json
//	@Success		200	{object}	map[string][]string
//	@Security		BearerAuth
//	@Router			/topics [get]
func (h *Handler) Topics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"suggestions": h.svc.TopicSuggestions(),
	})
}

// Generate handles POST /api/generate. The provider call is detached from
// client cancellation.
//
//	@Summary		Generate an unsaved article
//	@Tags			generation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		GenerateRequest	true	"Category and topic"
//	@Success		200		{object}	GenerateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		402		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/generate [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Generate(context.WithoutCancel(r.Context()), req.Category, req.Topic)
	if err != nil {
		writeError(w, "generate", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Success: true, Blog: res.Record, Stats: res.Stats})
}

// SaveRecord handles POST /api/records.
//
//	@Summary		Persist a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	true	"Record to save"
//	@Success		201		{object}	SaveResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BlogData == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("blogData is required", codeBadRequest))
		return
	}
	out, err := h.svc.Save(r.Context(), req.BlogData)
	if err != nil {
		writeError(w, "save record", err)
		return
	}
	writeJSON(w, http.StatusCreated, SaveResponse{
		Success:  true,
		Slug:     out.Slug,
		Paths:    out.Paths,
		Targets:  out.Targets,
		Migrated: out.Migrated,
	})
}

// ListRecords handles GET /api/records.
//
//	@Summary		List stored records, newest first
//	@Tags			records
//	@Produce		json
//	@Success		200	{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Success: true, Blogs: recs, Total: len(recs)})
}

// GetRecord handles GET /api/records/{slug}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "blog": rec})
}

// DeleteRecord handles DELETE /api/records/{slug}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Delete(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "delete record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// ExportRecord handles GET /api/records/{slug}/export?format=json|md|toml.
func (h *Handler) ExportRecord(w http.ResponseWriter, r *http.Request) {
	exp, err := h.svc.Export(r.Context(), chi.URLParam(r, "slug"), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, "export record", err)
		return
	}
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Body)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

// GetIndex handles GET /api/index.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Index(r.Context())
	if err != nil {
		writeError(w, "read index", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RebuildIndex handles POST /api/index/rebuild.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.RebuildIndex(r.Context())
	if err != nil {
		writeError(w, "rebuild index", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across records
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required", codeBadRequest))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Success: true, Results: results})
}

// VerifyProvider handles POST /api/provider/verify.
func (h *Handler) VerifyProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.VerifyProvider(r.Context()); err != nil {
		writeError(w, "verify provider", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "credentials are valid"})
}
