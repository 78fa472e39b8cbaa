package api

import (
	"context"
	"net/http"
	"strings"
)

// Deploy handles POST /api/deploy. The git run is detached from client
// cancellation so an abandoned request cannot leave a half-staged tree.
//
//	@Summary		Commit and push one record
//	@Tags			deploy
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeployRequest	true	"Record to deploy"
//	@Success		200		{object}	DeployResponse
//	@Failure		409		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/deploy [post]
func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Slug) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required", codeBadRequest))
		return
	}
	res, err := h.svc.Deploy(context.WithoutCancel(r.Context()), req.Slug, req.CommitMessage)
	if err != nil {
		writeError(w, "deploy", err)
		return
	}
	writeJSON(w, http.StatusOK, DeployResponse{Success: true, Result: res})
}

// DeployBatch handles POST /api/deploy/batch.
func (h *Handler) DeployBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchDeployRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Slugs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("slugs must not be empty", codeBadRequest))
		return
	}
	out := h.svc.DeployBatch(context.WithoutCancel(r.Context()), req.Slugs, req.CommitMessage)
	writeJSON(w, http.StatusOK, BatchDeployResponse{Success: out.Summary.Failed == 0, BatchResult: out})
}

// GitStatus handles GET /api/git/status.
func (h *Handler) GitStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GitStatus(r.Context())
	if err != nil {
		writeError(w, "git status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": st})
}

// GitInfo handles GET /api/git/info.
func (h *Handler) GitInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.RepositoryInfo(r.Context())
	if err != nil {
		writeError(w, "git info", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "info": info})
}

// GitSync handles POST /api/git/sync.
func (h *Handler) GitSync(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.SyncRepository(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, "git sync", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": out})
}

// GitConnectivity handles GET /api/git/connectivity.
func (h *Handler) GitConnectivity(w http.ResponseWriter, r *http.Request) {
	c := h.svc.Connectivity(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": c.Connected, "connectivity": c})
}
