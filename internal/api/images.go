package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// UploadImage handles POST /api/images (multipart/form-data, fields "file"
// and optional "recordSlug").
//
//	@Summary		Upload an image
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Image file"
//	@Param			recordSlug	formData	string	false	"Owning record; empty for the holding area"
//	@Success		201			{object}	ImageUploadResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images [post]
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	// Leave headroom for the multipart envelope; the manager enforces the
	// exact file limit.
	limit := h.maxUploadBytes + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "file too large or invalid multipart", Error: err.Error(), Code: codeBadRequest})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form", codeBadRequest))
		return
	}
	defer file.Close()

	owner := strings.TrimSpace(r.FormValue("recordSlug"))
	ref, err := h.svc.UploadImage(r.Context(), owner, header.Filename, file)
	if err != nil {
		writeError(w, "upload image", err)
		return
	}
	writeJSON(w, http.StatusCreated, ImageUploadResponse{
		Success:  true,
		URL:      ref.URL,
		Filename: ref.Filename,
		Image:    ref,
	})
}

// MigrateImages handles POST /api/images/migrate.
func (h *Handler) MigrateImages(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.MigrateImages(r.Context(), req.Slug)
	if err != nil {
		writeError(w, "migrate images", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "moved": res.Moved, "failed": res.Failed})
}

// ImageServer serves stored images from root as /{owner}/{filename}.
type ImageServer struct {
	root string
}

// NewImageServer creates a handler rooted at the image directory.
func NewImageServer(root string) *ImageServer {
	return &ImageServer{root: root}
}

// safePath validates that owner and name are plain names (no separators,
// no traversal) and returns the absolute path under root.
func (s *ImageServer) safePath(owner, name string) (string, error) {
	for _, part := range []string{owner, name} {
		if part == "" {
			return "", fmt.Errorf("owner and filename are required")
		}
		cleaned := filepath.Clean(part)
		if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
			return "", fmt.Errorf("invalid path segment: %s", part)
		}
	}
	abs := filepath.Join(s.root, owner, name)
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes image directory")
	}
	return abs, nil
}

// ServeHTTP handles GET {prefix}/{owner}/{filename}.
func (s *ImageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	abs, err := s.safePath(chi.URLParam(r, "owner"), chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, abs)
}
