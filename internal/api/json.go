package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// errResponse is the body of every failed request.
type errResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message" validate:"required"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code" validate:"required"`
	Fields    map[string]string `json:"fields,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Committed bool              `json:"committed,omitempty"`
	Commit    string            `json:"commit,omitempty"`
}

// Machine codes not covered by the generation taxonomy.
const (
	codeBadRequest   = "bad_request"
	codeValidation   = "validation_error"
	codeNotFound     = "not_found"
	codeUnauthorized = "unauthorized"
	codeDeploy       = "deploy_failed"
	codeInternal     = "internal_error"
)

func errorBody(msg, code string) errResponse {
	return errResponse{Message: msg, Code: code}
}

// generationStatus maps a generation error code to its HTTP status.
var generationStatus = map[string]int{
	apperr.CodeMissingCredentials: http.StatusInternalServerError,
	apperr.CodeInvalidAPIKey:      http.StatusUnauthorized,
	apperr.CodeInsufficientQuota:  http.StatusPaymentRequired,
	apperr.CodeRateLimited:        http.StatusTooManyRequests,
	apperr.CodeUnknown:            http.StatusInternalServerError,
}

// writeError maps a pipeline error onto a status code and error body.
func writeError(w http.ResponseWriter, op string, err error) {
	var (
		verr *apperr.ValidationError
		gerr *apperr.GenerationError
		derr *apperr.DeployError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errResponse{
			Message: "validation failed",
			Error:   verr.Error(),
			Code:    codeValidation,
			Fields:  verr.Fields,
		})
	case errors.As(err, &gerr):
		status, ok := generationStatus[gerr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		slog.Error(op+" failed", slog.String("code", gerr.Code), slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Message: gerr.Message, Error: err.Error(), Code: gerr.Code})
	case errors.As(err, &derr):
		status := http.StatusInternalServerError
		if derr.Stage == apperr.StageVerify {
			status = http.StatusConflict
		}
		slog.Error(op+" failed", slog.String("slug", derr.Slug), slog.String("stage", string(derr.Stage)),
			slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{
			Message:   "deploy failed at " + string(derr.Stage),
			Error:     err.Error(),
			Code:      codeDeploy,
			Stage:     string(derr.Stage),
			Committed: derr.Committed,
			Commit:    derr.Commit,
		})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Message: "not found", Error: err.Error(), Code: codeNotFound})
	case errors.Is(err, storage.ErrUnsupportedFormat):
		writeJSON(w, http.StatusBadRequest, errResponse{Message: storage.ErrUnsupportedFormat.Error(), Code: codeBadRequest})
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Message: "internal error", Error: err.Error(), Code: codeInternal})
	}
}
