package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/tcof/internal/domain"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeBodyError(w, err)
		return v, false
	}
	return v, true
}

// readBody returns the raw request body with a size limit.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBodyError(w, err)
		return nil, false
	}
	return data, true
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, domain.CodeValidation, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid request body")
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeDomainError maps a service error onto a status code and error body.
// Internal errors are logged and reported with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	code := domain.Code(err)
	switch code {
	case domain.CodeNotFound:
		writeError(w, http.StatusNotFound, code, notFoundMsg)
	case domain.CodeValidation:
		msg := strings.TrimSuffix(err.Error(), ": "+domain.ErrValidation.Error())
		writeError(w, http.StatusBadRequest, code, msg)
	case domain.CodeConflict:
		writeError(w, http.StatusConflict, code, "resource was modified by another request")
	case domain.CodeUpdateFailed:
		slog.WarnContext(r.Context(), "update failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, code, "update failed")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, domain.CodeInternal, "internal server error")
	}
}
