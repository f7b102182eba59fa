package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNoFile), errors.Is(err, apperr.ErrNoUser):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrDirNotEmpty):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidPath), errors.Is(err, apperr.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuth), errors.Is(err, apperr.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, blobstore.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, session.ErrClosed), errors.Is(err, apperr.ErrInvalidFile):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
