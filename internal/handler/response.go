// Package handler implements the HTTP surface of the user service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopmesh/identity/internal/apperror"
)

// ErrorResponse is the standard error body. Every non-2xx response has
// this shape, so callers always know what fields to expect.
type ErrorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends a JSON response. Headers and status must be set before
// the first body write, hence the fixed order here.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already gone; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// The service layer deals in apperror sentinels; this is the single place
// they become status codes. Unauthorized always carries the same generic
// message, and unknown errors surface as a generic 500; raw error text
// can contain SQL or file paths and never reaches the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, ErrorResponse{
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Message: "An internal error occurred",
	})
}
