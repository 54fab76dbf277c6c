// Package handler contains the HTTP surface of the auth core: request
// decoding, cookie handling and the OAuth redirect dance. Business rules
// live in the service layer; this package only translates between HTTP and
// domain values.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sneakease/backend/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// MessageResponse is the standard success acknowledgment for flows that
// return no body data (signup, resend, forgot-password, ...).
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must be written before the body — Encode sends the headers.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP shape.
//
// The mapping mirrors the apperror kinds: missing fields and duplicates are
// 400, not-found (which also covers failed OTP checks — deliberately vague)
// is 404, token/password failures are 401. Anything else is an internal
// error and the raw message is never exposed to the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		kind := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrMissingFields):
			status = http.StatusBadRequest
			kind = "missing_fields"
		case errors.Is(err, apperror.ErrDuplicate):
			status = http.StatusBadRequest
			kind = "duplicate_identity"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			kind = "not_found"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			kind = "unauthorized"
		}

		writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
