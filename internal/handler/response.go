// Package handler contains the HTTP handlers of the tracecode API.
//
// Handlers only translate between HTTP and the service layer: decode the
// request, call a service, encode the result. Every error response has the
// same shape:
//
//	{"error": "not_found", "message": "submission not found: abc123"}
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/tracecode/internal/apperror"
)

// maxBodyBytes bounds request bodies. Code is capped at 100KB by the
// service; the rest is headroom for stdin and JSON escaping.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable, e.g. "not_found"
	Message string `json:"message"` // human-readable
}

// writeJSON sets headers and status before the body; header changes after
// the first Write are silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are gone already, all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error kind to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError sends the mapped status. Only *apperror.AppError messages
// reach the client; anything else becomes a generic 500 so SQL, paths and
// sandbox internals never leak.
func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	message := apperror.MessageOf(err, "An internal error occurred")
	if status == http.StatusInternalServerError {
		message = "An internal error occurred"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// decodeJSON reads a single JSON object from the body. Errors are already
// apperror validation failures.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be %d bytes or fewer", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		default:
			return apperror.ValidationFailed("body", "invalid JSON request body")
		}
	}
	return nil
}
