// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/eventsink"
	"github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/recordings"
)

// Problem is the JSON error body.
type Problem struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem maps err to a status code and a stable error code.
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	code, name := classify(err)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "api.error").Msg("request failed")
	}
	writeJSON(w, code, Problem{
		Error:     name,
		Detail:    err.Error(),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeJSON(w, http.StatusBadRequest, Problem{
		Error:     "bad_request",
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, capture.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, capture.ErrInvalidOrientation):
		return http.StatusBadRequest, "invalid_orientation"
	case errors.Is(err, capture.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, eventsink.ErrNoPreview):
		return http.StatusNotFound, "no_preview"
	case errors.Is(err, recordings.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
