package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Window    string    `json:"window,omitempty"`
	Limit     uint64    `json:"limit,omitempty"`
	Offset    uint64    `json:"offset,omitempty"`
	HasMore   bool      `json:"has_more,omitempty"`
}

// writeJSON writes a successful response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()

	write(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeJSONError writes an error response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func write(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps a domain error to its HTTP status and logs server-side ones.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Err(err),
		)
	}
	writeJSONError(w, r, status, code, message)
}

// classify returns status, error code and client-facing message for err.
// Enrichment is checked first: its cause may itself be a not-found.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, shared.ErrEnrichment):
		return http.StatusInternalServerError, "enrichment_failed", "Failed to resolve leaderboard users"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found", domainMessage(err, "Not found")
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request", domainMessage(err, "Invalid request")
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "Unauthorized"
	case errors.Is(err, shared.ErrUnexpectedStatus):
		if code, ok := shared.StatusCode(err); ok {
			return http.StatusBadGateway, "upstream_error", "Skills service answered with status " + http.StatusText(code)
		}
		return http.StatusBadGateway, "upstream_error", "Skills service answered unexpectedly"
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrExternalService):
		return http.StatusBadGateway, "upstream_unavailable", "Skills service is unavailable"
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "Request timed out"
	case errors.Is(err, shared.ErrStore):
		return http.StatusInternalServerError, "store_error", "Failed to compute leaderboard"
	default:
		return http.StatusInternalServerError, "internal_error", "An unexpected error occurred"
	}
}

func domainMessage(err error, fallback string) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}
