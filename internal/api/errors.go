// Package api provides the HTTP handlers of the dmflow API and the router
// that mounts them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/middleware"
	"github.com/onnwee/dmflow/internal/validate"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeServiceUnavailable indicates an optional integration is not configured.
	ErrCodeServiceUnavailable = "service_unavailable"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// The code is picked up by the logging middleware for 4xx and 5xx responses
// when ctx carries it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Campaign not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeCode writes an error whose status follows from its code.
func writeCode(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// writeInternal logs err and answers 500 with a generic message; details stay
// server-side.
func writeInternal(w http.ResponseWriter, r *http.Request, err error, message string) {
	slog.ErrorContext(r.Context(), message, "error", err, "request_id", middleware.GetRequestID(r.Context()))
	writeCode(w, r, ErrCodeInternal, message)
}

// writeValidation reports every failing field in one message.
func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		writeCode(w, r, ErrCodeValidation, verr.Error())
		return
	}
	writeCode(w, r, ErrCodeValidation, err.Error())
}

// notFoundMessages maps store sentinels to client messages.
var notFoundMessages = []struct {
	err     error
	message string
}{
	{campaign.ErrCampaignNotFound, "Campaign not found"},
	{campaign.ErrNodeNotFound, "Flow node not found"},
	{campaign.ErrEdgeNotFound, "Flow edge not found"},
	{campaign.ErrEncounterNotFound, "Encounter not found"},
	{campaign.ErrEnemyNotFound, "Enemy not found"},
	{campaign.ErrLootNotFound, "Loot not found"},
	{campaign.ErrDrawingNotFound, "Drawing not found"},
}

// writeStoreError answers 404 for a not-found sentinel and 500 otherwise.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	for _, nf := range notFoundMessages {
		if errors.Is(err, nf.err) {
			writeCode(w, r, ErrCodeNotFound, nf.message)
			return
		}
	}
	writeInternal(w, r, err, message)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// maxBodyBytes bounds request bodies; drawings are the largest payloads.
const maxBodyBytes = 10 << 20

// decodeJSON decodes the request body into v and validates it. It writes
// the error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeCode(w, r, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeValidation(w, r, err)
		return false
	}
	return true
}

type successResponse struct {
	Success bool `json:"success"`
}
