// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/validation"
)

// sanitizeLogValue strips control characters from client-supplied
// strings before they reach a log line (CWE-117).
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

// respondJSON writes an envelope response. Everything served here is
// live show state, so caching intermediaries are told to stand down.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.Error().Err(err).Msg("failed to encode API response")
	}
}

// respondError writes an error envelope and logs it. err may be nil for
// client mistakes that need no server-side trace.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	event := logging.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Err(err).
		Int("status", status).
		Str("code", code).
		Str("path", sanitizeLogValue(r.URL.Path)).
		Msg(message)

	h.respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Error:    &models.APIError{Code: code, Message: message},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondErrorDetails is respondError with a structured details map for
// errors the client resolves programmatically (version conflicts, event
// mismatches).
func (h *Handler) respondErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	logging.Ctx(r.Context()).Warn().
		Int("status", status).
		Str("code", code).
		Str("path", sanitizeLogValue(r.URL.Path)).
		Msg(message)

	h.respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Error:    &models.APIError{Code: code, Message: message, Details: details},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// decodeJSON reads a request body into dst. Bodies are capped well
// above any legitimate payload; the batch endpoint's 100-item limit is
// the real bound.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}

// validateRequest runs struct validation and converts failures into the
// API error shape. Returns nil when the request is valid.
func validateRequest(req interface{}) *validation.APIError {
	if err := validation.ValidateStruct(req); err != nil {
		var reqErr *validation.RequestValidationError
		if errors.As(err, &reqErr) {
			return reqErr.ToAPIError()
		}
		return &validation.APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	return nil
}

// respondValidationError writes a 400 from a validation failure,
// carrying the per-field details through to the client.
func (h *Handler) respondValidationError(w http.ResponseWriter, r *http.Request, apiErr *validation.APIError) {
	logging.Ctx(r.Context()).Warn().
		Str("code", apiErr.Code).
		Str("path", sanitizeLogValue(r.URL.Path)).
		Msg(apiErr.Message)

	h.respondJSON(w, http.StatusBadRequest, &models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// success wraps data in a success envelope, stamping the query time.
func success(data interface{}, start time.Time, cached bool) *models.APIResponse {
	return &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      cached,
		},
	}
}
