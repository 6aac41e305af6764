// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

// HandleGetStatus returns one artist's cached status.
//
// GET /api/v1/events/{eventID}/artists/{artistID}/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventID := chi.URLParam(r, "eventID")
	artistID := chi.URLParam(r, "artistID")

	if !h.eventScope(w, r, eventID) {
		return
	}

	record, found := h.manager.GetArtistStatus(r.Context(), artistID)
	if !found {
		h.respondError(w, r, http.StatusNotFound, "NOT_FOUND",
			"no status recorded for artist", nil)
		return
	}

	h.respondJSON(w, http.StatusOK, success(record, start, true))
}

// HandleUpdateStatus applies a partial status update under the
// optimistic version check.
//
// PUT /api/v1/events/{eventID}/artists/{artistID}/status
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventID := chi.URLParam(r, "eventID")
	artistID := chi.URLParam(r, "artistID")

	if !h.eventScope(w, r, eventID) {
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_JSON",
			"request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		h.respondValidationError(w, r, apiErr)
		return
	}

	record, err := h.manager.UpdateArtistStatus(r.Context(), artistID, req.toStatusUpdate())
	if err != nil {
		h.respondUpdateError(w, r, artistID, req.Version, err)
		return
	}

	h.respondJSON(w, http.StatusOK, success(record, start, false))
}

// respondUpdateError maps a cache write failure onto the API error
// vocabulary. Version conflicts include the current version so the
// board can re-read and retry without a second round trip.
func (h *Handler) respondUpdateError(w http.ResponseWriter, r *http.Request, artistID string, submitted int64, err error) {
	var valErr *models.ValidationError
	switch {
	case errors.Is(err, cache.ErrVersionConflict):
		details := map[string]interface{}{"submittedVersion": submitted}
		if current, found := h.manager.GetArtistStatus(r.Context(), artistID); found {
			details["currentVersion"] = current.Version
		}
		h.respondErrorDetails(w, r, http.StatusConflict, "VERSION_CONFLICT",
			"submitted version is behind the cached record", details)
	case errors.Is(err, cache.ErrNotReady):
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"status cache is not ready", err)
	case errors.As(err, &valErr):
		h.respondErrorDetails(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
			valErr.Error(), map[string]interface{}{"field": valErr.Field})
	default:
		h.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
			"failed to apply status update", err)
	}
}

// HandleBatchUpdate applies a batch of status updates. The response is
// always 200 with per-item outcomes; partial failure is the normal case
// when two operators race on the same artists.
//
// POST /api/v1/events/{eventID}/statuses/batch
func (h *Handler) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventID := chi.URLParam(r, "eventID")

	if !h.eventScope(w, r, eventID) {
		return
	}

	var req BatchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_JSON",
			"request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		h.respondValidationError(w, r, apiErr)
		return
	}

	results := h.manager.BatchUpdateStatuses(r.Context(), req.toBatchItems())

	succeeded := 0
	for i := range results {
		if results[i].Success {
			succeeded++
		}
	}

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	}, start, false))
}

// HandleListStatuses returns every cached status for the event in show
// order. This is the full-board read each display performs on connect
// and reconnect.
//
// GET /api/v1/events/{eventID}/statuses
func (h *Handler) HandleListStatuses(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventID := chi.URLParam(r, "eventID")

	if !h.eventScope(w, r, eventID) {
		return
	}

	records := h.manager.CachedRecords()
	sortByShowOrder(records)

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"eventId": eventID,
		"count":   len(records),
		"artists": records,
	}, start, true))
}

// sortByShowOrder sorts records by performance order with unordered
// artists last, ties broken by artist ID for a stable board layout.
func sortByShowOrder(records []*models.StatusRecord) {
	sort.Slice(records, func(i, j int) bool {
		oi, oj := records[i].PerformanceOrder, records[j].PerformanceOrder
		switch {
		case oi != nil && oj != nil && *oi != *oj:
			return *oi < *oj
		case oi != nil && oj == nil:
			return true
		case oi == nil && oj != nil:
			return false
		}
		return records[i].ArtistID < records[j].ArtistID
	})
}
