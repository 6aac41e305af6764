// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HandleJournalHistory returns the journaled status transitions for an
// event. Unlike the status endpoints this is not scoped to the active
// event: the journal keeps past shows for post-show review.
//
// GET /api/v1/events/{eventID}/journal
func (h *Handler) HandleJournalHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.journal == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"transition journal not enabled", nil)
		return
	}

	eventID := chi.URLParam(r, "eventID")
	transitions, err := h.journal.EventHistory(r.Context(), eventID)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
			"failed to read transition journal", err)
		return
	}

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"eventId":     eventID,
		"count":       len(transitions),
		"transitions": transitions,
	}, start, false))
}

// HandleJournalCounts returns how many transitions landed in each
// status for an event, the raw material for the post-show timing
// report.
//
// GET /api/v1/events/{eventID}/journal/counts
func (h *Handler) HandleJournalCounts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.journal == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"transition journal not enabled", nil)
		return
	}

	eventID := chi.URLParam(r, "eventID")
	counts, err := h.journal.TransitionCounts(r.Context(), eventID)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
			"failed to read transition journal", err)
		return
	}

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"eventId": eventID,
		"counts":  counts,
	}, start, false))
}
