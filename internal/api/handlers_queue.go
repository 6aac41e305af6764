// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/HtooAg/FAME-sub001/internal/logging"
)

// HandleQueueStats reports the write-behind queue's counters plus any
// updates that exhausted their retries and are parked for operator
// review.
//
// GET /api/v1/queue/stats
func (h *Handler) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	terminal := h.manager.TerminalFailures()
	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"queue":            h.manager.Queue().Stats(),
		"terminalFailures": terminal,
		"terminalCount":    len(terminal),
	}, start, false))
}

// HandleQueueRetry makes one pending update immediately eligible for
// the next drain, skipping its backoff. Unknown IDs are 404: the update
// either completed or was never queued.
//
// POST /api/v1/queue/{updateID}/retry
func (h *Handler) HandleQueueRetry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	updateID := chi.URLParam(r, "updateID")

	if !h.manager.Queue().Retry(updateID) {
		h.respondError(w, r, http.StatusNotFound, "NOT_FOUND",
			"no queued update with that ID", nil)
		return
	}
	h.manager.Queue().Kick()

	logging.Ctx(r.Context()).Info().
		Str("update_id", sanitizeLogValue(updateID)).
		Msg("queued update retry forced")

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"updateId": updateID,
		"requeued": true,
	}, start, false))
}
