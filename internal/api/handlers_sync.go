// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/storage"
	"github.com/HtooAg/FAME-sub001/internal/sync"
)

// HandleTriggerSync runs a reconciliation against the remote store and
// returns the full result. Runs are synchronous; one event's dataset is
// a few hundred records, so even a full bidirectional pass finishes in
// request time.
//
// POST /api/v1/sync
// POST /api/v1/sync?direction=push   local to remote only
// POST /api/v1/sync?direction=pull   remote to local only
func (h *Handler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.syncSvc == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"sync service not available", nil)
		return
	}

	var (
		result *models.SyncResult
		err    error
	)
	switch direction := r.URL.Query().Get("direction"); direction {
	case "":
		result, err = h.syncSvc.SyncData(r.Context())
	case "push":
		result, err = h.syncSvc.SyncFromLocalToRemote(r.Context())
	case "pull":
		result, err = h.syncSvc.SyncFromRemoteToLocal(r.Context())
	default:
		h.respondErrorDetails(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
			"direction must be push or pull", map[string]interface{}{
				"direction": sanitizeLogValue(direction),
			})
		return
	}

	if err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			h.respondError(w, r, http.StatusConflict, "SYNC_IN_PROGRESS",
				"another sync run is executing", nil)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "SYNC_FAILED",
			"sync run could not start", err)
		return
	}

	h.respondJSON(w, http.StatusOK, success(result, start, false))
}

// HandleSyncMetadata reports the active event's persisted sync state:
// when the last run landed, what it covered, and whether one is
// executing now. A null metadata object means no run has ever completed
// for this event.
//
// GET /api/v1/sync/metadata
func (h *Handler) HandleSyncMetadata(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.manager.State() != cache.StateReady {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"status cache is not ready", nil)
		return
	}
	eventID := h.manager.EventID()

	var meta *models.SyncMetadata
	stored, err := h.manager.Store().GetSyncMetadata(r.Context(), eventID)
	switch {
	case err == nil:
		meta = stored
	case errors.Is(err, storage.ErrKeyNotFound):
		// First run has not happened yet.
	default:
		h.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
			"failed to load sync metadata", err)
		return
	}

	inProgress := false
	if h.syncSvc != nil {
		inProgress = h.syncSvc.InProgress()
	}

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"eventId":    eventID,
		"metadata":   meta,
		"inProgress": inProgress,
	}, start, false))
}
