// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/recovery"
)

// recoveryTimeout bounds a detached recovery run. The longest procedure
// is network_failure, which waits up to the connectivity timeout and
// then drains the retry backlog.
const recoveryTimeout = 5 * time.Minute

// HandleTriggerRecovery starts a recovery procedure and returns 202
// immediately. Progress reaches the dashboards over the WebSocket
// recovery_update messages; the final state lands in
// /api/v1/recovery/history.
//
// POST /api/v1/recovery/{type}
//
// An optional body {"artistIds": [...]} scopes data_inconsistency to
// specific artists.
func (h *Handler) HandleTriggerRecovery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.recovery == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"recovery service not available", nil)
		return
	}

	typ := models.RecoveryType(chi.URLParam(r, "type"))
	if !typ.Valid() {
		h.respondErrorDetails(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
			"unknown recovery type", map[string]interface{}{
				"type": sanitizeLogValue(string(typ)),
			})
		return
	}

	var req RecoveryRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_JSON",
			"request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		h.respondValidationError(w, r, apiErr)
		return
	}

	// Procedures are serialized inside the service; this check turns
	// the common rejection into a 409 instead of a silently dropped
	// background run.
	if h.recovery.InFlight() {
		h.respondError(w, r, http.StatusConflict, "RECOVERY_IN_FLIGHT",
			"another recovery operation is running", nil)
		return
	}

	// The run outlives this request, so it must not inherit the request
	// context: that context dies the moment the 202 is written.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
		defer cancel()
		h.recovery.AutoRecover(ctx, typ, recovery.Params{ArtistIDs: req.ArtistIDs})
	}()

	logging.Ctx(r.Context()).Info().
		Str("type", string(typ)).
		Int("artist_ids", len(req.ArtistIDs)).
		Msg("recovery triggered")

	h.respondJSON(w, http.StatusAccepted, success(map[string]interface{}{
		"type":     typ,
		"accepted": true,
	}, start, false))
}

// HandleRecoveryHistory returns the tracked recovery operations, oldest
// first, plus whether one is running now.
//
// GET /api/v1/recovery/history
func (h *Handler) HandleRecoveryHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.recovery == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"recovery service not available", nil)
		return
	}

	operations := h.recovery.History()
	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"operations": operations,
		"count":      len(operations),
		"inFlight":   h.recovery.InFlight(),
	}, start, false))
}
