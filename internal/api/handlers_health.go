// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

// storageProbeTimeout bounds the readiness storage probe so a hung disk
// turns into a fast not-ready instead of a hung probe.
const storageProbeTimeout = 2 * time.Second

// HandleHealthz is the liveness probe. It answers 200 whenever the
// process can serve HTTP; dependency health belongs to readiness.
//
// GET /healthz
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	clients := 0
	if h.hub != nil {
		clients = h.hub.GetClientCount()
	}

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"status":        "ok",
		"version":       h.config.Version,
		"uptimeSeconds": int64(time.Since(h.startTime).Seconds()),
		"clients":       clients,
	}, start, false))
}

// HandleReadyz is the readiness probe: the cache manager must be ready,
// the local store answering, and the notification stream healthy when
// one is wired. Any failure answers 503 with the per-check breakdown so
// an operator can see which dependency is down.
//
// GET /readyz
func (h *Handler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	checks := map[string]string{}
	ready := true

	if state := h.manager.State(); state == cache.StateReady {
		checks["cache"] = "ready"
	} else {
		checks["cache"] = string(state)
		ready = false
	}

	ctx, cancel := context.WithTimeout(r.Context(), storageProbeTimeout)
	defer cancel()
	if err := h.manager.Store().Healthy(ctx); err != nil {
		checks["storage"] = err.Error()
		ready = false
	} else {
		checks["storage"] = "ok"
	}

	if h.stream != nil {
		if h.stream.IsHealthy(ctx) {
			checks["stream"] = "ok"
		} else {
			checks["stream"] = "unhealthy"
			ready = false
		}
	}

	if !ready {
		h.respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "error",
			Data:   map[string]interface{}{"ready": false, "checks": checks},
			Error: &models.APIError{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "one or more readiness checks failed",
			},
			Metadata: models.Metadata{
				Timestamp:   time.Now().UTC(),
				QueryTimeMS: time.Since(start).Milliseconds(),
			},
		})
		return
	}

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"ready":  true,
		"checks": checks,
	}, start, false))
}

// HandleCacheStats reports the in-memory cache counters alongside the
// manager's identity, feeding the dashboard's stats panel.
//
// GET /api/v1/cache/stats
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	h.respondJSON(w, http.StatusOK, success(map[string]interface{}{
		"cache":   h.manager.CacheStats(),
		"eventId": h.manager.EventID(),
		"state":   h.manager.State(),
	}, start, false))
}
