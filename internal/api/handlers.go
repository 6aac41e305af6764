// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/recovery"
	"github.com/HtooAg/FAME-sub001/internal/sync"
	ws "github.com/HtooAg/FAME-sub001/internal/websocket"
)

// Config carries the handler settings that come from server
// configuration.
type Config struct {
	// CORSOrigins are the allowed browser origins, shared between the
	// CORS middleware and the WebSocket origin check.
	CORSOrigins []string

	// Version is reported by the health endpoints.
	Version string

	// RateLimit overrides the read-tier budget when Requests is
	// positive. Write, sync, and recovery tiers keep their fixed
	// limits.
	RateLimit RateLimitConfig
}

// TransitionJournal is the analytics sink behind the journal endpoints.
// The journal is optional; endpoints answer 503 until one is wired.
type TransitionJournal interface {
	EventHistory(ctx context.Context, eventID string) ([]models.TransitionRecord, error)
	TransitionCounts(ctx context.Context, eventID string) (map[models.PerformanceStatus]int64, error)
}

// StreamChecker reports notification-stream health for readiness.
type StreamChecker interface {
	IsHealthy(ctx context.Context) bool
}

// Handler implements the FAME HTTP endpoints over the cache manager and
// its sibling services.
type Handler struct {
	config   Config
	manager  *cache.Manager
	syncSvc  *sync.Service
	recovery *recovery.Service
	hub      *ws.Hub

	// Optional, wired after construction.
	journal TransitionJournal
	stream  StreamChecker

	startTime time.Time
}

// NewHandler creates the API handler. hub may be nil when the WebSocket
// surface is disabled.
func NewHandler(cfg Config, manager *cache.Manager, syncSvc *sync.Service, recoverySvc *recovery.Service, hub *ws.Hub) *Handler {
	return &Handler{
		config:    cfg,
		manager:   manager,
		syncSvc:   syncSvc,
		recovery:  recoverySvc,
		hub:       hub,
		startTime: time.Now(),
	}
}

// SetJournal wires the optional transition journal.
func (h *Handler) SetJournal(j TransitionJournal) {
	h.journal = j
}

// SetStreamChecker wires the notification-stream health probe used by
// readiness.
func (h *Handler) SetStreamChecker(s StreamChecker) {
	h.stream = s
}

// eventScope rejects requests addressed to an event other than the one
// this instance is serving. A write against last night's show must not
// land in tonight's cache. Returns false after writing the response.
func (h *Handler) eventScope(w http.ResponseWriter, r *http.Request, eventID string) bool {
	if h.manager.State() != cache.StateReady {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"status cache is not ready", nil)
		return false
	}
	if active := h.manager.EventID(); active != eventID {
		h.respondErrorDetails(w, r, http.StatusConflict, "EVENT_MISMATCH",
			"event is not the active event", map[string]interface{}{
				"requestedEvent": eventID,
				"activeEvent":    active,
			})
		return false
	}
	return true
}

// getUpgrader builds the WebSocket upgrader with the origin check bound
// to this handler's CORS configuration.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
}

// checkWebSocketOrigin applies the CORS origin list to upgrade
// requests. Browsers always send Origin on WebSocket handshakes, so an
// absent header means a non-browser client spoofing a board and is
// rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range h.config.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	// No configured origins matches the single-box deployment where
	// boards are served by this process.
	return len(h.config.CORSOrigins) == 0
}

// HandleWebSocket upgrades a board connection and registers it with the
// hub. The role query parameter selects which broadcasts the client
// receives; unknown roles fall back to dashboard.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"WebSocket hub not available", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	role := r.URL.Query().Get("role")
	client := ws.NewClient(h.hub, conn, role)
	h.hub.Register <- client
	client.Start()

	logging.Ctx(r.Context()).Info().
		Str("role", client.Role()).
		Int("clients", h.hub.GetClientCount()).
		Msg("websocket client connected")
}
