// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the chi route tree over one handler.
type Router struct {
	handler *Handler
	mw      *Middleware
}

// NewRouter creates a router for the handler, sharing its CORS origins
// with the middleware stack.
func NewRouter(handler *Handler) *Router {
	return &Router{
		handler: handler,
		mw:      NewMiddleware(handler.config.CORSOrigins),
	}
}

// Setup builds the route tree: a global stack of request-ID injection,
// real-IP resolution, panic recovery, CORS, and security headers, then
// per-group rate limits. Request metrics cover /api/v1 only; the
// WebSocket route stays unwrapped because the upgrade needs the raw
// http.Hijacker.
func (rt *Router) Setup() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.mw.CORS())
	r.Use(APISecurityHeaders)

	readLimit := APIRateLimit
	if rt.handler.config.RateLimit.Requests > 0 {
		readLimit = rt.handler.config.RateLimit
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requestMetrics)

		// Reads.
		r.Group(func(r chi.Router) {
			r.Use(rt.mw.RateLimit(readLimit))
			r.Get("/events/{eventID}/artists/{artistID}/status", rt.handler.HandleGetStatus)
			r.Get("/events/{eventID}/statuses", rt.handler.HandleListStatuses)
			r.Get("/events/{eventID}/journal", rt.handler.HandleJournalHistory)
			r.Get("/events/{eventID}/journal/counts", rt.handler.HandleJournalCounts)
			r.Get("/sync/metadata", rt.handler.HandleSyncMetadata)
			r.Get("/recovery/history", rt.handler.HandleRecoveryHistory)
			r.Get("/queue/stats", rt.handler.HandleQueueStats)
			r.Get("/cache/stats", rt.handler.HandleCacheStats)
		})

		// Writes.
		r.Group(func(r chi.Router) {
			r.Use(rt.mw.RateLimit(WriteRateLimit))
			r.Put("/events/{eventID}/artists/{artistID}/status", rt.handler.HandleUpdateStatus)
			r.Post("/events/{eventID}/statuses/batch", rt.handler.HandleBatchUpdate)
			r.Post("/queue/{updateID}/retry", rt.handler.HandleQueueRetry)
		})

		// Operational triggers.
		r.Group(func(r chi.Router) {
			r.Use(rt.mw.RateLimit(SyncRateLimit))
			r.Post("/sync", rt.handler.HandleTriggerSync)
		})
		r.Group(func(r chi.Router) {
			r.Use(rt.mw.RateLimit(RecoveryRateLimit))
			r.Post("/recovery/{type}", rt.handler.HandleTriggerRecovery)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(rt.mw.RateLimit(HealthRateLimit))
		r.Get("/healthz", rt.handler.HandleHealthz)
		r.Get("/readyz", rt.handler.HandleReadyz)
	})

	r.Group(func(r chi.Router) {
		r.Use(rt.mw.RateLimit(WebSocketRateLimit))
		r.Get("/ws", rt.handler.HandleWebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
