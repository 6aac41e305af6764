// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
)

// RateLimitConfig bounds one route group per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Rate limit tiers. Reads are generous because every board polls the
// full status list as its reconnect fallback. The sync and recovery
// triggers are nearly singular: the operations they start are
// serialized server-side, so a burst of triggers only produces a burst
// of 409s.
var (
	// APIRateLimit covers read endpoints.
	APIRateLimit = RateLimitConfig{Requests: 300, Window: time.Minute}

	// WriteRateLimit covers status writes. A stage manager working a
	// fast changeover taps a handful of updates a minute.
	WriteRateLimit = RateLimitConfig{Requests: 120, Window: time.Minute}

	// SyncRateLimit covers manual sync triggers.
	SyncRateLimit = RateLimitConfig{Requests: 10, Window: time.Minute}

	// RecoveryRateLimit covers recovery triggers.
	RecoveryRateLimit = RateLimitConfig{Requests: 6, Window: time.Minute}

	// HealthRateLimit covers liveness and readiness probes.
	HealthRateLimit = RateLimitConfig{Requests: 1000, Window: time.Minute}

	// WebSocketRateLimit covers upgrade attempts, not established
	// connections.
	WebSocketRateLimit = RateLimitConfig{Requests: 30, Window: time.Minute}
)

// Middleware builds the HTTP middleware used by the router. CORS
// origins come from server configuration so the show-board frontends
// can live on their own hosts.
type Middleware struct {
	corsOrigins []string
}

// NewMiddleware creates a middleware factory for the given CORS
// origins. An empty list falls back to allowing any origin, which
// matches single-box deployments where the boards are served from the
// same process.
func NewMiddleware(corsOrigins []string) *Middleware {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &Middleware{corsOrigins: corsOrigins}
}

// CORS returns the CORS handler for browser-based boards.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   m.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// RateLimit returns a per-IP limiter for one route group. Responses
// over the limit are 429 with a Retry-After header, handled inside
// httprate.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.LimitByIP(cfg.Requests, cfg.Window)
}

// APISecurityHeaders sets response headers appropriate for a JSON API.
// HSTS is only meaningful over TLS, so it is set conditionally.
func APISecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RequestIDWithLogging attaches a request ID and a fresh correlation ID
// to the request context so every log line downstream carries both. The
// request ID is echoed in the response for client-side correlation; an
// inbound X-Request-ID is honored so the boards can trace their own
// calls.
func RequestIDWithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitizeLogValue(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = logging.GenerateRequestID()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusResponseWriter records the status code for metrics. Handlers
// that never call WriteHeader implicitly return 200.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// requestMetrics records request count and latency per route pattern.
// The chi route pattern is read after the handler runs, when the route
// context has been populated, so the metric label is the low-cardinality
// pattern rather than the raw path. Not applied to the WebSocket route:
// the wrapper hides the http.Hijacker the upgrade needs.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sw, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(sw.statusCode), time.Since(start))
	})
}
