// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPISecurityHeaders(t *testing.T) {
	t.Parallel()

	handler := APISecurityHeaders(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS header without TLS")
	}
}

func TestRequestIDGenerated(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestIDWithLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected a request ID in the handler context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header %q does not match context ID %q", got, seen)
	}
}

func TestRequestIDHonorsInbound(t *testing.T) {
	t.Parallel()

	handler := RequestIDWithLogging(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "board-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "board-supplied-id" {
		t.Errorf("expected inbound request ID echoed, got %q", got)
	}
}

func TestRequestIDRejectsOversized(t *testing.T) {
	t.Parallel()

	handler := RequestIDWithLogging(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	req.Header.Set("X-Request-ID", string(long))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got == string(long) || got == "" {
		t.Errorf("expected a replacement request ID, got %q", got)
	}
}

func TestRateLimitEnforced(t *testing.T) {
	t.Parallel()

	mw := NewMiddleware(nil)
	handler := mw.RateLimit(RateLimitConfig{Requests: 2, Window: time.Minute})(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	mw := NewMiddleware([]string{"http://boards.example"})
	handler := mw.CORS()(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync", nil)
	req.Header.Set("Origin", "http://boards.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://boards.example" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	t.Parallel()

	mw := NewMiddleware([]string{"http://boards.example"})
	handler := mw.CORS()(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS grant for disallowed origin, got %q", got)
	}
}

func TestNewMiddlewareDefaultsToWildcard(t *testing.T) {
	t.Parallel()

	mw := NewMiddleware(nil)
	if len(mw.corsOrigins) != 1 || mw.corsOrigins[0] != "*" {
		t.Errorf("expected wildcard default, got %v", mw.corsOrigins)
	}
}

func TestStatusResponseWriterRecords(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw := &statusResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)

	if sw.statusCode != http.StatusTeapot {
		t.Errorf("expected recorded 418, got %d", sw.statusCode)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected underlying 418, got %d", rec.Code)
	}
}

func TestRequestMetricsPreservesResponse(t *testing.T) {
	t.Parallel()

	handler := requestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("made"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/things", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 through the metrics wrapper, got %d", rec.Code)
	}
	if rec.Body.String() != "made" {
		t.Errorf("expected body preserved, got %q", rec.Body.String())
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean string untouched", "artist-42", "artist-42"},
		{"newlines stripped", "artist\nFAKE LOG LINE", "artistFAKE LOG LINE"},
		{"carriage returns stripped", "a\rb", "ab"},
		{"tabs stripped", "a\tb", "ab"},
		{"delete stripped", "a\x7fb", "ab"},
		{"unicode kept", "dj-ümlaut", "dj-ümlaut"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeLogValue(tt.input); got != tt.want {
				t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
