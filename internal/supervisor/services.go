// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/queue"
)

// HTTPServer matches *http.Server's lifecycle methods so the wrapper
// can be tested with a mock.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts http.Server's blocking ListenAndServe to
// suture's context-aware Serve: the listener runs in a goroutine, and
// context cancellation triggers a graceful Shutdown with its own
// timeout.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService creates an HTTP server service wrapper. The
// shutdownTimeout bounds how long active connections get to finish
// during graceful shutdown.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service. http.ErrServerClosed is treated as a
// clean exit since Shutdown always produces it.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is already canceled, so shutdown gets a
		// fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's log messages.
func (h *HTTPServerService) String() string {
	return h.name
}

// ContextHub matches *websocket.Hub's Run method.
type ContextHub interface {
	Run(ctx context.Context) error
}

// HubService wraps the WebSocket hub as a supervised service. The
// hub's Run method already follows the suture.Service pattern, so this
// wrapper only contributes a name.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a WebSocket hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service.
func (w *HubService) Serve(ctx context.Context) error {
	return w.hub.Run(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (w *HubService) String() string {
	return w.name
}

// SyncRunner matches *sync.Service's Run method.
type SyncRunner interface {
	Run(ctx context.Context) error
}

// SyncRunnerService wraps the periodic local/remote sync loop as a
// supervised service.
type SyncRunnerService struct {
	runner SyncRunner
	name   string
}

// NewSyncRunnerService creates a sync runner service wrapper.
func NewSyncRunnerService(runner SyncRunner) *SyncRunnerService {
	return &SyncRunnerService{
		runner: runner,
		name:   "sync-runner",
	}
}

// Serve implements suture.Service.
func (s *SyncRunnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *SyncRunnerService) String() string {
	return s.name
}

// CacheStatsSource yields cache statistics for broadcasting. Satisfied
// by *cache.Manager.
type CacheStatsSource interface {
	CacheStats() cache.Stats
}

// QueueStatsSource yields queue statistics for broadcasting. Satisfied
// by *queue.UpdateQueue.
type QueueStatsSource interface {
	Stats() queue.Stats
}

// StatsBroadcaster pushes a stats snapshot to connected clients.
// Satisfied by *websocket.Hub.
type StatsBroadcaster interface {
	BroadcastStatsUpdate(cacheStats, queueStats interface{})
}

// StatsBroadcastService periodically pushes cache and queue statistics
// to all WebSocket clients so dashboards can render live health panels
// without polling the REST API.
type StatsBroadcastService struct {
	hub      StatsBroadcaster
	cacheSrc CacheStatsSource
	queueSrc QueueStatsSource
	interval time.Duration
	name     string
}

// NewStatsBroadcastService creates a stats broadcast service. Intervals
// at or below zero fall back to 5s.
func NewStatsBroadcastService(hub StatsBroadcaster, cacheSrc CacheStatsSource, queueSrc QueueStatsSource, interval time.Duration) *StatsBroadcastService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatsBroadcastService{
		hub:      hub,
		cacheSrc: cacheSrc,
		queueSrc: queueSrc,
		interval: interval,
		name:     "stats-broadcast",
	}
}

// Serve implements suture.Service. One snapshot goes out immediately so
// dashboards are not blank for a full interval after a restart.
func (s *StatsBroadcastService) Serve(ctx context.Context) error {
	s.broadcast()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *StatsBroadcastService) broadcast() {
	s.hub.BroadcastStatsUpdate(s.cacheSrc.CacheStats(), s.queueSrc.Stats())
}

// String implements fmt.Stringer for suture's log messages.
func (s *StatsBroadcastService) String() string {
	return s.name
}
