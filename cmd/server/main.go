// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package main is the entry point for the FAME server application.
//
// FAME caches artist performance statuses for live events and keeps
// them durable and synchronized across restarts, network outages, and
// concurrent operator edits. Stage boards and DJ consoles read and
// write statuses over the REST API and receive live updates over
// WebSocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Transition Journal: DuckDB-backed status history for post-show analytics (optional)
//  3. Local Store: BadgerDB key-value store, the offline source of truth
//  4. Remote Store: Google Cloud Storage client for cross-venue sync (optional)
//  5. Notifications: NATS JetStream channel for cross-instance status fan-out (optional)
//  6. Cache Manager: In-memory status cache with write-behind persistence
//  7. Sync and Recovery: Local/remote reconciliation and error recovery services
//  8. HTTP Server: REST API, WebSocket hub, and health endpoints
//  9. Supervision Tree: Restarts the long-running loops when they fail
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (FAME_* prefix)
//   - Config file (config.yaml, or FAME_CONFIG_PATH)
//   - Built-in defaults
//
// FAME_EVENT_ID is the only required setting.
//
// # Degraded Modes
//
// Venue networks fail mid-show, so every outward dependency is
// optional and its absence narrows functionality instead of blocking
// startup:
//   - FAME_GCS_ENABLED=false: no cloud copy, local store only
//   - FAME_NATS_ENABLED=false: no cross-instance notifications
//   - FAME_JOURNAL_ENABLED=false: no transition history
//
// Only the local BadgerDB store is mandatory; a server that cannot
// open it refuses to start.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM:
//   - Stops accepting new connections and closes WebSocket clients
//   - Drains pending write-behind queue entries to the local store
//   - Closes the notification channel, journal, and stores in order
//
// # Example Usage
//
// Local-only development run:
//
//	export FAME_EVENT_ID=summer-gala-2026
//	export FAME_BADGER_PATH=/tmp/fame/badger
//	export FAME_NATS_STORE_DIR=/tmp/fame/jetstream
//	./fame-server
//
// Production run with cloud sync:
//
//	export FAME_EVENT_ID=summer-gala-2026
//	export FAME_GCS_ENABLED=true
//	export FAME_GCS_BUCKET=fame-prod-status
//	export FAME_SYNC_ENABLED=true
//	./fame-server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/api"
	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/config"
	"github.com/HtooAg/FAME-sub001/internal/conflict"
	"github.com/HtooAg/FAME-sub001/internal/journal"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/queue"
	"github.com/HtooAg/FAME-sub001/internal/recovery"
	"github.com/HtooAg/FAME-sub001/internal/storage"
	"github.com/HtooAg/FAME-sub001/internal/supervisor"
	"github.com/HtooAg/FAME-sub001/internal/sync"
	ws "github.com/HtooAg/FAME-sub001/internal/websocket"
)

// version is stamped at build time:
//
//	go build -ldflags "-X main.version=2.1.0" ./cmd/server
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("event_id", cfg.Event.ID).
		Bool("sync", cfg.Sync.Enabled).
		Bool("notifications", cfg.NATS.Enabled).
		Bool("journal", cfg.Journal.Enabled).
		Msg("Starting FAME server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Transition journal. A failed open degrades to journal-less
	// operation rather than blocking the show.
	var transitionJournal *journal.Journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(journal.Config{
			Path:      cfg.Journal.Path,
			Threads:   cfg.Journal.Threads,
			MaxMemory: cfg.Journal.MaxMemory,
		})
		if err != nil {
			logging.Warn().Err(err).
				Str("path", cfg.Journal.Path).
				Msg("Transition journal unavailable, continuing without history")
		} else {
			transitionJournal = j
			logging.Info().Str("path", cfg.Journal.Path).Msg("Transition journal opened")
		}
	}

	// Local durable store. The one dependency FAME cannot run without.
	badgerCfg := storage.DefaultBadgerConfig(cfg.Storage.Badger.Path)
	badgerCfg.SyncWrites = cfg.Storage.Badger.SyncWrites
	badgerCfg.Compression = cfg.Storage.Badger.Compression
	badgerCfg.GCInterval = cfg.Storage.Badger.GCInterval
	badgerStore, err := storage.OpenBadger(badgerCfg)
	if err != nil {
		closeJournal(transitionJournal)
		logging.Fatal().Err(err).
			Str("path", cfg.Storage.Badger.Path).
			Msg("Failed to open local store")
	}
	local := storage.NewRecordStore(badgerStore)
	logging.Info().Str("path", cfg.Storage.Badger.Path).Msg("Local store opened")

	var remote *storage.RecordStore
	if cfg.Storage.GCS.Enabled {
		gcsCfg := storage.DefaultGCSConfig(cfg.Storage.GCS.Bucket)
		gcsCfg.Prefix = cfg.Storage.GCS.Prefix
		gcsCfg.RequestsPerSecond = cfg.Storage.GCS.RequestsPerSecond
		gcsCfg.Burst = cfg.Storage.GCS.Burst
		gcsCfg.RequestTimeout = cfg.Storage.GCS.RequestTimeout
		gcsStore, err := storage.NewGCSStore(ctx, gcsCfg)
		if err != nil {
			closeStores(local, nil)
			closeJournal(transitionJournal)
			logging.Fatal().Err(err).
				Str("bucket", cfg.Storage.GCS.Bucket).
				Msg("Failed to create remote store")
		}
		remote = storage.NewRecordStore(gcsStore)
		logging.Info().Str("bucket", cfg.Storage.GCS.Bucket).Msg("Remote store ready")
	}

	resolver := conflict.NewResolver(cfg.Sync.SkewThreshold)

	notifyComps, err := initNotify(ctx, cfg)
	if err != nil {
		closeStores(local, remote)
		closeJournal(transitionJournal)
		logging.Fatal().Err(err).Msg("Failed to initialize change notifications")
	}

	hub := ws.NewHub()

	mgrCfg := cache.DefaultManagerConfig()
	if cfg.Server.InstanceID != "" {
		mgrCfg.InstanceID = cfg.Server.InstanceID
	}
	mgrCfg.CacheCapacity = cfg.Cache.MaxEntries
	mgrCfg.CacheTTL = cfg.Cache.TTL
	mgrCfg.CleanupInterval = cfg.Cache.CleanupInterval
	mgrCfg.TerminalFailureLimit = cfg.Cache.TerminalFailureLimit
	mgrCfg.Queue = queue.Config{
		RetryDelay:    cfg.Queue.RetryDelay,
		MaxBackoff:    cfg.Queue.MaxBackoff,
		MaxRetries:    cfg.Queue.MaxRetries,
		BatchSize:     cfg.Queue.BatchSize,
		DrainInterval: cfg.Queue.DrainInterval,
	}

	deps := cache.Deps{
		Store:       local,
		Resolver:    resolver,
		Broadcaster: hub,
	}
	// Interface fields stay nil unless a concrete component exists; a
	// typed nil would defeat the manager's nil checks.
	if p := notifyComps.Publisher(); p != nil {
		deps.Publisher = p
	}
	if s := notifyComps.Subscriber(); s != nil {
		deps.Subscriber = s
	}
	if transitionJournal != nil {
		deps.Journal = transitionJournal
	}

	manager := cache.NewManager(mgrCfg, deps)
	if err := manager.Initialize(ctx, cfg.Event.ID); err != nil {
		notifyComps.Shutdown(context.Background())
		closeStores(local, remote)
		closeJournal(transitionJournal)
		logging.Fatal().Err(err).
			Str("event_id", cfg.Event.ID).
			Msg("Failed to initialize status cache")
	}

	var syncSvc *sync.Service
	if cfg.Sync.Enabled && remote != nil {
		syncSvc = sync.NewService(sync.Config{
			EventID:  cfg.Event.ID,
			Interval: cfg.Sync.Interval,
		}, local, remote, resolver)
		syncSvc.SetNotifier(hub)
		logging.Info().Dur("interval", cfg.Sync.Interval).Msg("Cloud sync enabled")
	}

	recoverySvc := recovery.NewService(recovery.Config{
		ConnectivityTimeout: cfg.Recovery.ConnectivityTimeout,
		PollInterval:        cfg.Recovery.PollInterval,
		HistoryLimit:        cfg.Recovery.HistoryLimit,
	}, manager)
	recoverySvc.SetNotifier(hub)

	handler := api.NewHandler(api.Config{
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     version,
		RateLimit: api.RateLimitConfig{
			Requests: cfg.Server.RateLimitRequests,
			Window:   cfg.Server.RateLimitWindow,
		},
	}, manager, syncSvc, recoverySvc, hub)
	if transitionJournal != nil {
		handler.SetJournal(transitionJournal)
	}
	if s := notifyComps.Stream(); s != nil {
		handler.SetStreamChecker(s)
	}

	router := api.NewRouter(handler)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		shutdownEarly(manager, notifyComps, transitionJournal, local, remote)
		logging.Fatal().Err(err).Msg("Failed to create supervision tree")
	}

	tree.AddMessagingService(supervisor.NewHubService(hub))
	if syncSvc != nil {
		tree.AddMessagingService(supervisor.NewSyncRunnerService(syncSvc))
	}
	tree.AddMessagingService(supervisor.NewStatsBroadcastService(hub, manager, manager.Queue(), 0))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	logging.Info().
		Str("addr", httpServer.Addr).
		Str("instance_id", mgrCfg.InstanceID).
		Msg("FAME server ready")

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervision tree terminated unexpectedly")
		}
		cancel()
	}

	// Wait for the tree to finish winding down its services.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervision tree error during shutdown")
		}
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop before timeout")
		}
	}

	// Drain the write-behind queue and release everything the manager
	// holds before the stores close underneath it.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := manager.Destroy(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Cache manager shutdown failed")
	}
	notifyComps.Shutdown(shutdownCtx)
	closeJournal(transitionJournal)
	closeStores(local, remote)

	logging.Info().Msg("FAME server stopped gracefully")
}

// shutdownEarly releases everything built so far when startup fails
// after the manager is already running.
func shutdownEarly(manager *cache.Manager, notifyComps *notifyComponents, j *journal.Journal, local, remote *storage.RecordStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := manager.Destroy(ctx); err != nil {
		logging.Error().Err(err).Msg("Cache manager shutdown failed")
	}
	notifyComps.Shutdown(ctx)
	closeJournal(j)
	closeStores(local, remote)
}

func closeJournal(j *journal.Journal) {
	if j == nil {
		return
	}
	if err := j.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close transition journal")
	}
}

func closeStores(local, remote *storage.RecordStore) {
	if local != nil {
		if err := local.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close local store")
		}
	}
	if remote != nil {
		if err := remote.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close remote store")
		}
	}
}
