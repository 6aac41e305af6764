// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the status engine:
// - Status cache efficiency and size
// - Update queue depth, drains, and terminal failures
// - Conflict resolution outcomes
// - Store sync runs
// - Recovery procedures
// - Notification fan-out and WebSocket connections

var (
	// Status Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_cache_hits_total",
			Help: "Total number of status cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_cache_misses_total",
			Help: "Total number of status cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "status_cache_entries",
			Help: "Current number of cached status records",
		},
	)

	CacheDirtyEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "status_cache_dirty_entries",
			Help: "Current number of records awaiting durable persistence",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_cache_evictions_total",
			Help: "Total number of cache evictions (capacity pressure)",
		},
	)

	CacheCleanupRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_cache_cleanup_removals_total",
			Help: "Total number of entries removed by TTL cleanup sweeps",
		},
	)

	// Update Queue Metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "update_queue_depth",
			Help: "Current number of pending durable writes",
		},
	)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "update_queue_enqueued_total",
			Help: "Total number of updates enqueued",
		},
		[]string{"priority"},
	)

	QueuePersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "update_queue_persisted_total",
			Help: "Total number of updates durably persisted",
		},
	)

	QueueRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "update_queue_retries_total",
			Help: "Total number of persistence retries",
		},
	)

	QueueTerminalFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "update_queue_terminal_failures_total",
			Help: "Total number of updates dropped after exhausting retries",
		},
	)

	QueueDrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "update_queue_drain_duration_seconds",
			Help:    "Duration of queue drain batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Conflict Resolution Metrics
	ConflictsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflicts_resolved_total",
			Help: "Total number of resolved record conflicts",
		},
		[]string{"strategy", "winner"},
	)

	// Sync Metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of store reconciliation runs",
		},
		[]string{"direction", "result"}, // result: "success", "partial", "blocked"
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Total number of items copied or overwritten during sync",
		},
	)

	SyncConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_conflicts_total",
			Help: "Total number of conflicts recorded during sync",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync",
		},
	)

	// Recovery Metrics
	RecoveryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_operations_total",
			Help: "Total number of recovery procedures executed",
		},
		[]string{"type", "outcome"}, // outcome: "completed", "failed", "rejected"
	)

	// Notification Metrics
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_notifications_published_total",
			Help: "Total number of status notifications published",
		},
	)

	NotificationsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_notifications_received_total",
			Help: "Total number of status notifications received",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_notifications_dropped_total",
			Help: "Total number of notifications dropped (parse or validation failure)",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped (slow client)",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers by result",
		},
		[]string{"name", "result"},
	)

	// Journal Metrics
	JournalTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_transitions_total",
			Help: "Total number of status transitions journaled",
		},
	)

	JournalErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_errors_total",
			Help: "Total number of journal write failures",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordCacheStats pushes a cache stats snapshot into the gauges.
func RecordCacheStats(entries, dirty int) {
	CacheEntries.Set(float64(entries))
	CacheDirtyEntries.Set(float64(dirty))
}

// RecordConflict records a resolved conflict.
func RecordConflict(strategy, winner string) {
	ConflictsResolved.WithLabelValues(strategy, winner).Inc()
}

// RecordSyncRun records the outcome of a reconciliation run.
func RecordSyncRun(direction string, duration time.Duration, itemsSynced, conflicts int, errs int, blocked bool) {
	result := "success"
	switch {
	case blocked:
		result = "blocked"
	case errs > 0:
		result = "partial"
	}
	SyncRuns.WithLabelValues(direction, result).Inc()
	if blocked {
		return
	}
	SyncDuration.Observe(duration.Seconds())
	SyncItems.Add(float64(itemsSynced))
	SyncConflicts.Add(float64(conflicts))
	if errs == 0 {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordRecovery records a recovery procedure outcome.
func RecordRecovery(typ, outcome string) {
	RecoveryOperations.WithLabelValues(typ, outcome).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
