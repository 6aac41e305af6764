// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the status engine with the Prometheus client library,
exposing counters, gauges, and histograms for every subsystem.

# Overview

The package provides metrics for:
  - Status cache hit/miss rates, size, and dirty backlog
  - Update queue depth, drain latency, and terminal failures
  - Conflict resolution outcomes by strategy and winner
  - Store reconciliation runs and durations
  - Recovery procedure outcomes
  - Notification publish/receive throughput
  - WebSocket connection counts
  - Circuit breaker state transitions

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8090/metrics

# Available Metrics

Status Cache Metrics:
  - status_cache_hits_total: Cache hits (counter)
  - status_cache_misses_total: Cache misses (counter)
  - status_cache_entries: Cached records (gauge)
  - status_cache_dirty_entries: Records awaiting persistence (gauge)
  - status_cache_evictions_total: Capacity evictions (counter)
  - status_cache_cleanup_removals_total: TTL sweep removals (counter)

Update Queue Metrics:
  - update_queue_depth: Pending durable writes (gauge)
  - update_queue_enqueued_total: Enqueued updates (counter)
    Labels: priority (high, normal, low)
  - update_queue_persisted_total: Durably persisted updates (counter)
  - update_queue_retries_total: Persistence retries (counter)
  - update_queue_terminal_failures_total: Updates dropped after max retries (counter)
  - update_queue_drain_duration_seconds: Drain batch latency (histogram)

Conflict Metrics:
  - conflicts_resolved_total: Resolved conflicts (counter)
    Labels: strategy (timestamp, version), winner (local, remote)

Sync Metrics:
  - sync_runs_total: Reconciliation runs (counter)
    Labels: direction, result (success, partial, blocked)
  - sync_duration_seconds: Run duration (histogram)
    Buckets: 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300
  - sync_items_total: Items copied or overwritten (counter)
  - sync_conflicts_total: Conflicts recorded during sync (counter)
  - sync_last_success_timestamp: Unix timestamp of last clean run (gauge)

Recovery Metrics:
  - recovery_operations_total: Recovery procedures (counter)
    Labels: type, outcome (completed, failed, rejected)

Notification Metrics:
  - status_notifications_published_total: Published notifications (counter)
  - status_notifications_received_total: Received notifications (counter)
  - status_notifications_dropped_total: Parse or validation drops (counter)

WebSocket Metrics:
  - websocket_connections: Active connections (gauge)
  - websocket_messages_sent_total: Messages sent (counter)
  - websocket_messages_dropped_total: Messages dropped for slow clients (counter)

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_state_transitions_total: Transitions (counter)
    Labels: name, from_state, to_state
  - circuit_breaker_requests_total: Requests by result (counter)
    Labels: name, result (success/failure/rejected)

# Usage Example

Basic setup in main.go:

	import (
	    "github.com/HtooAg/FAME-sub001/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    http.Handle("/metrics", promhttp.Handler())

	    metrics.RecordAPIRequest("GET", "/api/v1/events/{eventID}/statuses", "200", duration)
	    metrics.RecordCacheStats(cache.Len(), len(cache.DirtyEntries()))
	}

# Example PromQL Queries

	# Cache hit rate
	rate(status_cache_hits_total[5m]) /
	  (rate(status_cache_hits_total[5m]) + rate(status_cache_misses_total[5m]))

	# Dirty backlog growth
	deriv(status_cache_dirty_entries[10m])

	# Conflict rate by winning side
	sum by (winner) (rate(conflicts_resolved_total[5m]))

	# Sync p95 latency
	histogram_quantile(0.95, rate(sync_duration_seconds_bucket[15m]))

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

To prevent high cardinality issues:

  - Endpoint labels use route patterns, never raw paths with IDs
  - Priorities, strategies, and outcomes come from fixed constant sets
  - Event and artist identifiers are never used as labels
*/
package metrics
