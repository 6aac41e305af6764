// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package sync reconciles the local store with the cloud store.
//
// A run loads the full record and counter sets from both sides, unions
// them by natural key, copies one-sided items across, and resolves
// both-sided divergences through the conflict resolver. Counters merge
// by maximum. Runs are partial-failure tolerant: an item that cannot be
// written is reported in the result and the run continues; nothing is
// rolled back.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/conflict"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/storage"
)

// ErrSyncInProgress is returned when a run is requested while another is
// still executing. Requests are rejected, never queued: the caller's
// next periodic tick will pick up the work.
var ErrSyncInProgress = errors.New("sync already in progress")

// Config tunes a sync service bound to one event.
type Config struct {
	// EventID scopes every run. Required.
	EventID string

	// Interval between periodic runs. Non-positive disables the
	// periodic runner.
	Interval time.Duration
}

// DefaultConfig returns production settings for an event.
func DefaultConfig(eventID string) Config {
	return Config{
		EventID:  eventID,
		Interval: 5 * time.Minute,
	}
}

// Notifier receives finished run results for dashboard fan-out.
// Optional.
type Notifier interface {
	BroadcastSyncCompleted(result *models.SyncResult)
}

// Service reconciles one event's data between a local and a remote
// store. One instance allows one run at a time; construction is cheap,
// so switching events means constructing a new service.
type Service struct {
	config   Config
	local    *storage.RecordStore
	remote   *storage.RecordStore
	resolver *conflict.Resolver
	notifier Notifier

	inProgress atomic.Bool

	mu         sync.Mutex
	lastResult *models.SyncResult
}

// NewService creates a sync service over the two stores.
func NewService(config Config, local, remote *storage.RecordStore, resolver *conflict.Resolver) *Service {
	if resolver == nil {
		resolver = conflict.NewResolver(0)
	}
	return &Service{
		config:   config,
		local:    local,
		remote:   remote,
		resolver: resolver,
	}
}

// SetNotifier wires dashboard fan-out for finished runs. Pass nil to
// disable.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SyncData runs a bidirectional reconciliation.
func (s *Service) SyncData(ctx context.Context) (*models.SyncResult, error) {
	return s.run(ctx, models.SyncBidirectional)
}

// SyncFromRemoteToLocal copies remote state down without pushing local
// changes up. Used when local state is suspect, for example after cache
// corruption recovery.
func (s *Service) SyncFromRemoteToLocal(ctx context.Context) (*models.SyncResult, error) {
	return s.run(ctx, models.SyncRemoteToLocal)
}

// SyncFromLocalToRemote pushes local state up without pulling remote
// changes down. Used to flush a backlog after an outage.
func (s *Service) SyncFromLocalToRemote(ctx context.Context) (*models.SyncResult, error) {
	return s.run(ctx, models.SyncLocalToRemote)
}

// LastResult returns the most recent run's outcome.
func (s *Service) LastResult() (*models.SyncResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return nil, false
	}
	copied := *s.lastResult
	return &copied, true
}

// LastSyncTime returns when the most recent successful run started.
func (s *Service) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil || !s.lastResult.Success {
		return time.Time{}
	}
	return s.lastResult.StartedAt
}

// InProgress reports whether a run is currently executing.
func (s *Service) InProgress() bool {
	return s.inProgress.Load()
}

// Run executes periodic bidirectional syncs until ctx is canceled. It
// satisfies the supervision tree's service contract: the returned error
// is always ctx's cause.
func (s *Service) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	logging.Info().
		Str("event_id", s.config.EventID).
		Dur("interval", s.config.Interval).
		Msg("starting periodic sync")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := s.SyncData(ctx)
			if errors.Is(err, ErrSyncInProgress) {
				continue
			}
			if err != nil {
				logging.Error().Err(err).Str("event_id", s.config.EventID).Msg("periodic sync failed")
				continue
			}
			if !result.Success {
				logging.Warn().
					Str("event_id", s.config.EventID).
					Strs("errors", result.Errors).
					Msg("periodic sync completed with errors")
			}
		}
	}
}

// run is the guarded core shared by all three entry points.
func (s *Service) run(ctx context.Context, direction models.SyncDirection) (*models.SyncResult, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.inProgress.Store(false)

	started := time.Now().UTC()
	result := &models.SyncResult{
		Direction: direction,
		StartedAt: started,
		Conflicts: []models.SyncConflict{},
		Errors:    []string{},
	}

	// Reachability first: a dead remote must not produce a half-run.
	if err := s.remote.Healthy(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("remote unavailable: %v", err))
		result.Duration = time.Since(started)
		s.finish(result, true)
		return result, nil
	}

	totalItems := 0
	totalItems += s.syncStatuses(ctx, direction, result)
	totalItems += s.syncCounters(ctx, direction, result)
	s.persistMetadata(ctx, direction, started, totalItems, result)

	result.Success = len(result.Errors) == 0
	result.Duration = time.Since(started)
	s.finish(result, false)
	return result, nil
}

// finish records the run in metrics, logs, and the last-result slot.
func (s *Service) finish(result *models.SyncResult, blocked bool) {
	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	metrics.RecordSyncRun(
		string(result.Direction),
		result.Duration,
		result.ItemsSynced,
		len(result.Conflicts),
		len(result.Errors),
		blocked,
	)

	event := logging.Info()
	if len(result.Errors) > 0 {
		event = logging.Warn()
	}
	event.
		Str("event_id", s.config.EventID).
		Str("direction", string(result.Direction)).
		Int("items_synced", result.ItemsSynced).
		Int("conflicts", len(result.Conflicts)).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("sync run finished")

	if s.notifier != nil {
		s.notifier.BroadcastSyncCompleted(result)
	}
}

// writesLocal reports whether the direction mutates the local store.
func writesLocal(direction models.SyncDirection) bool {
	return direction != models.SyncLocalToRemote
}

// writesRemote reports whether the direction mutates the remote store.
func writesRemote(direction models.SyncDirection) bool {
	return direction != models.SyncRemoteToLocal
}
