// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package recovery implements the typed remediation procedures that put
// the cache back into a trustworthy state after corruption, connectivity
// loss, cross-store divergence, or a failed persistence run. Procedures
// run one at a time; every attempt is tracked in a bounded in-memory
// history for the operations surface.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

// ErrConnectivityTimeout reports that the durable store stayed
// unreachable for the whole connectivity-wait window.
var ErrConnectivityTimeout = errors.New("connectivity wait timed out")

// Params carries optional procedure inputs.
type Params struct {
	// ArtistIDs scopes data_inconsistency to specific artists.
	// Empty means every cached artist.
	ArtistIDs []string

	// FailedUpdates are queue entries to retry during network_failure.
	// Empty means the manager's retained terminal failures.
	FailedUpdates []models.QueuedUpdate
}

// Config tunes the recovery service.
type Config struct {
	// ConnectivityTimeout bounds how long network_failure waits for the
	// durable store to answer health probes.
	ConnectivityTimeout time.Duration

	// PollInterval is the health-probe cadence during the wait.
	PollInterval time.Duration

	// HistoryLimit bounds the retained operation history.
	HistoryLimit int
}

// DefaultConfig returns production recovery settings.
func DefaultConfig() Config {
	return Config{
		ConnectivityTimeout: 30 * time.Second,
		PollInterval:        2 * time.Second,
		HistoryLimit:        50,
	}
}

// Notifier receives operation state changes for dashboard fan-out.
// Optional.
type Notifier interface {
	BroadcastRecovery(op *models.RecoveryOperation)
}

// Service dispatches recovery procedures against one cache manager.
type Service struct {
	config   Config
	manager  *cache.Manager
	notifier Notifier

	inFlight atomic.Bool

	mu      sync.Mutex
	history []*models.RecoveryOperation
}

// NewService creates a recovery service for the given manager.
func NewService(config Config, manager *cache.Manager) *Service {
	if config.ConnectivityTimeout <= 0 {
		config.ConnectivityTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	return &Service{
		config:  config,
		manager: manager,
	}
}

// SetNotifier wires dashboard fan-out for operation state changes.
// Pass nil to disable.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// AutoRecover runs the named procedure and reports whether it completed.
// Procedures are serialized: a call that finds another procedure already
// running returns false immediately rather than queueing behind it.
func (s *Service) AutoRecover(ctx context.Context, typ models.RecoveryType, params Params) bool {
	if !typ.Valid() {
		logging.Warn().Str("type", string(typ)).Msg("unknown recovery type")
		return false
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		logging.Warn().Str("type", string(typ)).Msg("recovery already in flight")
		metrics.RecordRecovery(string(typ), "rejected")
		return false
	}
	defer s.inFlight.Store(false)

	op := models.NewRecoveryOperation(typ, s.manager.EventID())
	s.track(op)

	logging.Info().
		Str("type", string(typ)).
		Str("operation_id", op.ID).
		Msg("recovery started")
	started := time.Now()

	s.setStatus(op, models.RecoveryInProgress)
	err := s.run(ctx, typ, op, params)

	if err != nil {
		s.fail(op, err)
		metrics.RecordRecovery(string(typ), "failed")
		logging.Error().
			Err(err).
			Str("type", string(typ)).
			Str("operation_id", op.ID).
			Dur("duration", time.Since(started)).
			Msg("recovery failed")
		return false
	}

	s.complete(op)
	metrics.RecordRecovery(string(typ), "completed")
	logging.Info().
		Str("type", string(typ)).
		Str("operation_id", op.ID).
		Dur("duration", time.Since(started)).
		Msg("recovery completed")
	return true
}

// History returns a snapshot of retained operations, oldest first.
func (s *Service) History() []models.RecoveryOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RecoveryOperation, len(s.history))
	for i, op := range s.history {
		out[i] = *op
	}
	return out
}

// InFlight reports whether a procedure is currently running.
func (s *Service) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Service) run(ctx context.Context, typ models.RecoveryType, op *models.RecoveryOperation, params Params) error {
	switch typ {
	case models.RecoveryCacheCorruption:
		return s.recoverCacheCorruption(ctx)
	case models.RecoveryNetworkFailure:
		return s.recoverNetworkFailure(ctx, params)
	case models.RecoveryDataInconsistency:
		return s.recoverDataInconsistency(ctx, params)
	case models.RecoverySyncFailure:
		return s.recoverSyncFailure(ctx, op)
	default:
		return fmt.Errorf("unknown recovery type %q", typ)
	}
}

// recoverCacheCorruption tears the cache down and rebuilds it from the
// durable store. Dirty entries are flushed best-effort by Destroy; a
// corrupt cache's contents are not otherwise trusted.
func (s *Service) recoverCacheCorruption(ctx context.Context) error {
	eventID := s.manager.EventID()
	if eventID == "" {
		return errors.New("no active event")
	}

	if err := s.manager.Destroy(ctx); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}
	if err := s.manager.Initialize(ctx, eventID); err != nil {
		return fmt.Errorf("reinitialize failed: %w", err)
	}

	count, err := s.manager.FullSyncFromStorage(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	if count > 0 && len(s.manager.CachedRecords()) == 0 {
		return errors.New("cache empty after reload")
	}

	logging.Info().Str("event_id", eventID).Int("records", count).Msg("cache rebuilt from storage")
	return nil
}

// recoverNetworkFailure waits for the durable store to come back, puts
// failed writes back on the queue, and forces an immediate drain pass.
func (s *Service) recoverNetworkFailure(ctx context.Context, params Params) error {
	if err := s.waitForConnectivity(ctx); err != nil {
		return err
	}

	queue := s.manager.Queue()

	requeued := 0
	if len(params.FailedUpdates) > 0 {
		for i := range params.FailedUpdates {
			update := params.FailedUpdates[i]
			update.RetryCount = 0
			update.NextRetryAt = nil
			queue.Enqueue(&update)
			requeued++
		}
	} else {
		requeued = s.manager.RequeueTerminalFailures()
	}

	// Entries still holding a backoff deadline from the outage become
	// eligible again now that the store answers.
	reset := 0
	for _, update := range queue.AllUpdates() {
		if queue.Retry(update.ID) {
			reset++
		}
	}
	queue.Kick()

	logging.Info().
		Int("requeued", requeued).
		Int("reset", reset).
		Msg("queue drain forced after connectivity restored")
	return nil
}

// recoverDataInconsistency re-fetches artists from the durable store and
// reapplies the conflict-resolved winner to the cache.
func (s *Service) recoverDataInconsistency(ctx context.Context, params Params) error {
	artistIDs := params.ArtistIDs
	if len(artistIDs) == 0 {
		for _, record := range s.manager.CachedRecords() {
			artistIDs = append(artistIDs, record.ArtistID)
		}
	}

	changed, failures := 0, 0
	for _, artistID := range artistIDs {
		didChange, err := s.manager.ReconcileArtist(ctx, artistID)
		if err != nil {
			failures++
			logging.Warn().Err(err).Str("artist_id", artistID).Msg("reconcile failed")
			continue
		}
		if didChange {
			changed++
		}
	}

	logging.Info().
		Int("artists", len(artistIDs)).
		Int("changed", changed).
		Int("failures", failures).
		Msg("data inconsistency pass finished")
	if failures > 0 {
		return fmt.Errorf("reconciled %d of %d artists", len(artistIDs)-failures, len(artistIDs))
	}
	return nil
}

// recoverSyncFailure persists every dirty entry individually, bypassing
// the queue. Partial success counts as recovered; the operation records
// how many entries made it.
func (s *Service) recoverSyncFailure(ctx context.Context, op *models.RecoveryOperation) error {
	dirty := s.manager.DirtyRecords()
	if len(dirty) == 0 {
		return nil
	}

	persisted := 0
	for _, record := range dirty {
		record.Dirty = false
		if err := s.manager.Store().PutRecord(ctx, record); err != nil {
			logging.Warn().Err(err).Str("artist_id", record.ArtistID).Msg("dirty record persist failed")
			continue
		}
		s.manager.MarkClean(record.ArtistID)
		persisted++
	}

	if persisted == 0 {
		return fmt.Errorf("persisted 0 of %d dirty records", len(dirty))
	}
	if persisted < len(dirty) {
		s.annotate(op, fmt.Sprintf("persisted %d of %d dirty records", persisted, len(dirty)))
	}
	logging.Info().Int("persisted", persisted).Int("dirty", len(dirty)).Msg("dirty records persisted")
	return nil
}

// waitForConnectivity polls the durable store's health until it answers
// or the window closes.
func (s *Service) waitForConnectivity(ctx context.Context) error {
	deadline := time.Now().Add(s.config.ConnectivityTimeout)

	for {
		if err := s.manager.Store().Healthy(ctx); err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: store unreachable for %s", ErrConnectivityTimeout, s.config.ConnectivityTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

func (s *Service) track(op *models.RecoveryOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, op)
	if excess := len(s.history) - s.config.HistoryLimit; excess > 0 {
		s.history = s.history[excess:]
	}
}

func (s *Service) setStatus(op *models.RecoveryOperation, status models.RecoveryStatus) {
	s.mu.Lock()
	op.Status = status
	snapshot := *op
	s.mu.Unlock()
	s.notify(&snapshot)
}

func (s *Service) complete(op *models.RecoveryOperation) {
	s.mu.Lock()
	op.Complete()
	snapshot := *op
	s.mu.Unlock()
	s.notify(&snapshot)
}

func (s *Service) fail(op *models.RecoveryOperation, err error) {
	s.mu.Lock()
	op.Fail(err)
	snapshot := *op
	s.mu.Unlock()
	s.notify(&snapshot)
}

// notify pushes an operation snapshot to the dashboards. Snapshots keep
// the notifier from seeing later mutations of the tracked operation.
func (s *Service) notify(op *models.RecoveryOperation) {
	if s.notifier != nil {
		s.notifier.BroadcastRecovery(op)
	}
}

func (s *Service) annotate(op *models.RecoveryOperation, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op.Error = note
}
