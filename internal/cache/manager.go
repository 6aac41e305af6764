// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HtooAg/FAME-sub001/internal/conflict"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/queue"
	"github.com/HtooAg/FAME-sub001/internal/storage"
)

// ManagerState is the lifecycle phase of a Manager.
type ManagerState string

// Manager lifecycle states. Destroyed is not terminal: Initialize brings
// a destroyed manager back up, which is how event switches and cache
// corruption recovery work.
const (
	StateUninitialized ManagerState = "uninitialized"
	StateInitializing  ManagerState = "initializing"
	StateReady         ManagerState = "ready"
	StateDestroyed     ManagerState = "destroyed"
)

// Manager errors.
var (
	// ErrNotReady rejects operations outside the ready state.
	ErrNotReady = errors.New("cache manager not ready")

	// ErrVersionConflict rejects a write whose version is behind the
	// cached record. The caller re-reads and retries with fresh state.
	ErrVersionConflict = errors.New("version conflict")

	// ErrEventActive rejects Initialize for a different event while one
	// is running. Destroy the current event first.
	ErrEventActive = errors.New("another event is active")
)

// Publisher fans an accepted write out to the other instances.
type Publisher interface {
	PublishStatus(ctx context.Context, n *models.StatusNotification) error
}

// Subscriber delivers other instances' writes. The returned function
// cancels the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, eventID string, handler func(context.Context, *models.StatusNotification) error) (func(), error)
}

// Journal records accepted status transitions for the analytics store.
type Journal interface {
	RecordTransition(ctx context.Context, record *models.StatusRecord) error
	RecordBatch(ctx context.Context, records []*models.StatusRecord) error
}

// Broadcaster pushes accepted records to connected dashboards.
type Broadcaster interface {
	BroadcastStatus(record *models.StatusRecord)
}

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// InstanceID identifies this process in notification origins.
	// Defaults to a random id.
	InstanceID string

	// CacheCapacity is the maximum number of cached records.
	CacheCapacity int

	// CacheTTL is the time-to-live for cached records.
	CacheTTL time.Duration

	// CleanupInterval is the janitor cadence for expired-entry sweeps.
	CleanupInterval time.Duration

	// Queue tunes the write-behind queue the manager owns.
	Queue queue.Config

	// TerminalFailureLimit bounds the retained terminal-failure list.
	TerminalFailureLimit int
}

// DefaultManagerConfig returns production settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InstanceID:           uuid.New().String(),
		CacheCapacity:        5000,
		CacheTTL:             5 * time.Minute,
		CleanupInterval:      time.Minute,
		Queue:                queue.DefaultConfig(),
		TerminalFailureLimit: 128,
	}
}

// Deps are the manager's collaborators. Store is the local durable
// store; a nil Store gets an in-memory one, which keeps dev runs and
// tests self-contained. Everything else is optional.
type Deps struct {
	Store       *storage.RecordStore
	Resolver    *conflict.Resolver
	Publisher   Publisher
	Subscriber  Subscriber
	Journal     Journal
	Broadcaster Broadcaster
}

// Manager orchestrates the status cache for one event: read-through
// gets, optimistically checked writes, the write-behind queue, fan-out
// to other instances, and the inbound conflict path. It owns the queue
// drain loop and the cache janitor; both run only between Initialize
// and Destroy.
type Manager struct {
	config ManagerConfig

	cache    *StatusCache
	queue    *queue.UpdateQueue
	store    *storage.RecordStore
	resolver *conflict.Resolver

	publisher   Publisher
	subscriber  Subscriber
	journal     Journal
	broadcaster Broadcaster

	mu            sync.RWMutex
	state         ManagerState
	eventID       string
	loopCancel    context.CancelFunc
	unsubscribe   func()
	lastEvictions int64
	failed        []models.QueuedUpdate
}

// NewManager wires a manager. It starts nothing; call Initialize.
func NewManager(config ManagerConfig, deps Deps) *Manager {
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.TerminalFailureLimit <= 0 {
		config.TerminalFailureLimit = 128
	}
	if deps.Store == nil {
		deps.Store = storage.NewRecordStore(storage.NewMemStore())
	}
	if deps.Resolver == nil {
		deps.Resolver = conflict.NewResolver(0)
	}

	m := &Manager{
		config:      config,
		cache:       NewStatusCache(config.CacheCapacity, config.CacheTTL),
		store:       deps.Store,
		resolver:    deps.Resolver,
		publisher:   deps.Publisher,
		subscriber:  deps.Subscriber,
		journal:     deps.Journal,
		broadcaster: deps.Broadcaster,
		state:       StateUninitialized,
	}
	m.queue = queue.NewUpdateQueue(config.Queue, m.persistQueued, queue.Callbacks{
		MarkClean:       m.markCleanFromQueue,
		TerminalFailure: m.recordTerminalFailure,
	})
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() ManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EventID returns the active event, or "" when not ready.
func (m *Manager) EventID() string {
	eventID, _ := m.currentEvent()
	return eventID
}

// InstanceID returns this process's origin id.
func (m *Manager) InstanceID() string {
	return m.config.InstanceID
}

// Queue exposes the write-behind queue for the API surface and the
// recovery service.
func (m *Manager) Queue() *queue.UpdateQueue {
	return m.queue
}

// Initialize warms the cache for an event, subscribes to change
// notifications, and starts the drain and janitor loops. Idempotent for
// the active event; a different event requires Destroy first.
func (m *Manager) Initialize(ctx context.Context, eventID string) error {
	if eventID == "" {
		return &models.ValidationError{Field: "eventId", Message: "required"}
	}

	m.mu.Lock()
	switch m.state {
	case StateReady, StateInitializing:
		active := m.eventID
		m.mu.Unlock()
		if active == eventID {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrEventActive, active)
	}
	m.state = StateInitializing
	m.eventID = eventID
	m.mu.Unlock()

	logging.Info().Str("event_id", eventID).Msg("initializing cache manager")

	records, err := m.store.ListRecords(ctx, eventID)
	if err != nil {
		m.mu.Lock()
		m.state = StateUninitialized
		m.eventID = ""
		m.mu.Unlock()
		return fmt.Errorf("cache warm-up failed: %w", err)
	}
	for _, record := range records {
		record.Dirty = false
		m.cache.Set(record.ArtistID, record)
	}

	// Loops and the subscription outlive the Initialize call, so they
	// hang off their own context rather than the caller's.
	loopCtx, cancel := context.WithCancel(context.Background())

	var unsubscribe func()
	if m.subscriber != nil {
		unsubscribe, err = m.subscriber.Subscribe(loopCtx, eventID, m.HandleNotification)
		if err != nil {
			// Notifications are a non-critical service: a show can run
			// on one instance without fan-out.
			logging.Warn().Err(err).Str("event_id", eventID).Msg("change notifications unavailable")
			unsubscribe = nil
		}
	}

	if err := m.queue.Start(loopCtx); err != nil {
		logging.Warn().Err(err).Msg("queue drain loop already running")
	}
	go m.janitor(loopCtx)

	m.mu.Lock()
	m.loopCancel = cancel
	m.unsubscribe = unsubscribe
	m.state = StateReady
	m.mu.Unlock()

	logging.Info().
		Str("event_id", eventID).
		Int("warmed_records", len(records)).
		Msg("cache manager ready")
	return nil
}

// GetArtistStatus returns the artist's record, reading through to the
// durable store on a cache miss. A store failure surfaces as a miss;
// reads must never block the show on storage health.
func (m *Manager) GetArtistStatus(ctx context.Context, artistID string) (*models.StatusRecord, bool) {
	eventID, ok := m.currentEvent()
	if !ok || artistID == "" {
		return nil, false
	}

	if record, found := m.cache.Get(artistID); found {
		metrics.CacheHits.Inc()
		return record, true
	}
	metrics.CacheMisses.Inc()

	record, err := m.store.GetRecord(ctx, eventID, artistID)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			logging.Warn().Err(err).Str("artist_id", artistID).Msg("read-through failed")
		}
		return nil, false
	}
	record.Dirty = false
	m.cache.Set(artistID, record)
	return record, true
}

// UpdateArtistStatus applies a partial update under the optimistic
// version check. On acceptance the write is queued for durable
// persistence, published to the other instances, journaled, and pushed
// to connected dashboards. A version behind the cached record returns
// ErrVersionConflict with no mutation.
func (m *Manager) UpdateArtistStatus(ctx context.Context, artistID string, update *models.StatusUpdate) (*models.StatusRecord, error) {
	record, err := m.applyUpdate(ctx, artistID, update)
	if err != nil {
		return nil, err
	}

	m.enqueueWrite(record, update)
	m.queue.Kick()
	m.journalOne(ctx, record)
	m.publishRecord(ctx, record)
	m.broadcastRecord(record)
	return record, nil
}

// BatchUpdateStatuses applies a batch item by item. Accepted items share
// one journal write and one drain kick; rejected items report their
// error without voiding the rest.
func (m *Manager) BatchUpdateStatuses(ctx context.Context, items []models.BatchUpdateItem) []models.BatchUpdateResult {
	results := make([]models.BatchUpdateResult, 0, len(items))
	var accepted []*models.StatusRecord

	for i := range items {
		item := &items[i]
		record, err := m.applyUpdate(ctx, item.ArtistID, &item.Update)
		if err != nil {
			results = append(results, models.BatchUpdateResult{
				ArtistID: item.ArtistID,
				Error:    err.Error(),
			})
			continue
		}

		m.enqueueWrite(record, &item.Update)
		m.publishRecord(ctx, record)
		m.broadcastRecord(record)
		accepted = append(accepted, record)
		results = append(results, models.BatchUpdateResult{
			ArtistID: item.ArtistID,
			Success:  true,
			Record:   record,
		})
	}

	if len(accepted) > 0 {
		m.queue.Kick()
		m.journalMany(ctx, accepted)
	}
	return results
}

// HandleNotification is the inbound side of the change-notification
// channel. Deliveries are at-least-once and unordered, so every record
// passes through conflict resolution; this instance's own echoes and
// other events' traffic are dropped. Returning an error asks the
// subscriber to redeliver.
func (m *Manager) HandleNotification(ctx context.Context, n *models.StatusNotification) error {
	if n == nil {
		return nil
	}
	eventID, ok := m.currentEvent()
	if !ok {
		// Redeliver once initialization finishes.
		return ErrNotReady
	}
	if n.Origin == m.config.InstanceID || n.EventID != eventID {
		return nil
	}
	if err := n.Validate(); err != nil {
		// Poison payloads are dropped, not redelivered.
		logging.Warn().Err(err).Str("notification_id", n.NotificationID).Msg("dropping invalid notification")
		return nil
	}

	inbound := n.Record.Clone()
	inbound.Dirty = false
	m.reconcileInbound(inbound)
	return nil
}

// ReconcileArtist re-fetches one artist from the durable store and
// reapplies the conflict-resolved winner to the cache. Returns whether
// the cache changed. Used by data-inconsistency recovery.
func (m *Manager) ReconcileArtist(ctx context.Context, artistID string) (bool, error) {
	eventID, ok := m.currentEvent()
	if !ok {
		return false, ErrNotReady
	}

	stored, err := m.store.GetRecord(ctx, eventID, artistID)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	stored.Dirty = false

	current, found := m.cache.Get(artistID)
	if !found {
		m.cache.Set(artistID, stored)
		m.broadcastRecord(stored)
		return true, nil
	}

	res := m.resolver.Resolve(current, stored)
	if res.Winner != conflict.WinnerRemote {
		return false, nil
	}
	m.cache.Set(artistID, res.Resolved)
	m.broadcastRecord(res.Resolved)
	return true, nil
}

// FullSyncFromStorage clears the cache and reloads every record for the
// event from the durable store. Unpersisted dirty entries are lost by
// design: this is the cache-corruption recovery path, where the cache
// contents are not trusted.
func (m *Manager) FullSyncFromStorage(ctx context.Context, eventID string) (int, error) {
	active, ok := m.currentEvent()
	if !ok {
		return 0, ErrNotReady
	}
	if eventID == "" {
		eventID = active
	}
	if eventID != active {
		return 0, fmt.Errorf("%w: %s", ErrEventActive, active)
	}

	records, err := m.store.ListRecords(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("full sync failed: %w", err)
	}

	m.cache.Clear()
	for _, record := range records {
		record.Dirty = false
		m.cache.Set(record.ArtistID, record)
	}

	logging.Info().Str("event_id", eventID).Int("records", len(records)).Msg("cache reloaded from storage")
	return len(records), nil
}

// Destroy flushes dirty records best-effort, stops the loops, drops the
// subscription, and clears all state. Idempotent. A destroyed manager
// can be initialized again.
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateDestroyed {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateInitializing {
		m.mu.Unlock()
		return fmt.Errorf("cannot destroy while initializing")
	}
	eventID := m.eventID
	cancel := m.loopCancel
	unsubscribe := m.unsubscribe
	m.loopCancel = nil
	m.unsubscribe = nil
	m.eventID = ""
	m.state = StateDestroyed
	m.mu.Unlock()

	m.queue.Stop()
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	flushed, failed := 0, 0
	for _, record := range m.cache.DirtyEntries() {
		record.Dirty = false
		if err := m.store.PutRecord(ctx, record); err != nil {
			failed++
			logging.Warn().Err(err).Str("artist_id", record.ArtistID).Msg("dirty record lost during destroy")
			continue
		}
		flushed++
	}

	m.cache.Clear()
	m.queue.Clear()

	logging.Info().
		Str("event_id", eventID).
		Int("flushed", flushed).
		Int("flush_failures", failed).
		Msg("cache manager destroyed")
	return nil
}

// DirtyRecords returns clones of all records awaiting persistence.
func (m *Manager) DirtyRecords() []*models.StatusRecord {
	return m.cache.DirtyEntries()
}

// CachedRecords returns clones of every cached record for the event.
func (m *Manager) CachedRecords() []*models.StatusRecord {
	eventID, ok := m.currentEvent()
	if !ok {
		return nil
	}
	return m.cache.Records(eventID)
}

// MarkClean clears an artist's dirty flag after direct persistence,
// bypassing the queue. Used by sync-failure recovery.
func (m *Manager) MarkClean(artistID string) {
	m.cache.MarkClean(artistID)
}

// Store exposes the durable record store for recovery procedures.
func (m *Manager) Store() *storage.RecordStore {
	return m.store
}

// CacheStats snapshots the cache counters.
func (m *Manager) CacheStats() Stats {
	return m.cache.Stats()
}

// TerminalFailures returns the retained updates that exhausted their
// retries. The recovery service re-queues these once connectivity is
// back.
func (m *Manager) TerminalFailures() []models.QueuedUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.QueuedUpdate, len(m.failed))
	copy(out, m.failed)
	return out
}

// RequeueTerminalFailures puts every retained terminal failure back on
// the queue with a reset retry budget and clears the list. Returns the
// number requeued.
func (m *Manager) RequeueTerminalFailures() int {
	m.mu.Lock()
	failed := m.failed
	m.failed = nil
	m.mu.Unlock()

	for i := range failed {
		update := failed[i]
		update.RetryCount = 0
		update.NextRetryAt = nil
		m.queue.Enqueue(&update)
	}
	if len(failed) > 0 {
		m.queue.Kick()
	}
	return len(failed)
}

// currentEvent returns the active event id iff the manager is ready.
func (m *Manager) currentEvent() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return "", false
	}
	return m.eventID, true
}

// applyUpdate runs the optimistic write against the cache, seeding from
// the durable store (or a fresh record) when the artist is not cached.
func (m *Manager) applyUpdate(ctx context.Context, artistID string, update *models.StatusUpdate) (*models.StatusRecord, error) {
	eventID, ok := m.currentEvent()
	if !ok {
		return nil, ErrNotReady
	}
	if artistID == "" {
		return nil, &models.ValidationError{Field: "artistId", Message: "required"}
	}
	if update == nil {
		return nil, &models.ValidationError{Field: "update", Message: "required"}
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	if _, found := m.cache.Get(artistID); !found {
		stored, err := m.store.GetRecord(ctx, eventID, artistID)
		switch {
		case err == nil:
			stored.Dirty = false
			m.cache.Set(artistID, stored)
		case errors.Is(err, storage.ErrKeyNotFound):
			// First write for this artist: the optimistic check runs
			// against the writer's own version expectation.
			seed := models.NewStatusRecord(eventID, artistID)
			seed.Version = update.Version
			m.cache.Set(artistID, seed)
		default:
			return nil, fmt.Errorf("failed to load record for %s: %w", artistID, err)
		}
	}

	record, accepted := m.cache.Update(artistID, update)
	if !accepted {
		logging.Debug().
			Str("artist_id", artistID).
			Int64("update_version", update.Version).
			Msg("update rejected by version check")
		return nil, ErrVersionConflict
	}
	return record, nil
}

// enqueueWrite queues the accepted update for durable persistence.
// Stage-critical transitions jump the queue.
func (m *Manager) enqueueWrite(record *models.StatusRecord, update *models.StatusUpdate) {
	priority := models.PriorityLow
	if update.PerformanceStatus != nil {
		priority = update.PerformanceStatus.QueuePriority()
	}
	m.queue.Enqueue(models.NewQueuedUpdate(record.EventID, record.ArtistID, *update, priority))
}

// persistQueued is the queue's persistence hook. It writes the artist's
// current merged record, not the queued partial: drains can run out of
// enqueue order across priorities, and replaying partials out of order
// could regress the store.
func (m *Manager) persistQueued(ctx context.Context, queued *models.QueuedUpdate) error {
	record, found := m.cache.Get(queued.ArtistID)
	if !found {
		// Evicted or expired between enqueue and drain: rebuild the
		// merged state from the store and the queued update.
		stored, err := m.store.GetRecord(ctx, queued.EventID, queued.ArtistID)
		if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return err
		}
		if stored == nil {
			stored = models.NewStatusRecord(queued.EventID, queued.ArtistID)
			stored.Version = queued.Updates.Version
		}
		if queued.Updates.Version >= stored.Version {
			queued.Updates.ApplyTo(stored)
			stored.Version = queued.Updates.Version + 1
			stored.Timestamp = time.Now().UTC()
		}
		record = stored
	}

	record.Dirty = false
	return m.store.PutRecord(ctx, record)
}

// markCleanFromQueue is the queue's last-write-drained callback.
func (m *Manager) markCleanFromQueue(eventID, artistID string) {
	m.cache.MarkClean(artistID)
}

// recordTerminalFailure retains exhausted updates for recovery, oldest
// dropped first when the list is full.
func (m *Manager) recordTerminalFailure(update models.QueuedUpdate, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = append(m.failed, update)
	if excess := len(m.failed) - m.config.TerminalFailureLimit; excess > 0 {
		m.failed = m.failed[excess:]
	}
}

// reconcileInbound resolves a remote record against the cache and
// applies the winner. An uncached artist adopts the remote record.
func (m *Manager) reconcileInbound(inbound *models.StatusRecord) {
	current, found := m.cache.Get(inbound.ArtistID)
	if !found {
		m.cache.Set(inbound.ArtistID, inbound)
		m.broadcastRecord(inbound)
		return
	}

	res := m.resolver.Resolve(current, inbound)
	metrics.RecordConflict(string(res.Strategy), string(res.Winner))
	if res.Winner != conflict.WinnerRemote {
		return
	}
	m.cache.Set(inbound.ArtistID, res.Resolved)
	m.broadcastRecord(res.Resolved)
}

// janitor sweeps expired entries and refreshes cache gauges.
func (m *Manager) janitor(ctx context.Context) {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.cache.Cleanup(); removed > 0 {
				metrics.CacheCleanupRemovals.Add(float64(removed))
				logging.Debug().Int("removed", removed).Msg("cache cleanup pass")
			}

			stats := m.cache.Stats()
			metrics.RecordCacheStats(stats.TotalEntries, stats.DirtyEntries)

			m.mu.Lock()
			delta := stats.Evictions - m.lastEvictions
			m.lastEvictions = stats.Evictions
			m.mu.Unlock()
			if delta > 0 {
				metrics.CacheEvictions.Add(float64(delta))
			}
		}
	}
}

// journalOne records a single transition.
func (m *Manager) journalOne(ctx context.Context, record *models.StatusRecord) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordTransition(ctx, record); err != nil {
		logging.Warn().Err(err).Str("artist_id", record.ArtistID).Msg("journal write failed")
	}
}

// journalMany records a batch of transitions in one write.
func (m *Manager) journalMany(ctx context.Context, records []*models.StatusRecord) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordBatch(ctx, records); err != nil {
		logging.Warn().Err(err).Int("records", len(records)).Msg("journal batch write failed")
	}
}

// publishRecord fans an accepted record out to the other instances.
func (m *Manager) publishRecord(ctx context.Context, record *models.StatusRecord) {
	if m.publisher == nil {
		return
	}
	n := models.NewStatusNotification(m.config.InstanceID, *record)
	if err := m.publisher.PublishStatus(ctx, n); err != nil {
		logging.Warn().Err(err).Str("artist_id", record.ArtistID).Msg("notification publish failed")
	}
}

// broadcastRecord pushes a record to connected dashboards.
func (m *Manager) broadcastRecord(record *models.StatusRecord) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.BroadcastStatus(record)
}
