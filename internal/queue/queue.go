// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package queue implements the priority write-behind queue that carries
// accepted status updates from the cache to durable storage. Entries drain
// in strict priority order (high, normal, low) with insertion order as the
// tiebreak within a class. Failed persistence attempts back off
// exponentially; entries that exhaust their retry budget are removed and
// reported to the terminal-failure callback, never silently dropped.
package queue

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

const persistTimeout = 10 * time.Second

// PersistFunc writes one queued update to durable storage.
type PersistFunc func(ctx context.Context, update *models.QueuedUpdate) error

// Callbacks are invoked by the queue outside its lock.
type Callbacks struct {
	// MarkClean is called after the last pending write for an artist
	// persists successfully.
	MarkClean func(eventID, artistID string)

	// TerminalFailure is called when an entry exceeds its retry budget.
	// The entry has already been removed from the queue.
	TerminalFailure func(update models.QueuedUpdate, err error)
}

// Config controls queue drain behavior.
type Config struct {
	// RetryDelay is the base backoff after a failed persistence attempt.
	// The n-th failure waits RetryDelay * 2^(n-1).
	RetryDelay time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// MaxRetries bounds attempts per entry. An entry whose retry count
	// exceeds this is removed and reported as a terminal failure.
	MaxRetries int

	// BatchSize bounds how many eligible entries one Process call drains.
	BatchSize int

	// DrainInterval is the background drain tick.
	DrainInterval time.Duration
}

// DefaultConfig returns production queue settings.
func DefaultConfig() Config {
	return Config{
		RetryDelay:    5 * time.Second,
		MaxBackoff:    5 * time.Minute,
		MaxRetries:    3,
		BatchSize:     32,
		DrainInterval: 2 * time.Second,
	}
}

// Stats is a point-in-time queue snapshot.
type Stats struct {
	TotalQueued int    `json:"totalQueued"`
	Processing  int    `json:"processing"`
	Failed      uint64 `json:"failed"`
	Completed   uint64 `json:"completed"`
}

// UpdateQueue is a priority retry queue of pending durable writes.
// It knows nothing about cache internals beyond the update payload.
type UpdateQueue struct {
	config    Config
	persist   PersistFunc
	callbacks Callbacks

	// State below protected by mu. Entries are kept rank-descending,
	// FIFO within a rank; index maps entry id to its struct.
	mu         sync.Mutex
	entries    []*models.QueuedUpdate
	index      map[string]*models.QueuedUpdate
	paused     bool
	draining   bool
	processing int
	completed  uint64
	failed     uint64

	// Drain loop control
	kick     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	stopping bool
	stopDone chan struct{}
}

// NewUpdateQueue creates a queue that persists entries via persist.
func NewUpdateQueue(config Config, persist PersistFunc, callbacks Callbacks) *UpdateQueue {
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = 2 * time.Second
	}
	return &UpdateQueue{
		config:    config,
		persist:   persist,
		callbacks: callbacks,
		index:     make(map[string]*models.QueuedUpdate),
		kick:      make(chan struct{}, 1),
	}
}

// Enqueue inserts an update keyed by priority, insertion order as tiebreak
// within the same priority. Always succeeds and returns the entry id.
func (q *UpdateQueue) Enqueue(update *models.QueuedUpdate) string {
	if update.ID == "" {
		update.ID = uuid.New().String()
	}
	if !update.Priority.Valid() {
		update.Priority = models.PriorityNormal
	}
	if update.MaxRetries <= 0 {
		update.MaxRetries = q.config.MaxRetries
	}
	if update.EnqueuedAt.IsZero() {
		update.EnqueuedAt = time.Now().UTC()
	}

	rank := update.Priority.Rank()

	q.mu.Lock()
	pos := len(q.entries)
	for i, e := range q.entries {
		if e.Priority.Rank() < rank {
			pos = i
			break
		}
	}
	q.entries = append(q.entries, nil)
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = update
	q.index[update.ID] = update
	depth := len(q.entries)
	q.mu.Unlock()

	metrics.QueueEnqueued.WithLabelValues(string(update.Priority)).Inc()
	metrics.QueueDepth.Set(float64(depth))

	logging.Debug().
		Str("update_id", update.ID).
		Str("artist_id", update.ArtistID).
		Str("event_id", update.EventID).
		Str("priority", string(update.Priority)).
		Int("depth", depth).
		Msg("Update enqueued")

	return update.ID
}

// Remove deletes an entry by id. Returns false if not found.
func (q *UpdateQueue) Remove(id string) bool {
	q.mu.Lock()
	ok := q.removeLocked(id)
	depth := len(q.entries)
	q.mu.Unlock()

	if ok {
		metrics.QueueDepth.Set(float64(depth))
	}
	return ok
}

// Clear drops all queued entries.
func (q *UpdateQueue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.index = make(map[string]*models.QueuedUpdate)
	q.mu.Unlock()

	metrics.QueueDepth.Set(0)
	logging.Debug().Msg("Update queue cleared")
}

// AllUpdates returns a snapshot of queued entries in drain order.
func (q *UpdateQueue) AllUpdates() []models.QueuedUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.QueuedUpdate, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// Retry resets the retry state of an entry for immediate reprocessing.
// Returns false if the id is not queued.
func (q *UpdateQueue) Retry(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.index[id]
	if !ok {
		return false
	}
	entry.RetryCount = 0
	entry.NextRetryAt = nil
	return true
}

// Pause halts draining. Queued entries are retained.
func (q *UpdateQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	logging.Info().Msg("Update queue paused")
}

// Resume restarts draining after Pause.
func (q *UpdateQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	logging.Info().Msg("Update queue resumed")
	q.Kick()
}

// Stats returns current queue statistics.
func (q *UpdateQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		TotalQueued: len(q.entries),
		Processing:  q.processing,
		Failed:      q.failed,
		Completed:   q.completed,
	}
}

// Len returns the number of queued entries.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// processResult tracks the outcome of one persistence attempt.
type processResult int

const (
	processPersisted processResult = iota
	processFailed
	processTerminal
	processCanceled
)

// Process drains eligible entries up to the configured batch size and
// returns the number persisted. Entries whose backoff has not elapsed are
// skipped. A failure in one entry does not block others in the batch.
// Only one Process call runs at a time; overlapping calls return 0.
func (q *UpdateQueue) Process(ctx context.Context) int {
	q.mu.Lock()
	if q.paused || q.draining {
		q.mu.Unlock()
		return 0
	}

	now := time.Now()
	batch := make([]*models.QueuedUpdate, 0, q.config.BatchSize)
	for _, e := range q.entries {
		if len(batch) >= q.config.BatchSize {
			break
		}
		if e.Eligible(now) {
			batch = append(batch, e)
		}
	}
	if len(batch) == 0 {
		q.mu.Unlock()
		return 0
	}
	q.draining = true
	q.processing = len(batch)
	q.mu.Unlock()

	start := time.Now()
	var persisted, failed, terminal int

	for _, entry := range batch {
		select {
		case <-ctx.Done():
			q.finishDrain()
			return persisted
		default:
		}

		switch q.processEntry(ctx, entry) {
		case processPersisted:
			persisted++
		case processFailed:
			failed++
		case processTerminal:
			terminal++
		}
	}

	depth := q.finishDrain()
	metrics.QueueDepth.Set(float64(depth))
	metrics.QueueDrainDuration.Observe(time.Since(start).Seconds())

	if persisted > 0 || failed > 0 || terminal > 0 {
		logging.Debug().
			Int("persisted", persisted).
			Int("failed", failed).
			Int("terminal", terminal).
			Int("remaining", depth).
			Msg("Queue drain complete")
	}

	return persisted
}

func (q *UpdateQueue) finishDrain() int {
	q.mu.Lock()
	q.draining = false
	q.processing = 0
	depth := len(q.entries)
	q.mu.Unlock()
	return depth
}

// processEntry attempts to persist a single entry.
func (q *UpdateQueue) processEntry(ctx context.Context, entry *models.QueuedUpdate) processResult {
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	err := q.persist(pctx, entry)
	cancel()

	if err == nil {
		q.mu.Lock()
		q.removeLocked(entry.ID)
		q.completed++
		// The record is only clean once no other write for the same
		// artist remains queued.
		lastForArtist := !q.artistQueuedLocked(entry.EventID, entry.ArtistID)
		q.mu.Unlock()

		metrics.QueuePersisted.Inc()
		if lastForArtist && q.callbacks.MarkClean != nil {
			q.callbacks.MarkClean(entry.EventID, entry.ArtistID)
		}
		return processPersisted
	}

	if ctx.Err() != nil {
		return processCanceled
	}

	q.mu.Lock()
	entry.RetryCount++
	if entry.Exhausted() {
		q.removeLocked(entry.ID)
		q.failed++
		q.mu.Unlock()

		metrics.QueueTerminalFailures.Inc()
		logging.Error().
			Err(err).
			Str("update_id", entry.ID).
			Str("artist_id", entry.ArtistID).
			Int("attempts", entry.RetryCount).
			Int("max_retries", entry.MaxRetries).
			Msg("Update dropped after exhausting retries")

		if q.callbacks.TerminalFailure != nil {
			q.callbacks.TerminalFailure(*entry, err)
		}
		return processTerminal
	}

	next := time.Now().Add(q.backoff(entry.RetryCount))
	entry.NextRetryAt = &next
	q.mu.Unlock()

	metrics.QueueRetries.Inc()
	logging.Warn().
		Err(err).
		Str("update_id", entry.ID).
		Str("artist_id", entry.ArtistID).
		Int("attempt", entry.RetryCount).
		Time("next_retry_at", next).
		Msg("Update persistence failed, will retry")

	return processFailed
}

// backoff computes the exponential delay before the next attempt.
// Formula: RetryDelay * 2^(retryCount-1), capped at MaxBackoff.
func (q *UpdateQueue) backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	// Cap the exponent to prevent overflow (2^63 is the max for
	// time.Duration).
	if retryCount > 50 {
		return q.config.MaxBackoff
	}

	multiplier := math.Pow(2, float64(retryCount-1))
	backoff := time.Duration(float64(q.config.RetryDelay) * multiplier)

	if backoff < 0 || backoff > q.config.MaxBackoff {
		backoff = q.config.MaxBackoff
	}
	return backoff
}

// removeLocked removes an entry from both the ordered slice and the index.
// Caller must hold q.mu.
func (q *UpdateQueue) removeLocked(id string) bool {
	if _, ok := q.index[id]; !ok {
		return false
	}
	delete(q.index, id)
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// artistQueuedLocked reports whether any entry for the artist remains.
// Caller must hold q.mu.
func (q *UpdateQueue) artistQueuedLocked(eventID, artistID string) bool {
	for _, e := range q.entries {
		if e.EventID == eventID && e.ArtistID == artistID {
			return true
		}
	}
	return false
}
