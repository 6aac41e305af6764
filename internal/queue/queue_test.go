// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/models"
)

// mockPersister records persistence attempts and can be told to fail.
type mockPersister struct {
	mu    sync.Mutex
	calls []string
	fail  func(update *models.QueuedUpdate) error
}

func (m *mockPersister) persist(ctx context.Context, update *models.QueuedUpdate) error {
	m.mu.Lock()
	m.calls = append(m.calls, update.ID)
	m.mu.Unlock()
	if m.fail != nil {
		return m.fail(update)
	}
	return nil
}

func (m *mockPersister) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testConfig() Config {
	return Config{
		RetryDelay:    time.Millisecond,
		MaxBackoff:    time.Second,
		MaxRetries:    3,
		BatchSize:     32,
		DrainInterval: 10 * time.Millisecond,
	}
}

func testUpdate(artistID string, priority models.UpdatePriority) *models.QueuedUpdate {
	status := models.StatusCurrentlyOnStage
	return models.NewQueuedUpdate("event-1", artistID, models.StatusUpdate{
		PerformanceStatus: &status,
		Version:           1,
	}, priority)
}

func TestEnqueuePriorityOrder(t *testing.T) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})

	q.Enqueue(testUpdate("artist-normal", models.PriorityNormal))
	q.Enqueue(testUpdate("artist-high", models.PriorityHigh))
	q.Enqueue(testUpdate("artist-low", models.PriorityLow))

	updates := q.AllUpdates()
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(updates))
	}

	wantArtists := []string{"artist-high", "artist-normal", "artist-low"}
	for i, want := range wantArtists {
		if updates[i].ArtistID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, updates[i].ArtistID)
		}
	}
}

func TestEnqueueStableWithinPriority(t *testing.T) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})

	// Mixed insertion sequence must drain high, high, normal, low, low.
	q.Enqueue(testUpdate("low-1", models.PriorityLow))
	q.Enqueue(testUpdate("high-1", models.PriorityHigh))
	q.Enqueue(testUpdate("normal-1", models.PriorityNormal))
	q.Enqueue(testUpdate("high-2", models.PriorityHigh))
	q.Enqueue(testUpdate("low-2", models.PriorityLow))

	updates := q.AllUpdates()
	wantArtists := []string{"high-1", "high-2", "normal-1", "low-1", "low-2"}
	if len(updates) != len(wantArtists) {
		t.Fatalf("expected %d updates, got %d", len(wantArtists), len(updates))
	}
	for i, want := range wantArtists {
		if updates[i].ArtistID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, updates[i].ArtistID)
		}
	}
}

func TestEnqueueDefaults(t *testing.T) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})

	update := &models.QueuedUpdate{
		ArtistID: "artist-1",
		EventID:  "event-1",
		Priority: models.UpdatePriority("bogus"),
	}
	id := q.Enqueue(update)

	if id == "" {
		t.Fatal("expected generated id")
	}
	if update.Priority != models.PriorityNormal {
		t.Errorf("expected priority fallback to normal, got %s", update.Priority)
	}
	if update.MaxRetries != 3 {
		t.Errorf("expected MaxRetries defaulted to 3, got %d", update.MaxRetries)
	}
	if update.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be set")
	}
}

func TestRemove(t *testing.T) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})

	id := q.Enqueue(testUpdate("artist-1", models.PriorityNormal))

	if !q.Remove(id) {
		t.Error("expected Remove to succeed")
	}
	if q.Remove(id) {
		t.Error("expected second Remove to fail")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestClear(t *testing.T) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})

	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))
	q.Enqueue(testUpdate("artist-2", models.PriorityHigh))
	q.Clear()

	if q.Len() != 0 {
		t.Errorf("expected empty queue after Clear, got %d", q.Len())
	}
	if len(q.AllUpdates()) != 0 {
		t.Error("expected no updates after Clear")
	}
}

func TestRetryResetsState(t *testing.T) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})

	update := testUpdate("artist-1", models.PriorityNormal)
	update.RetryCount = 2
	next := time.Now().Add(time.Hour)
	update.NextRetryAt = &next
	id := q.Enqueue(update)

	if !q.Retry(id) {
		t.Fatal("expected Retry to succeed")
	}

	got := q.AllUpdates()[0]
	if got.RetryCount != 0 {
		t.Errorf("expected RetryCount reset, got %d", got.RetryCount)
	}
	if got.NextRetryAt != nil {
		t.Error("expected NextRetryAt cleared")
	}

	if q.Retry("no-such-id") {
		t.Error("expected Retry of unknown id to fail")
	}
}

func TestProcessPersistsEntries(t *testing.T) {
	persister := &mockPersister{}
	var cleaned []string
	var cleanedMu sync.Mutex

	q := NewUpdateQueue(testConfig(), persister.persist, Callbacks{
		MarkClean: func(eventID, artistID string) {
			cleanedMu.Lock()
			cleaned = append(cleaned, artistID)
			cleanedMu.Unlock()
		},
	})

	q.Enqueue(testUpdate("artist-1", models.PriorityHigh))
	q.Enqueue(testUpdate("artist-2", models.PriorityNormal))

	persisted := q.Process(context.Background())
	if persisted != 2 {
		t.Fatalf("expected 2 persisted, got %d", persisted)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}

	stats := q.Stats()
	if stats.Completed != 2 {
		t.Errorf("expected 2 completed, got %d", stats.Completed)
	}

	cleanedMu.Lock()
	defer cleanedMu.Unlock()
	if len(cleaned) != 2 {
		t.Errorf("expected 2 mark-clean calls, got %d", len(cleaned))
	}
}

func TestProcessMarkCleanWaitsForLastWrite(t *testing.T) {
	persister := &mockPersister{}
	var cleaned int
	var cleanedMu sync.Mutex

	cfg := testConfig()
	cfg.BatchSize = 1

	q := NewUpdateQueue(cfg, persister.persist, Callbacks{
		MarkClean: func(eventID, artistID string) {
			cleanedMu.Lock()
			cleaned++
			cleanedMu.Unlock()
		},
	})

	// Two pending writes for the same artist. The record is only clean
	// once both have persisted.
	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))
	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))

	q.Process(context.Background())
	cleanedMu.Lock()
	afterFirst := cleaned
	cleanedMu.Unlock()
	if afterFirst != 0 {
		t.Errorf("expected no mark-clean while a write is still queued, got %d", afterFirst)
	}

	q.Process(context.Background())
	cleanedMu.Lock()
	afterSecond := cleaned
	cleanedMu.Unlock()
	if afterSecond != 1 {
		t.Errorf("expected exactly one mark-clean after final write, got %d", afterSecond)
	}
}

func TestProcessFailureSetsBackoff(t *testing.T) {
	persister := &mockPersister{
		fail: func(update *models.QueuedUpdate) error {
			return errors.New("store unavailable")
		},
	}

	cfg := testConfig()
	cfg.RetryDelay = time.Hour

	q := NewUpdateQueue(cfg, persister.persist, Callbacks{})
	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))

	if persisted := q.Process(context.Background()); persisted != 0 {
		t.Fatalf("expected 0 persisted, got %d", persisted)
	}

	got := q.AllUpdates()[0]
	if got.RetryCount != 1 {
		t.Errorf("expected RetryCount 1, got %d", got.RetryCount)
	}
	if got.NextRetryAt == nil || !got.NextRetryAt.After(time.Now()) {
		t.Error("expected NextRetryAt in the future")
	}

	// Backoff has not elapsed, so a second drain must skip the entry.
	before := persister.callCount()
	q.Process(context.Background())
	if persister.callCount() != before {
		t.Error("expected entry to be skipped while backing off")
	}
}

func TestProcessTerminalFailure(t *testing.T) {
	persistErr := errors.New("store down")
	persister := &mockPersister{
		fail: func(update *models.QueuedUpdate) error {
			return persistErr
		},
	}

	var terminalMu sync.Mutex
	var terminal []models.QueuedUpdate
	var terminalErrs []error

	cfg := testConfig()
	cfg.RetryDelay = 0 // immediately eligible again

	q := NewUpdateQueue(cfg, persister.persist, Callbacks{
		TerminalFailure: func(update models.QueuedUpdate, err error) {
			terminalMu.Lock()
			terminal = append(terminal, update)
			terminalErrs = append(terminalErrs, err)
			terminalMu.Unlock()
		},
	})

	update := testUpdate("artist-1", models.PriorityNormal)
	update.MaxRetries = 1
	q.Enqueue(update)

	// First attempt fails: retryCount 1, still within budget.
	q.Process(context.Background())
	if q.Len() != 1 {
		t.Fatalf("expected entry retained after first failure, got len %d", q.Len())
	}

	// Second attempt fails: retryCount 2 exceeds maxRetries 1, entry is
	// removed and reported.
	q.Process(context.Background())
	if q.Len() != 0 {
		t.Fatalf("expected entry removed after second failure, got len %d", q.Len())
	}

	terminalMu.Lock()
	defer terminalMu.Unlock()
	if len(terminal) != 1 {
		t.Fatalf("expected 1 terminal failure report, got %d", len(terminal))
	}
	if terminal[0].ArtistID != "artist-1" {
		t.Errorf("expected terminal report for artist-1, got %s", terminal[0].ArtistID)
	}
	if !errors.Is(terminalErrs[0], persistErr) {
		t.Errorf("expected terminal error %v, got %v", persistErr, terminalErrs[0])
	}

	stats := q.Stats()
	if stats.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.Failed)
	}
}

func TestProcessFailureDoesNotBlockBatch(t *testing.T) {
	persister := &mockPersister{
		fail: func(update *models.QueuedUpdate) error {
			if update.ArtistID == "artist-bad" {
				return errors.New("write rejected")
			}
			return nil
		},
	}

	q := NewUpdateQueue(testConfig(), persister.persist, Callbacks{})
	q.Enqueue(testUpdate("artist-bad", models.PriorityHigh))
	q.Enqueue(testUpdate("artist-good", models.PriorityNormal))

	persisted := q.Process(context.Background())
	if persisted != 1 {
		t.Fatalf("expected 1 persisted, got %d", persisted)
	}

	remaining := q.AllUpdates()
	if len(remaining) != 1 || remaining[0].ArtistID != "artist-bad" {
		t.Fatalf("expected only artist-bad retained, got %+v", remaining)
	}
}

func TestProcessBatchSize(t *testing.T) {
	persister := &mockPersister{}

	cfg := testConfig()
	cfg.BatchSize = 2

	q := NewUpdateQueue(cfg, persister.persist, Callbacks{})
	for i := 0; i < 5; i++ {
		q.Enqueue(testUpdate("artist", models.PriorityNormal))
	}

	if persisted := q.Process(context.Background()); persisted != 2 {
		t.Errorf("expected batch of 2, got %d", persisted)
	}
	if q.Len() != 3 {
		t.Errorf("expected 3 remaining, got %d", q.Len())
	}
}

func TestPauseResume(t *testing.T) {
	persister := &mockPersister{}
	q := NewUpdateQueue(testConfig(), persister.persist, Callbacks{})

	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))
	q.Pause()

	if persisted := q.Process(context.Background()); persisted != 0 {
		t.Errorf("expected paused queue to drain nothing, got %d", persisted)
	}
	if q.Len() != 1 {
		t.Error("expected entry retained while paused")
	}

	q.Resume()
	if persisted := q.Process(context.Background()); persisted != 1 {
		t.Errorf("expected 1 persisted after resume, got %d", persisted)
	}
}

func TestStatsProcessingVisibleDuringDrain(t *testing.T) {
	var observed int
	q := NewUpdateQueue(testConfig(), nil, Callbacks{})
	// The persist func runs outside the queue lock, so it may observe
	// the in-flight batch through Stats.
	q.persist = func(ctx context.Context, update *models.QueuedUpdate) error {
		observed = q.Stats().Processing
		return nil
	}

	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))
	q.Enqueue(testUpdate("artist-2", models.PriorityNormal))
	q.Process(context.Background())

	if observed != 2 {
		t.Errorf("expected processing 2 during drain, got %d", observed)
	}
	if got := q.Stats().Processing; got != 0 {
		t.Errorf("expected processing 0 after drain, got %d", got)
	}
}

func TestBackoffFormula(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = time.Second
	cfg.MaxBackoff = 5 * time.Minute

	q := NewUpdateQueue(cfg, (&mockPersister{}).persist, Callbacks{})

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, time.Second},       // base * 2^0
		{2, 2 * time.Second},   // base * 2^1
		{3, 4 * time.Second},   // base * 2^2
		{6, 32 * time.Second},  // base * 2^5
		{10, 5 * time.Minute},  // capped
		{100, 5 * time.Minute}, // capped, no overflow
	}

	for _, tt := range tests {
		if got := q.backoff(tt.retryCount); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestDrainLoopStartStop(t *testing.T) {
	persister := &mockPersister{}
	q := NewUpdateQueue(testConfig(), persister.persist, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !q.IsRunning() {
		t.Fatal("expected queue running after Start")
	}

	// Second Start is a no-op.
	if err := q.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	q.Enqueue(testUpdate("artist-1", models.PriorityHigh))
	q.Kick()

	// Wait for the background loop to drain the entry.
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Len() != 0 {
		t.Fatal("expected drain loop to persist the entry")
	}

	q.Stop()
	if q.IsRunning() {
		t.Error("expected queue stopped after Stop")
	}

	// Stop is idempotent.
	q.Stop()
}

func TestProcessCanceledContext(t *testing.T) {
	persister := &mockPersister{}
	q := NewUpdateQueue(testConfig(), persister.persist, Callbacks{})

	q.Enqueue(testUpdate("artist-1", models.PriorityNormal))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Entry selection happens before the cancellation check, so a
	// canceled context drains nothing and leaves the queue intact.
	q.Process(ctx)
	if q.Len() != 1 {
		t.Errorf("expected entry retained with canceled context, got %d", q.Len())
	}
}

func BenchmarkEnqueue(b *testing.B) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(testUpdate("artist", models.PriorityNormal))
	}
}

func BenchmarkEnqueueProcess(b *testing.B) {
	q := NewUpdateQueue(testConfig(), (&mockPersister{}).persist, Callbacks{})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(testUpdate("artist", models.PriorityNormal))
		q.Process(ctx)
	}
}
