// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/queue"
	"github.com/HtooAg/FAME-sub001/internal/storage"
)

type fakePublisher struct {
	mu            sync.Mutex
	notifications []*models.StatusNotification
	err           error
}

func (p *fakePublisher) PublishStatus(ctx context.Context, n *models.StatusNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.notifications = append(p.notifications, n)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.notifications)
}

type fakeSubscriber struct {
	mu           sync.Mutex
	handler      func(context.Context, *models.StatusNotification) error
	eventID      string
	unsubscribed bool
	err          error
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, eventID string, handler func(context.Context, *models.StatusNotification) error) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.handler = handler
	s.eventID = eventID
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribed = true
	}, nil
}

func (s *fakeSubscriber) deliver(t *testing.T, n *models.StatusNotification) error {
	t.Helper()
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		t.Fatal("no subscription handler captured")
	}
	return handler(context.Background(), n)
}

type fakeJournal struct {
	mu      sync.Mutex
	singles []*models.StatusRecord
	batches [][]*models.StatusRecord
}

func (j *fakeJournal) RecordTransition(ctx context.Context, record *models.StatusRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.singles = append(j.singles, record)
	return nil
}

func (j *fakeJournal) RecordBatch(ctx context.Context, records []*models.StatusRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.batches = append(j.batches, records)
	return nil
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	records []*models.StatusRecord
}

func (b *fakeBroadcaster) BroadcastStatus(record *models.StatusRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

type managerFixture struct {
	manager     *Manager
	mem         *storage.MemStore
	store       *storage.RecordStore
	publisher   *fakePublisher
	subscriber  *fakeSubscriber
	journal     *fakeJournal
	broadcaster *fakeBroadcaster
}

func testManagerConfig() ManagerConfig {
	config := DefaultManagerConfig()
	config.InstanceID = "instance-under-test"
	config.CleanupInterval = time.Hour
	config.Queue = queue.Config{
		RetryDelay:    time.Millisecond,
		MaxBackoff:    time.Second,
		MaxRetries:    3,
		BatchSize:     32,
		DrainInterval: 10 * time.Millisecond,
	}
	return config
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	mem := storage.NewMemStore()
	store := storage.NewRecordStore(mem)
	publisher := &fakePublisher{}
	subscriber := &fakeSubscriber{}
	journal := &fakeJournal{}
	broadcaster := &fakeBroadcaster{}

	manager := NewManager(testManagerConfig(), Deps{
		Store:       store,
		Publisher:   publisher,
		Subscriber:  subscriber,
		Journal:     journal,
		Broadcaster: broadcaster,
	})
	t.Cleanup(func() {
		_ = manager.Destroy(context.Background())
	})

	return &managerFixture{
		manager:     manager,
		mem:         mem,
		store:       store,
		publisher:   publisher,
		subscriber:  subscriber,
		journal:     journal,
		broadcaster: broadcaster,
	}
}

func (f *managerFixture) initialize(t *testing.T) {
	t.Helper()
	if err := f.manager.Initialize(context.Background(), "event-1"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func statusPtr(s models.PerformanceStatus) *models.PerformanceStatus {
	return &s
}

func TestManagerLifecycle(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if f.manager.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", f.manager.State())
	}
	if _, found := f.manager.GetArtistStatus(ctx, "artist-1"); found {
		t.Error("expected miss before initialization")
	}

	f.initialize(t)
	if f.manager.State() != StateReady {
		t.Fatalf("expected ready, got %s", f.manager.State())
	}
	if f.manager.EventID() != "event-1" {
		t.Errorf("expected event-1, got %s", f.manager.EventID())
	}

	// Idempotent for the same event.
	if err := f.manager.Initialize(ctx, "event-1"); err != nil {
		t.Errorf("re-initialize for active event failed: %v", err)
	}
	// A different event needs Destroy first.
	if err := f.manager.Initialize(ctx, "event-2"); !errors.Is(err, ErrEventActive) {
		t.Errorf("expected ErrEventActive, got %v", err)
	}

	if err := f.manager.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if f.manager.State() != StateDestroyed {
		t.Fatalf("expected destroyed, got %s", f.manager.State())
	}
	if err := f.manager.Destroy(ctx); err != nil {
		t.Errorf("second Destroy failed: %v", err)
	}

	// Destroyed managers come back up; this is the event-switch path.
	if err := f.manager.Initialize(ctx, "event-2"); err != nil {
		t.Fatalf("re-initialize after destroy failed: %v", err)
	}
	if f.manager.EventID() != "event-2" {
		t.Errorf("expected event-2, got %s", f.manager.EventID())
	}
}

func TestManagerWarmUp(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	for _, artist := range []string{"artist-1", "artist-2"} {
		if err := f.store.PutRecord(ctx, testRecord(artist, 4)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	f.initialize(t)

	// The store goes dark; warmed records must still be served.
	f.mem.SetError(errors.New("store down"))

	for _, artist := range []string{"artist-1", "artist-2"} {
		record, found := f.manager.GetArtistStatus(ctx, artist)
		if !found {
			t.Fatalf("expected %s warmed into cache", artist)
		}
		if record.Version != 4 {
			t.Errorf("expected version 4, got %d", record.Version)
		}
		if record.Dirty {
			t.Error("warmed record must not be dirty")
		}
	}
}

func TestManagerInitializeFailsWhenStoreDown(t *testing.T) {
	f := newManagerFixture(t)

	f.mem.SetError(errors.New("store down"))
	err := f.manager.Initialize(context.Background(), "event-1")
	if err == nil {
		t.Fatal("expected warm-up failure")
	}
	if f.manager.State() != StateUninitialized {
		t.Errorf("expected rollback to uninitialized, got %s", f.manager.State())
	}

	// Retry succeeds once the store recovers.
	f.mem.SetError(nil)
	if err := f.manager.Initialize(context.Background(), "event-1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestManagerReadThrough(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	if err := f.store.PutRecord(ctx, testRecord("artist-1", 7)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	record, found := f.manager.GetArtistStatus(ctx, "artist-1")
	if !found {
		t.Fatal("expected read-through hit")
	}
	if record.Version != 7 {
		t.Errorf("expected version 7, got %d", record.Version)
	}

	// Second read is served from cache even with the store down.
	f.mem.SetError(errors.New("store down"))
	if _, found := f.manager.GetArtistStatus(ctx, "artist-1"); !found {
		t.Error("expected cached hit after read-through seed")
	}

	f.mem.SetError(nil)
	if _, found := f.manager.GetArtistStatus(ctx, "nobody"); found {
		t.Error("expected miss for unknown artist")
	}
}

func TestManagerUpdateNewArtist(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	record, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusCurrentlyOnStage),
		Version:           0,
	})
	if err != nil {
		t.Fatalf("UpdateArtistStatus failed: %v", err)
	}
	if record.PerformanceStatus != models.StatusCurrentlyOnStage {
		t.Errorf("expected status applied, got %s", record.PerformanceStatus)
	}
	if record.Version != 1 {
		t.Errorf("expected version 1 for first write, got %d", record.Version)
	}
	if !record.Dirty {
		t.Error("accepted update must start dirty")
	}

	// The write-behind drain persists it and clears the dirty flag.
	waitFor(t, "durable persistence", func() bool {
		stored, err := f.store.GetRecord(ctx, "event-1", "artist-1")
		return err == nil && stored.Version == 1
	})
	waitFor(t, "dirty flag cleared", func() bool {
		current, found := f.manager.GetArtistStatus(ctx, "artist-1")
		return found && !current.Dirty
	})

	if f.publisher.count() != 1 {
		t.Errorf("expected 1 notification published, got %d", f.publisher.count())
	}
	if f.broadcaster.count() != 1 {
		t.Errorf("expected 1 broadcast, got %d", f.broadcaster.count())
	}
	f.journal.mu.Lock()
	singles := len(f.journal.singles)
	f.journal.mu.Unlock()
	if singles != 1 {
		t.Errorf("expected 1 journaled transition, got %d", singles)
	}
}

func TestManagerUpdateVersionConflict(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusNextOnDeck),
		Version:           3,
	}); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// Cached version is now 4; a writer still at 2 is stale.
	_, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusCompleted),
		Version:           2,
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	record, _ := f.manager.GetArtistStatus(ctx, "artist-1")
	if record.PerformanceStatus != models.StatusNextOnDeck {
		t.Errorf("rejected write mutated the record: %s", record.PerformanceStatus)
	}
}

func TestManagerUpdateValidation(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{Version: 1}); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady before initialization, got %v", err)
	}

	f.initialize(t)

	if _, err := f.manager.UpdateArtistStatus(ctx, "", &models.StatusUpdate{Version: 1}); err == nil {
		t.Error("expected error for empty artist id")
	}
	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", nil); err == nil {
		t.Error("expected error for nil update")
	}

	var verr *models.ValidationError
	_, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.PerformanceStatus("breakdancing")),
		Version:           1,
	})
	if !errors.As(err, &verr) {
		t.Errorf("expected a validation error for unknown status, got %v", err)
	}
}

func TestManagerBatchUpdate(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	// Make artist-3 current version 4 so a Version-1 write is stale.
	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-3", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusNextOnDeck),
		Version:           3,
	}); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}

	results := f.manager.BatchUpdateStatuses(ctx, []models.BatchUpdateItem{
		{ArtistID: "artist-1", Update: models.StatusUpdate{PerformanceStatus: statusPtr(models.StatusNextOnStage), Version: 0}},
		{ArtistID: "artist-2", Update: models.StatusUpdate{PerformanceStatus: statusPtr(models.StatusCompleted), Version: 0}},
		{ArtistID: "artist-3", Update: models.StatusUpdate{PerformanceStatus: statusPtr(models.StatusCompleted), Version: 1}},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || !results[1].Success {
		t.Errorf("expected first two accepted: %+v", results[:2])
	}
	if results[2].Success {
		t.Error("expected stale item rejected")
	}
	if results[2].Error == "" {
		t.Error("expected rejection reason")
	}

	// Accepted items share a single journal batch; the setup update was
	// the only single write.
	f.journal.mu.Lock()
	singles, batches := len(f.journal.singles), len(f.journal.batches)
	var batchSize int
	if batches > 0 {
		batchSize = len(f.journal.batches[0])
	}
	f.journal.mu.Unlock()
	if singles != 1 {
		t.Errorf("expected 1 single journal write, got %d", singles)
	}
	if batches != 1 || batchSize != 2 {
		t.Errorf("expected one batch of 2, got %d batches (first size %d)", batches, batchSize)
	}

	waitFor(t, "batch persistence", func() bool {
		_, err1 := f.store.GetRecord(ctx, "event-1", "artist-1")
		_, err2 := f.store.GetRecord(ctx, "event-1", "artist-2")
		return err1 == nil && err2 == nil
	})
}

func TestManagerHandleNotification(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusNextOnDeck),
		Version:           0,
	}); err != nil {
		t.Fatalf("local update failed: %v", err)
	}
	broadcastsBefore := f.broadcaster.count()

	// A remote write two minutes newer wins on timestamp.
	remote := testRecord("artist-1", 1)
	remote.PerformanceStatus = models.StatusCurrentlyOnStage
	remote.Timestamp = time.Now().UTC().Add(2 * time.Minute)
	if err := f.subscriber.deliver(t, &models.StatusNotification{
		NotificationID: "n-1",
		EventID:        "event-1",
		Record:         *remote,
		Origin:         "other-instance",
		PublishedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	record, _ := f.manager.GetArtistStatus(ctx, "artist-1")
	if record.PerformanceStatus != models.StatusCurrentlyOnStage {
		t.Errorf("expected remote winner applied, got %s", record.PerformanceStatus)
	}
	if f.broadcaster.count() != broadcastsBefore+1 {
		t.Errorf("expected applied remote update broadcast")
	}

	// A stale remote write loses and changes nothing.
	stale := testRecord("artist-1", 1)
	stale.PerformanceStatus = models.StatusNotStarted
	stale.Timestamp = time.Now().UTC().Add(-10 * time.Minute)
	if err := f.subscriber.deliver(t, &models.StatusNotification{
		NotificationID: "n-2",
		EventID:        "event-1",
		Record:         *stale,
		Origin:         "other-instance",
		PublishedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	record, _ = f.manager.GetArtistStatus(ctx, "artist-1")
	if record.PerformanceStatus != models.StatusCurrentlyOnStage {
		t.Errorf("stale remote write applied: %s", record.PerformanceStatus)
	}

	// Unknown artists adopt the remote record.
	newcomer := testRecord("artist-9", 2)
	if err := f.subscriber.deliver(t, &models.StatusNotification{
		NotificationID: "n-3",
		EventID:        "event-1",
		Record:         *newcomer,
		Origin:         "other-instance",
		PublishedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if _, found := f.manager.GetArtistStatus(ctx, "artist-9"); !found {
		t.Error("expected remote record adopted for unknown artist")
	}
}

func TestManagerSkipsOwnAndForeignNotifications(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	record := testRecord("artist-1", 5)
	record.PerformanceStatus = models.StatusCompleted

	// Own echo.
	if err := f.subscriber.deliver(t, &models.StatusNotification{
		NotificationID: "n-1",
		EventID:        "event-1",
		Record:         *record,
		Origin:         f.manager.InstanceID(),
		PublishedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	// Foreign event.
	foreign := *record
	foreign.EventID = "event-other"
	if err := f.subscriber.deliver(t, &models.StatusNotification{
		NotificationID: "n-2",
		EventID:        "event-other",
		Record:         foreign,
		Origin:         "other-instance",
		PublishedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	if _, found := f.manager.GetArtistStatus(ctx, "artist-1"); found {
		t.Error("skipped notifications must not seed the cache")
	}
}

func TestManagerHandleNotificationNotReady(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.HandleNotification(context.Background(), &models.StatusNotification{
		NotificationID: "n-1",
		EventID:        "event-1",
		Record:         *testRecord("artist-1", 1),
		Origin:         "other-instance",
	})
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady for redelivery, got %v", err)
	}
}

func TestManagerFullSyncFromStorage(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	for _, artist := range []string{"artist-1", "artist-2", "artist-3"} {
		if err := f.store.PutRecord(ctx, testRecord(artist, 9)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	// A cache-only artist that the store has never seen.
	f.manager.cache.Set("ghost", testRecord("ghost", 1))

	count, err := f.manager.FullSyncFromStorage(ctx, "event-1")
	if err != nil {
		t.Fatalf("FullSyncFromStorage failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 records reloaded, got %d", count)
	}

	record, found := f.manager.GetArtistStatus(ctx, "artist-1")
	if !found || record.Version != 9 {
		t.Errorf("expected reloaded record at version 9, got %+v", record)
	}
	if _, found := f.manager.GetArtistStatus(ctx, "ghost"); found {
		t.Error("expected cache-only artist cleared by full sync")
	}

	if _, err := f.manager.FullSyncFromStorage(ctx, "event-other"); !errors.Is(err, ErrEventActive) {
		t.Errorf("expected ErrEventActive for foreign event, got %v", err)
	}
}

func TestManagerDestroyFlushesDirty(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	// Hold the queue so the write stays dirty in cache.
	f.manager.Queue().Pause()

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusCompleted),
		Version:           0,
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(f.manager.DirtyRecords()) != 1 {
		t.Fatalf("expected 1 dirty record, got %d", len(f.manager.DirtyRecords()))
	}

	if err := f.manager.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	stored, err := f.store.GetRecord(ctx, "event-1", "artist-1")
	if err != nil {
		t.Fatalf("dirty record not flushed: %v", err)
	}
	if stored.PerformanceStatus != models.StatusCompleted {
		t.Errorf("flushed record corrupted: %s", stored.PerformanceStatus)
	}
	if f.manager.Queue().Len() != 0 {
		t.Errorf("expected queue cleared, got %d entries", f.manager.Queue().Len())
	}
}

func TestManagerReconcileArtist(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusNextOnDeck),
		Version:           0,
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// The store holds a decisively newer copy (another instance synced
	// it there).
	newer := testRecord("artist-1", 1)
	newer.PerformanceStatus = models.StatusCurrentlyOnStage
	newer.Timestamp = time.Now().UTC().Add(2 * time.Minute)
	if err := f.store.PutRecord(ctx, newer); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	changed, err := f.manager.ReconcileArtist(ctx, "artist-1")
	if err != nil {
		t.Fatalf("ReconcileArtist failed: %v", err)
	}
	if !changed {
		t.Error("expected cache updated from store")
	}
	record, _ := f.manager.GetArtistStatus(ctx, "artist-1")
	if record.PerformanceStatus != models.StatusCurrentlyOnStage {
		t.Errorf("expected store winner applied, got %s", record.PerformanceStatus)
	}

	// No durable copy: nothing to reconcile.
	changed, err = f.manager.ReconcileArtist(ctx, "nobody")
	if err != nil || changed {
		t.Errorf("expected no-op for unknown artist, got changed=%v err=%v", changed, err)
	}
}

func TestManagerTerminalFailureRequeue(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.initialize(t)

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusNextOnDeck),
		Version:           0,
	}); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}
	waitFor(t, "setup persistence", func() bool {
		_, err := f.store.GetRecord(ctx, "event-1", "artist-1")
		return err == nil
	})

	// Every persist fails until the store comes back.
	f.mem.SetError(errors.New("store down"))

	if _, err := f.manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusCurrentlyOnStage),
		Version:           1,
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	waitFor(t, "terminal failure recorded", func() bool {
		return len(f.manager.TerminalFailures()) == 1
	})
	if f.manager.Queue().Len() != 0 {
		t.Errorf("exhausted update still queued")
	}

	f.mem.SetError(nil)
	if requeued := f.manager.RequeueTerminalFailures(); requeued != 1 {
		t.Fatalf("expected 1 requeued, got %d", requeued)
	}
	if len(f.manager.TerminalFailures()) != 0 {
		t.Error("expected terminal failure list cleared")
	}

	waitFor(t, "requeued update persisted", func() bool {
		stored, err := f.store.GetRecord(ctx, "event-1", "artist-1")
		return err == nil && stored.PerformanceStatus == models.StatusCurrentlyOnStage
	})
}

func TestManagerPersistsEvictedRecord(t *testing.T) {
	config := testManagerConfig()
	config.CacheCapacity = 1

	mem := storage.NewMemStore()
	store := storage.NewRecordStore(mem)
	manager := NewManager(config, Deps{Store: store})
	t.Cleanup(func() {
		_ = manager.Destroy(context.Background())
	})

	ctx := context.Background()
	if err := manager.Initialize(ctx, "event-1"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	manager.Queue().Pause()

	if _, err := manager.UpdateArtistStatus(ctx, "artist-1", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusNextOnStage),
		Version:           0,
	}); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	// Capacity 1: this evicts artist-1 while its write is still queued.
	if _, err := manager.UpdateArtistStatus(ctx, "artist-2", &models.StatusUpdate{
		PerformanceStatus: statusPtr(models.StatusCurrentlyOnStage),
		Version:           0,
	}); err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	manager.Queue().Resume()

	// The evicted artist's write is rebuilt from the queued update.
	waitFor(t, "evicted record persisted", func() bool {
		stored, err := store.GetRecord(ctx, "event-1", "artist-1")
		return err == nil && stored.PerformanceStatus == models.StatusNextOnStage && stored.Version == 1
	})
	waitFor(t, "cached record persisted", func() bool {
		stored, err := store.GetRecord(ctx, "event-1", "artist-2")
		return err == nil && stored.PerformanceStatus == models.StatusCurrentlyOnStage
	})
}

func TestManagerSubscriptionLifecycle(t *testing.T) {
	f := newManagerFixture(t)
	f.initialize(t)

	f.subscriber.mu.Lock()
	subscribedEvent := f.subscriber.eventID
	hasHandler := f.subscriber.handler != nil
	f.subscriber.mu.Unlock()
	if subscribedEvent != "event-1" || !hasHandler {
		t.Fatalf("expected subscription for event-1 with handler, got %q", subscribedEvent)
	}

	if err := f.manager.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	f.subscriber.mu.Lock()
	unsubscribed := f.subscriber.unsubscribed
	f.subscriber.mu.Unlock()
	if !unsubscribed {
		t.Error("expected unsubscribe on destroy")
	}
}

func TestManagerInitializeSurvivesSubscribeFailure(t *testing.T) {
	mem := storage.NewMemStore()
	manager := NewManager(testManagerConfig(), Deps{
		Store:      storage.NewRecordStore(mem),
		Subscriber: &fakeSubscriber{err: errors.New("broker down")},
	})
	t.Cleanup(func() {
		_ = manager.Destroy(context.Background())
	})

	if err := manager.Initialize(context.Background(), "event-1"); err != nil {
		t.Fatalf("expected initialization despite broker outage, got %v", err)
	}
	if manager.State() != StateReady {
		t.Errorf("expected ready, got %s", manager.State())
	}
}
