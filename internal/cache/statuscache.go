// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package cache holds the in-memory artist status cache and the manager
// that orchestrates it against the update queue, the durable stores, and
// the change-notification channel.
package cache

import (
	"sync"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/models"
)

// statusEntry wraps a status record with TTL and LRU recency metadata.
// Entries are owned exclusively by the cache; records cross the boundary
// only as clones.
type statusEntry struct {
	key       string
	record    *models.StatusRecord
	prev      *statusEntry
	next      *statusEntry
	expiresAt time.Time
}

// StatusCache is a thread-safe TTL+LRU cache of artist status records
// with dirty-flag tracking and optimistic version checks.
//
//   - O(1) Get, Set, Update, Delete
//   - O(1) LRU eviction when capacity is reached
//   - TTL with lazy expiration on Get plus explicit Cleanup sweeps
//
// The cache never talks to storage or the network; it is synchronously
// testable. The single mutex makes each version-check-and-mutate atomic.
type StatusCache struct {
	mu sync.RWMutex

	// capacity is the maximum number of entries
	capacity int

	// ttl is the time-to-live for entries
	ttl time.Duration

	// items maps artist ids to linked list nodes for O(1) lookup
	items map[string]*statusEntry

	// head and tail are sentinel nodes for the doubly-linked list.
	// head.next is the most recently used, tail.prev is the least.
	head *statusEntry
	tail *statusEntry

	// stats
	hits      int64
	misses    int64
	evictions int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	TotalEntries int     `json:"totalEntries"`
	DirtyEntries int     `json:"dirtyEntries"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	HitRate      float64 `json:"hitRate"`
}

// NewStatusCache creates a status cache with the given capacity and TTL.
func NewStatusCache(capacity int, ttl time.Duration) *StatusCache {
	if capacity <= 0 {
		capacity = 5000 // Default capacity
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute // Default TTL
	}

	c := &StatusCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*statusEntry, capacity),
		head:     &statusEntry{},
		tail:     &statusEntry{},
	}

	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves the record for an artist.
// Found entries are moved to the front (most recently used); the TTL is
// not refreshed. Expired entries count as misses and are removed.
func (c *StatusCache) Get(artistID string) (*models.StatusRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[artistID]; exists {
		if time.Now().After(entry.expiresAt) {
			c.removeEntry(entry)
			c.misses++
			return nil, false
		}

		c.moveToFront(entry)
		c.hits++
		return entry.record.Clone(), true
	}

	c.misses++
	return nil, false
}

// Set stores a record unconditionally, resetting TTL and recency.
// Used for authoritative seeding: cold warm-up and conflict-resolved
// remote records. The input is cloned; the caller keeps ownership of its
// copy.
func (c *StatusCache) Set(artistID string, record *models.StatusRecord) {
	if record == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if entry, exists := c.items[artistID]; exists {
		entry.record = record.Clone()
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	c.insertLocked(artistID, record.Clone(), expiresAt)
}

// Update applies a partial update under the optimistic-concurrency check.
//
// The update's version must be at least the stored version; a strictly
// lower version is rejected with no mutation, so out-of-order deliveries
// can never regress state. On acceptance the fields are merged, the
// record's version and timestamp advance with the dirty flag set, and a
// clone of the accepted record is returned.
//
// Returns false for an unknown artist: first observations are seeded by
// the manager through Set, not invented here.
func (c *StatusCache) Update(artistID string, update *models.StatusUpdate) (*models.StatusRecord, bool) {
	if update == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[artistID]
	if !exists {
		return nil, false
	}

	if update.Version < entry.record.Version {
		return nil, false
	}

	update.ApplyTo(entry.record)
	entry.record.Version = update.Version + 1
	entry.record.Timestamp = time.Now().UTC()
	entry.record.Dirty = true
	entry.expiresAt = time.Now().Add(c.ttl)
	c.moveToFront(entry)

	return entry.record.Clone(), true
}

// MarkDirty flags an artist's record as not yet durably persisted.
func (c *StatusCache) MarkDirty(artistID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[artistID]; exists {
		entry.record.Dirty = true
	}
}

// MarkClean clears the dirty flag after durable persistence succeeds.
func (c *StatusCache) MarkClean(artistID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[artistID]; exists {
		entry.record.Dirty = false
	}
}

// Delete removes an artist's entry.
// Returns true if the entry was found and removed.
func (c *StatusCache) Delete(artistID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[artistID]; exists {
		c.removeEntry(entry)
		return true
	}
	return false
}

// Clear removes all entries.
func (c *StatusCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*statusEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Cleanup removes exactly the entries whose TTL has passed.
// Returns the number of entries removed. The manager drives this on its
// janitor timer; the cache itself never schedules anything.
func (c *StatusCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	// Walk from tail (oldest recency) to head
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			c.removeEntry(entry)
			removed++
		}
		entry = prev
	}

	return removed
}

// DirtyEntries returns clones of all records awaiting durable persistence.
func (c *StatusCache) DirtyEntries() []*models.StatusRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.StatusRecord
	for _, entry := range c.items {
		if entry.record.Dirty {
			out = append(out, entry.record.Clone())
		}
	}
	return out
}

// Records returns clones of every cached record, optionally filtered by
// event id ("" matches all).
func (c *StatusCache) Records(eventID string) []*models.StatusRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.StatusRecord
	for _, entry := range c.items {
		if eventID == "" || entry.record.EventID == eventID {
			out = append(out, entry.record.Clone())
		}
	}
	return out
}

// Len returns the current number of entries.
func (c *StatusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns hit/miss/eviction counters and entry counts.
func (c *StatusCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dirty := 0
	for _, entry := range c.items {
		if entry.record.Dirty {
			dirty++
		}
	}

	s := Stats{
		TotalEntries: len(c.items),
		DirtyEntries: dirty,
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Internal methods (must be called with lock held)

// insertLocked adds a fresh entry, evicting LRU entries first so the
// cache never exceeds capacity after the insert. A legitimate write is
// never refused.
func (c *StatusCache) insertLocked(key string, record *models.StatusRecord, expiresAt time.Time) {
	for len(c.items) >= c.capacity {
		c.evictOldest()
	}

	entry := &statusEntry{
		key:       key,
		record:    record,
		expiresAt: expiresAt,
	}
	c.addToFront(entry)
	c.items[key] = entry
}

// addToFront adds an entry to the front of the list (most recently used).
func (c *StatusCache) addToFront(entry *statusEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

// moveToFront moves an existing entry to the front of the list.
func (c *StatusCache) moveToFront(entry *statusEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	c.addToFront(entry)
}

// removeEntry removes an entry from both the list and the map.
func (c *StatusCache) removeEntry(entry *statusEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	delete(c.items, entry.key)
}

// evictOldest removes the least recently used entry.
func (c *StatusCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return // List is empty
	}
	c.removeEntry(oldest)
	c.evictions++
}
