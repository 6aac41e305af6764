// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store. It backs ephemeral dev runs where no
// Badger path or GCS bucket is configured, and doubles as the test
// double for everything that talks to storage. SetError injects a
// backend failure so callers can exercise their unreachable paths.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
	err    error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// SetError forces every subsequent operation to fail with err until
// cleared with SetError(nil).
func (s *MemStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Len reports the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Get returns a copy of the stored value.
func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.guardLocked(); err != nil {
		return nil, err
	}
	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value.
func (s *MemStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(); err != nil {
		return err
	}
	delete(s.data, key)
	return nil
}

// List returns all pairs under prefix in key order, matching the
// iteration order of the persistent backends.
func (s *MemStore) List(ctx context.Context, prefix string) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.guardLocked(); err != nil {
		return nil, err
	}

	var results []KV
	for key, value := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out := make([]byte, len(value))
		copy(out, value)
		results = append(results, KV{Key: key, Value: out})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// Healthy reports the injected error, if any.
func (s *MemStore) Healthy(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guardLocked()
}

// Close marks the store closed. Idempotent.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemStore) guardLocked() error {
	if s.closed {
		return ErrStoreClosed
	}
	return s.err
}
