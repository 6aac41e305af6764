// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package storage provides the durable key/value stores the status engine
// persists into: a local BadgerDB store, a Google Cloud Storage store for
// the cloud side, a circuit-breaker wrapper, and typed record helpers
// layered on the raw byte contract.
package storage

import (
	"context"
	"errors"
)

// Store errors. Implementations map their backend-specific failures onto
// these so callers can branch without knowing the backend.
var (
	// ErrKeyNotFound is returned when the key does not exist.
	ErrKeyNotFound = errors.New("storage: key not found")

	// ErrStoreUnavailable is returned when the backend cannot be reached
	// or the protecting circuit breaker is open.
	ErrStoreUnavailable = errors.New("storage: store unavailable")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("storage: store closed")
)

// KV is one stored key/value pair returned by List.
type KV struct {
	Key   string
	Value []byte
}

// Store is the durable key/value contract shared by the local and cloud
// backends. Values are opaque bytes; the records layer handles JSON.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all pairs whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]KV, error)

	// Healthy verifies the backend is reachable.
	Healthy(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Key prefixes for the record namespaces.
const (
	statusKeyPrefix   = "status:"
	counterKeyPrefix  = "counter:"
	syncMetaKeyPrefix = "syncmeta:"
)

// StatusKey builds the store key for an artist's status record.
func StatusKey(eventID, artistID string) string {
	return statusKeyPrefix + eventID + ":" + artistID
}

// StatusPrefix builds the listing prefix for all records of an event.
func StatusPrefix(eventID string) string {
	return statusKeyPrefix + eventID + ":"
}

// CounterKey builds the store key for a named event counter.
func CounterKey(eventID, name string) string {
	return counterKeyPrefix + eventID + ":" + name
}

// CounterPrefix builds the listing prefix for all counters of an event.
func CounterPrefix(eventID string) string {
	return counterKeyPrefix + eventID + ":"
}

// SyncMetaKey builds the store key for an event's sync metadata.
func SyncMetaKey(eventID string) string {
	return syncMetaKeyPrefix + eventID
}
