// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package storage

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

// RecordStore layers the canonical JSON schema over a raw Store. All
// persisted values are JSON documents so the same bytes round-trip
// through Badger locally and Cloud Storage remotely.
type RecordStore struct {
	store Store
}

// NewRecordStore wraps a raw key-value store.
func NewRecordStore(store Store) *RecordStore {
	return &RecordStore{store: store}
}

// Raw exposes the underlying store for health checks and recovery.
func (r *RecordStore) Raw() Store {
	return r.store
}

// Close closes the underlying store.
func (r *RecordStore) Close() error {
	return r.store.Close()
}

// Healthy probes the underlying store.
func (r *RecordStore) Healthy(ctx context.Context) error {
	return r.store.Healthy(ctx)
}

// PutRecord persists one status record.
func (r *RecordStore) PutRecord(ctx context.Context, record *models.StatusRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status record %s: %w", record.Key(), err)
	}
	return r.store.Set(ctx, StatusKey(record.EventID, record.ArtistID), data)
}

// GetRecord loads one status record. Returns ErrKeyNotFound when the
// artist has no persisted record.
func (r *RecordStore) GetRecord(ctx context.Context, eventID, artistID string) (*models.StatusRecord, error) {
	data, err := r.store.Get(ctx, StatusKey(eventID, artistID))
	if err != nil {
		return nil, err
	}
	var record models.StatusRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status record %s/%s: %w", eventID, artistID, err)
	}
	return &record, nil
}

// DeleteRecord removes one status record.
func (r *RecordStore) DeleteRecord(ctx context.Context, eventID, artistID string) error {
	return r.store.Delete(ctx, StatusKey(eventID, artistID))
}

// ListRecords loads every status record for an event. Records that no
// longer parse are logged and skipped rather than failing the whole
// listing; a corrupt entry must not block a sync run.
func (r *RecordStore) ListRecords(ctx context.Context, eventID string) ([]*models.StatusRecord, error) {
	kvs, err := r.store.List(ctx, StatusPrefix(eventID))
	if err != nil {
		return nil, err
	}

	records := make([]*models.StatusRecord, 0, len(kvs))
	for _, kv := range kvs {
		var record models.StatusRecord
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			logging.Warn().
				Err(err).
				Str("key", kv.Key).
				Msg("skipping corrupt status record")
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// PutCounter persists one named counter for an event.
func (r *RecordStore) PutCounter(ctx context.Context, eventID string, counter *models.Counter) error {
	if counter == nil {
		return fmt.Errorf("counter is nil")
	}
	data, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("failed to marshal counter %s: %w", counter.Name, err)
	}
	return r.store.Set(ctx, CounterKey(eventID, counter.Name), data)
}

// GetCounter loads one named counter.
func (r *RecordStore) GetCounter(ctx context.Context, eventID, name string) (*models.Counter, error) {
	data, err := r.store.Get(ctx, CounterKey(eventID, name))
	if err != nil {
		return nil, err
	}
	var counter models.Counter
	if err := json.Unmarshal(data, &counter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counter %s/%s: %w", eventID, name, err)
	}
	return &counter, nil
}

// ListCounters loads every counter for an event.
func (r *RecordStore) ListCounters(ctx context.Context, eventID string) ([]*models.Counter, error) {
	kvs, err := r.store.List(ctx, CounterPrefix(eventID))
	if err != nil {
		return nil, err
	}

	counters := make([]*models.Counter, 0, len(kvs))
	for _, kv := range kvs {
		var counter models.Counter
		if err := json.Unmarshal(kv.Value, &counter); err != nil {
			logging.Warn().
				Err(err).
				Str("key", kv.Key).
				Msg("skipping corrupt counter")
			continue
		}
		counters = append(counters, &counter)
	}
	return counters, nil
}

// PutSyncMetadata persists the last-run summary for an event.
func (r *RecordStore) PutSyncMetadata(ctx context.Context, eventID string, meta *models.SyncMetadata) error {
	if meta == nil {
		return fmt.Errorf("sync metadata is nil")
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal sync metadata for %s: %w", eventID, err)
	}
	return r.store.Set(ctx, SyncMetaKey(eventID), data)
}

// GetSyncMetadata loads the last-run summary for an event.
func (r *RecordStore) GetSyncMetadata(ctx context.Context, eventID string) (*models.SyncMetadata, error) {
	data, err := r.store.Get(ctx, SyncMetaKey(eventID))
	if err != nil {
		return nil, err
	}
	var meta models.SyncMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync metadata for %s: %w", eventID, err)
	}
	return &meta, nil
}
