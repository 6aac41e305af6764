// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/conflict"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/storage"
)

// syncStatuses reconciles status records and returns the union size.
func (s *Service) syncStatuses(ctx context.Context, direction models.SyncDirection, result *models.SyncResult) int {
	eventID := s.config.EventID

	locals, err := s.local.ListRecords(ctx, eventID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list local records: %v", err))
		return 0
	}
	remotes, err := s.remote.ListRecords(ctx, eventID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list remote records: %v", err))
		return 0
	}

	localIdx := make(map[string]*models.StatusRecord, len(locals))
	for _, record := range locals {
		localIdx[record.ArtistID] = record
	}
	remoteIdx := make(map[string]*models.StatusRecord, len(remotes))
	for _, record := range remotes {
		remoteIdx[record.ArtistID] = record
	}

	for _, artistID := range unionKeys(localIdx, remoteIdx) {
		local, hasLocal := localIdx[artistID]
		remote, hasRemote := remoteIdx[artistID]

		switch {
		case hasLocal && !hasRemote:
			if !writesRemote(direction) {
				continue
			}
			if err := s.remote.PutRecord(ctx, local); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("copy %s to remote: %v", artistID, err))
				continue
			}
			result.ItemsSynced++

		case !hasLocal && hasRemote:
			if !writesLocal(direction) {
				continue
			}
			if err := s.local.PutRecord(ctx, remote); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("copy %s to local: %v", artistID, err))
				continue
			}
			result.ItemsSynced++

		default:
			s.reconcilePair(ctx, direction, local, remote, result)
		}
	}

	return len(localIdx) + len(remoteIdx) - intersectionSize(localIdx, remoteIdx)
}

// reconcilePair resolves one artist present on both sides and applies
// the winner to the losing store.
func (s *Service) reconcilePair(ctx context.Context, direction models.SyncDirection, local, remote *models.StatusRecord, result *models.SyncResult) {
	res := s.resolver.Resolve(local, remote)

	diverged := local.Version != remote.Version ||
		!local.Timestamp.Equal(remote.Timestamp) ||
		len(res.Conflicts) > 0
	if !diverged {
		return
	}

	if s.resolver.Significant(local, remote) {
		result.Conflicts = append(result.Conflicts, models.SyncConflict{
			ItemID:          local.ArtistID,
			ItemType:        models.ItemTypeStatus,
			LocalVersion:    local.Version,
			RemoteVersion:   remote.Version,
			ConflictReason:  res.Reason,
			Resolution:      res.Resolution(),
			ResolvedVersion: res.Resolved.Version,
			Fields:          res.Conflicts,
		})
		metrics.RecordConflict(string(res.Strategy), string(res.Winner))
	}

	var err error
	switch res.Winner {
	case conflict.WinnerLocal:
		if !writesRemote(direction) {
			return
		}
		err = s.remote.PutRecord(ctx, res.Resolved)
	case conflict.WinnerRemote:
		if !writesLocal(direction) {
			return
		}
		err = s.local.PutRecord(ctx, res.Resolved)
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("apply winner for %s: %v", local.ArtistID, err))
		return
	}
	result.ItemsSynced++
}

// syncCounters merges counters by maximum and returns the union size.
func (s *Service) syncCounters(ctx context.Context, direction models.SyncDirection, result *models.SyncResult) int {
	eventID := s.config.EventID

	locals, err := s.local.ListCounters(ctx, eventID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list local counters: %v", err))
		return 0
	}
	remotes, err := s.remote.ListCounters(ctx, eventID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list remote counters: %v", err))
		return 0
	}

	localIdx := make(map[string]*models.Counter, len(locals))
	for _, counter := range locals {
		localIdx[counter.Name] = counter
	}
	remoteIdx := make(map[string]*models.Counter, len(remotes))
	for _, counter := range remotes {
		remoteIdx[counter.Name] = counter
	}

	for _, name := range unionKeys(localIdx, remoteIdx) {
		local, hasLocal := localIdx[name]
		remote, hasRemote := remoteIdx[name]

		// The higher value is always safe to adopt: counters only ever
		// allocate forward.
		merged := &models.Counter{Name: name, UpdatedAt: time.Now().UTC()}
		switch {
		case hasLocal && hasRemote:
			if local.Value >= remote.Value {
				merged.Value = local.Value
				merged.UpdatedAt = local.UpdatedAt
			} else {
				merged.Value = remote.Value
				merged.UpdatedAt = remote.UpdatedAt
			}
		case hasLocal:
			merged.Value = local.Value
			merged.UpdatedAt = local.UpdatedAt
		default:
			merged.Value = remote.Value
			merged.UpdatedAt = remote.UpdatedAt
		}

		wrote := false
		if writesLocal(direction) && (!hasLocal || local.Value < merged.Value) {
			if err := s.local.PutCounter(ctx, eventID, merged); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("write local counter %s: %v", name, err))
			} else {
				wrote = true
			}
		}
		if writesRemote(direction) && (!hasRemote || remote.Value < merged.Value) {
			if err := s.remote.PutCounter(ctx, eventID, merged); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("write remote counter %s: %v", name, err))
			} else {
				wrote = true
			}
		}
		if wrote {
			result.ItemsSynced++
		}
	}

	return len(localIdx) + len(remoteIdx) - intersectionSize(localIdx, remoteIdx)
}

// persistMetadata records the run summary. The local copy is the
// instance's own bookkeeping and is written for every direction; the
// remote copy only when the direction mutates the remote store.
func (s *Service) persistMetadata(ctx context.Context, direction models.SyncDirection, started time.Time, totalItems int, result *models.SyncResult) {
	version := int64(1)
	if prev, err := s.local.GetSyncMetadata(ctx, s.config.EventID); err == nil {
		version = prev.Version + 1
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		logging.Warn().Err(err).Msg("could not load previous sync metadata")
	}

	meta := &models.SyncMetadata{
		LastSync:      started,
		Version:       version,
		TotalItems:    totalItems,
		ConflictCount: len(result.Conflicts),
		SyncDirection: direction,
	}

	if err := s.local.PutSyncMetadata(ctx, s.config.EventID, meta); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("persist local sync metadata: %v", err))
	}
	if writesRemote(direction) {
		if err := s.remote.PutSyncMetadata(ctx, s.config.EventID, meta); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persist remote sync metadata: %v", err))
		}
	}
}

// unionKeys returns the sorted union of both maps' keys. Sorted order
// keeps runs deterministic and logs readable.
func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		seen[key] = struct{}{}
	}
	for key := range b {
		seen[key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func intersectionSize[V any](a, b map[string]V) int {
	n := 0
	for key := range a {
		if _, ok := b[key]; ok {
			n++
		}
	}
	return n
}
