// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import "time"

// SyncDirection names which way a reconciliation run moved data.
type SyncDirection string

// Sync directions.
const (
	SyncBidirectional SyncDirection = "bidirectional"
	SyncLocalToRemote SyncDirection = "local-to-remote"
	SyncRemoteToLocal SyncDirection = "remote-to-local"
)

// ConflictReason classifies why two copies of an item diverged.
type ConflictReason string

// Conflict reasons.
const (
	ConflictTimestamp    ConflictReason = "timestamp"
	ConflictVersion      ConflictReason = "version"
	ConflictDataMismatch ConflictReason = "data-mismatch"
)

// ConflictResolution names how a conflict was settled.
type ConflictResolution string

// Resolutions. Merge is declared for schema compatibility with the
// dashboards but never produced: resolution is whole-record
// last-writer-wins, not per-field merging.
const (
	ResolutionLocalWins  ConflictResolution = "local-wins"
	ResolutionRemoteWins ConflictResolution = "remote-wins"
	ResolutionManual     ConflictResolution = "manual"
	ResolutionMerge      ConflictResolution = "merge"
)

// ItemType values reconciled by the sync service.
const (
	ItemTypeStatus  = "status"
	ItemTypeCounter = "counter"
)

// SyncConflict records one resolved divergence during a reconciliation
// pass. Conflicts live only inside a run's SyncResult; the run summary is
// what gets persisted (see SyncMetadata).
type SyncConflict struct {
	ItemID          string             `json:"itemId"`
	ItemType        string             `json:"itemType"`
	LocalVersion    int64              `json:"localVersion"`
	RemoteVersion   int64              `json:"remoteVersion"`
	ConflictReason  ConflictReason     `json:"conflictReason"`
	Resolution      ConflictResolution `json:"resolution"`
	ResolvedVersion int64              `json:"resolvedVersion"`
	Fields          []string           `json:"fields,omitempty"`
}

// SyncMetadata is the persisted summary of the most recent run.
type SyncMetadata struct {
	LastSync      time.Time     `json:"lastSync"`
	Version       int64         `json:"version"`
	TotalItems    int           `json:"totalItems"`
	ConflictCount int           `json:"conflictCount"`
	SyncDirection SyncDirection `json:"syncDirection"`
}

// SyncResult is the full outcome of one reconciliation run. Success means
// no errors were recorded; progress made before an error is kept, never
// rolled back.
type SyncResult struct {
	Success     bool           `json:"success"`
	Direction   SyncDirection  `json:"direction"`
	ItemsSynced int            `json:"itemsSynced"`
	Conflicts   []SyncConflict `json:"conflicts"`
	Errors      []string       `json:"errors"`
	Duration    time.Duration  `json:"duration"`
	StartedAt   time.Time      `json:"startedAt"`
}

// Counter is a named monotonic allocator (performance order numbers,
// registration sequence). Reconciled by max-merge: the higher value is
// always safe to adopt on both sides.
type Counter struct {
	Name      string    `json:"name" validate:"required"`
	Value     int64     `json:"value" validate:"gte=0"`
	UpdatedAt time.Time `json:"updatedAt"`
}
