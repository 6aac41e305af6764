// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package models defines the canonical schema shared by the cache engine,
// the sync service, and the HTTP surface. Field names in JSON tags are the
// interoperability contract with the dashboards and must not change.
package models

import (
	"time"
)

// PerformanceStatus is the live stage state of an artist in a running show.
type PerformanceStatus string

// Performance status values, in show order.
const (
	StatusNotStarted       PerformanceStatus = "not_started"
	StatusNextOnDeck       PerformanceStatus = "next_on_deck"
	StatusNextOnStage      PerformanceStatus = "next_on_stage"
	StatusCurrentlyOnStage PerformanceStatus = "currently_on_stage"
	StatusCompleted        PerformanceStatus = "completed"
)

// Valid reports whether s is a known performance status.
func (s PerformanceStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusNextOnDeck, StatusNextOnStage,
		StatusCurrentlyOnStage, StatusCompleted:
		return true
	}
	return false
}

// QueuePriority maps a status transition to its write-behind priority.
// Stage-critical transitions jump ahead of routine edits so the boards
// never lag behind the show.
func (s PerformanceStatus) QueuePriority() UpdatePriority {
	switch s {
	case StatusCurrentlyOnStage, StatusNextOnStage:
		return PriorityHigh
	case StatusCompleted, StatusNextOnDeck:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// StatusRecord is the cached and synced unit: the latest known performance
// state of one artist in one event.
//
// For a given (artistId, eventId) pair at most one record is authoritative
// in each store at a time; Version strictly increases with every accepted
// write, local or remote.
type StatusRecord struct {
	ArtistID          string            `json:"artistId" validate:"required"`
	EventID           string            `json:"eventId" validate:"required"`
	PerformanceStatus PerformanceStatus `json:"performanceStatus" validate:"required,performance_status"`
	PerformanceOrder  *int              `json:"performanceOrder,omitempty"`
	PerformanceDate   *time.Time        `json:"performanceDate,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Version           int64             `json:"version" validate:"gte=0"`
	Dirty             bool              `json:"dirty,omitempty"`
}

// NewStatusRecord creates a not_started record at version 1.
func NewStatusRecord(eventID, artistID string) *StatusRecord {
	return &StatusRecord{
		ArtistID:          artistID,
		EventID:           eventID,
		PerformanceStatus: StatusNotStarted,
		Timestamp:         time.Now().UTC(),
		Version:           1,
	}
}

// Key returns the natural store key for the record.
func (r *StatusRecord) Key() string {
	return r.EventID + "/" + r.ArtistID
}

// Clone returns a deep copy. Pointer fields are duplicated so callers
// can mutate the copy without aliasing cache-owned state.
func (r *StatusRecord) Clone() *StatusRecord {
	out := *r
	if r.PerformanceOrder != nil {
		v := *r.PerformanceOrder
		out.PerformanceOrder = &v
	}
	if r.PerformanceDate != nil {
		v := *r.PerformanceDate
		out.PerformanceDate = &v
	}
	return &out
}

// Validate checks required fields and returns an error if validation fails.
func (r *StatusRecord) Validate() error {
	if r.ArtistID == "" {
		return &ValidationError{Field: "artistId", Message: "required"}
	}
	if r.EventID == "" {
		return &ValidationError{Field: "eventId", Message: "required"}
	}
	if !r.PerformanceStatus.Valid() {
		return &ValidationError{Field: "performanceStatus", Message: "unknown status"}
	}
	if r.Version < 0 {
		return &ValidationError{Field: "version", Message: "must be non-negative"}
	}
	return nil
}

// StatusUpdate is the partial write payload. Nil optional fields are left
// untouched on merge; Version carries the writer's optimistic-concurrency
// expectation.
type StatusUpdate struct {
	PerformanceStatus *PerformanceStatus `json:"performanceStatus,omitempty" validate:"omitempty,performance_status"`
	PerformanceOrder  *int               `json:"performanceOrder,omitempty"`
	PerformanceDate   *time.Time         `json:"performanceDate,omitempty"`
	Version           int64              `json:"version" validate:"gte=0"`
}

// ApplyTo merges the set fields of the update into rec. Version, timestamp,
// and dirty handling belong to the cache, not to the merge.
func (u *StatusUpdate) ApplyTo(rec *StatusRecord) {
	if u.PerformanceStatus != nil {
		rec.PerformanceStatus = *u.PerformanceStatus
	}
	if u.PerformanceOrder != nil {
		v := *u.PerformanceOrder
		rec.PerformanceOrder = &v
	}
	if u.PerformanceDate != nil {
		v := *u.PerformanceDate
		rec.PerformanceDate = &v
	}
}

// Validate checks the update payload.
func (u *StatusUpdate) Validate() error {
	if u.PerformanceStatus != nil && !u.PerformanceStatus.Valid() {
		return &ValidationError{Field: "performanceStatus", Message: "unknown status"}
	}
	if u.Version < 0 {
		return &ValidationError{Field: "version", Message: "must be non-negative"}
	}
	return nil
}

// BatchUpdateItem is one entry of a batch write request.
type BatchUpdateItem struct {
	ArtistID string       `json:"artistId" validate:"required"`
	Update   StatusUpdate `json:"update"`
}

// BatchUpdateResult reports one batch entry's outcome. Entries are
// independent; one rejection never voids the rest of the batch.
type BatchUpdateResult struct {
	ArtistID string        `json:"artistId"`
	Success  bool          `json:"success"`
	Record   *StatusRecord `json:"record,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
