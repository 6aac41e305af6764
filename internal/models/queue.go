// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import (
	"time"

	"github.com/google/uuid"
)

// UpdatePriority orders pending writes in the update queue.
type UpdatePriority string

// Queue priorities, highest first when draining.
const (
	PriorityHigh   UpdatePriority = "high"
	PriorityNormal UpdatePriority = "normal"
	PriorityLow    UpdatePriority = "low"
)

// Rank returns the numeric drain rank; higher drains first.
func (p UpdatePriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority.
func (p UpdatePriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// QueuedUpdate is one pending durable write. The queue owns these; the
// cache only ever sees the update payload.
type QueuedUpdate struct {
	ID          string         `json:"id"`
	ArtistID    string         `json:"artistId" validate:"required"`
	EventID     string         `json:"eventId" validate:"required"`
	Updates     StatusUpdate   `json:"updates"`
	Priority    UpdatePriority `json:"priority" validate:"required"`
	RetryCount  int            `json:"retryCount"`
	MaxRetries  int            `json:"maxRetries"`
	NextRetryAt *time.Time     `json:"nextRetryAt,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
}

// NewQueuedUpdate creates a pending write with a fresh id.
func NewQueuedUpdate(eventID, artistID string, updates StatusUpdate, priority UpdatePriority) *QueuedUpdate {
	if !priority.Valid() {
		priority = PriorityNormal
	}
	return &QueuedUpdate{
		ID:         uuid.New().String(),
		ArtistID:   artistID,
		EventID:    eventID,
		Updates:    updates,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Eligible reports whether the entry may be attempted at t.
func (q *QueuedUpdate) Eligible(t time.Time) bool {
	return q.NextRetryAt == nil || !q.NextRetryAt.After(t)
}

// Exhausted reports whether the entry has used up its retry budget.
func (q *QueuedUpdate) Exhausted() bool {
	return q.RetryCount > q.MaxRetries
}
