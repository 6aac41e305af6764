// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import (
	"time"

	"github.com/google/uuid"
)

// RecoveryType names a typed remediation procedure.
type RecoveryType string

// Recovery procedure types.
const (
	RecoveryCacheCorruption   RecoveryType = "cache_corruption"
	RecoveryNetworkFailure    RecoveryType = "network_failure"
	RecoveryDataInconsistency RecoveryType = "data_inconsistency"
	RecoverySyncFailure       RecoveryType = "sync_failure"
)

// Valid reports whether t is a known recovery type.
func (t RecoveryType) Valid() bool {
	switch t {
	case RecoveryCacheCorruption, RecoveryNetworkFailure,
		RecoveryDataInconsistency, RecoverySyncFailure:
		return true
	}
	return false
}

// RecoveryStatus is the lifecycle state of one recovery attempt.
type RecoveryStatus string

// Recovery statuses: pending → in_progress → completed | failed.
const (
	RecoveryPending    RecoveryStatus = "pending"
	RecoveryInProgress RecoveryStatus = "in_progress"
	RecoveryCompleted  RecoveryStatus = "completed"
	RecoveryFailed     RecoveryStatus = "failed"
)

// RecoveryOperation tracks one recovery attempt. Kept in a bounded
// in-memory history for observability; never required for correctness.
type RecoveryOperation struct {
	ID              string         `json:"id"`
	Type            RecoveryType   `json:"type"`
	EventID         string         `json:"eventId"`
	PerformanceDate *time.Time     `json:"performanceDate,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	Status          RecoveryStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
	RetryCount      int            `json:"retryCount"`
	MaxRetries      int            `json:"maxRetries"`
}

// NewRecoveryOperation creates a pending operation for the given procedure.
func NewRecoveryOperation(typ RecoveryType, eventID string) *RecoveryOperation {
	return &RecoveryOperation{
		ID:        uuid.New().String(),
		Type:      typ,
		EventID:   eventID,
		Timestamp: time.Now().UTC(),
		Status:    RecoveryPending,
	}
}

// Complete marks the operation finished.
func (op *RecoveryOperation) Complete() {
	op.Status = RecoveryCompleted
}

// Fail marks the operation failed with the given cause.
func (op *RecoveryOperation) Fail(err error) {
	op.Status = RecoveryFailed
	if err != nil {
		op.Error = err.Error()
	}
}
