// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestPerformanceStatusValid(t *testing.T) {
	t.Parallel()

	valid := []PerformanceStatus{
		StatusNotStarted,
		StatusNextOnDeck,
		StatusNextOnStage,
		StatusCurrentlyOnStage,
		StatusCompleted,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("Expected %q to be valid", s)
		}
	}

	invalid := []PerformanceStatus{"", "paused", "COMPLETED", "on_stage", "not started"}
	for _, s := range invalid {
		if s.Valid() {
			t.Errorf("Expected %q to be invalid", s)
		}
	}
}

func TestPerformanceStatusQueuePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status PerformanceStatus
		want   UpdatePriority
	}{
		{StatusCurrentlyOnStage, PriorityHigh},
		{StatusNextOnStage, PriorityHigh},
		{StatusNextOnDeck, PriorityNormal},
		{StatusCompleted, PriorityNormal},
		{StatusNotStarted, PriorityLow},
		{PerformanceStatus("unknown"), PriorityLow},
	}
	for _, tt := range tests {
		if got := tt.status.QueuePriority(); got != tt.want {
			t.Errorf("QueuePriority(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNewStatusRecord(t *testing.T) {
	t.Parallel()

	rec := NewStatusRecord("summer-gala-2026", "artist-42")

	if rec.EventID != "summer-gala-2026" {
		t.Errorf("Expected event id 'summer-gala-2026', got %q", rec.EventID)
	}
	if rec.ArtistID != "artist-42" {
		t.Errorf("Expected artist id 'artist-42', got %q", rec.ArtistID)
	}
	if rec.PerformanceStatus != StatusNotStarted {
		t.Errorf("Expected fresh record to be not_started, got %q", rec.PerformanceStatus)
	}
	if rec.Version != 1 {
		t.Errorf("Expected fresh record at version 1, got %d", rec.Version)
	}
	if rec.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
	if rec.Key() != "summer-gala-2026/artist-42" {
		t.Errorf("Unexpected key %q", rec.Key())
	}
}

func TestStatusRecordClone(t *testing.T) {
	t.Parallel()

	order := 3
	date := time.Date(2026, 8, 25, 21, 0, 0, 0, time.UTC)
	rec := &StatusRecord{
		ArtistID:          "artist-1",
		EventID:           "evt-1",
		PerformanceStatus: StatusNextOnDeck,
		PerformanceOrder:  &order,
		PerformanceDate:   &date,
		Timestamp:         time.Now().UTC(),
		Version:           7,
	}

	clone := rec.Clone()

	if clone == rec {
		t.Fatal("Clone returned the same pointer")
	}
	if *clone.PerformanceOrder != 3 || !clone.PerformanceDate.Equal(date) {
		t.Error("Clone did not copy pointer field values")
	}

	// Mutating the clone must not touch the original.
	*clone.PerformanceOrder = 9
	*clone.PerformanceDate = date.Add(time.Hour)
	clone.Version = 8

	if *rec.PerformanceOrder != 3 {
		t.Errorf("Original order changed to %d after clone mutation", *rec.PerformanceOrder)
	}
	if !rec.PerformanceDate.Equal(date) {
		t.Error("Original date changed after clone mutation")
	}
	if rec.Version != 7 {
		t.Errorf("Original version changed to %d", rec.Version)
	}
}

func TestStatusRecordCloneNilPointers(t *testing.T) {
	t.Parallel()

	rec := NewStatusRecord("evt-1", "artist-1")
	clone := rec.Clone()

	if clone.PerformanceOrder != nil || clone.PerformanceDate != nil {
		t.Error("Expected nil optional fields to stay nil on clone")
	}
}

func TestStatusRecordValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*StatusRecord)
		wantField string
	}{
		{"valid", func(r *StatusRecord) {}, ""},
		{"missing artist", func(r *StatusRecord) { r.ArtistID = "" }, "artistId"},
		{"missing event", func(r *StatusRecord) { r.EventID = "" }, "eventId"},
		{"unknown status", func(r *StatusRecord) { r.PerformanceStatus = "encore" }, "performanceStatus"},
		{"negative version", func(r *StatusRecord) { r.Version = -1 }, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewStatusRecord("evt-1", "artist-1")
			tt.mutate(rec)

			err := rec.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Expected valid record, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Expected field %q, got %q", tt.wantField, verr.Field)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Error %q does not name the field", err.Error())
			}
		})
	}
}

func TestStatusUpdateApplyTo(t *testing.T) {
	t.Parallel()

	t.Run("partial update leaves unset fields alone", func(t *testing.T) {
		order := 5
		rec := NewStatusRecord("evt-1", "artist-1")
		rec.PerformanceOrder = &order

		status := StatusCurrentlyOnStage
		u := &StatusUpdate{PerformanceStatus: &status}
		u.ApplyTo(rec)

		if rec.PerformanceStatus != StatusCurrentlyOnStage {
			t.Errorf("Expected status applied, got %q", rec.PerformanceStatus)
		}
		if rec.PerformanceOrder == nil || *rec.PerformanceOrder != 5 {
			t.Error("Expected unset order field to be left untouched")
		}
	})

	t.Run("applied pointers are not aliased", func(t *testing.T) {
		rec := NewStatusRecord("evt-1", "artist-1")
		order := 2
		u := &StatusUpdate{PerformanceOrder: &order}
		u.ApplyTo(rec)

		order = 99
		if *rec.PerformanceOrder != 2 {
			t.Errorf("Record order changed to %d through caller's pointer", *rec.PerformanceOrder)
		}
	})

	t.Run("merge does not touch version or timestamp", func(t *testing.T) {
		rec := NewStatusRecord("evt-1", "artist-1")
		before := rec.Timestamp
		status := StatusCompleted
		u := &StatusUpdate{PerformanceStatus: &status, Version: 41}
		u.ApplyTo(rec)

		if rec.Version != 1 {
			t.Errorf("Expected merge to leave version at 1, got %d", rec.Version)
		}
		if !rec.Timestamp.Equal(before) {
			t.Error("Expected merge to leave timestamp alone")
		}
	})
}

func TestStatusUpdateValidate(t *testing.T) {
	t.Parallel()

	good := StatusNextOnStage
	if err := (&StatusUpdate{PerformanceStatus: &good}).Validate(); err != nil {
		t.Errorf("Expected valid update, got %v", err)
	}
	if err := (&StatusUpdate{}).Validate(); err != nil {
		t.Errorf("Expected empty update to be valid, got %v", err)
	}

	bad := PerformanceStatus("intermission")
	if err := (&StatusUpdate{PerformanceStatus: &bad}).Validate(); err == nil {
		t.Error("Expected unknown status to be rejected")
	}
	if err := (&StatusUpdate{Version: -2}).Validate(); err == nil {
		t.Error("Expected negative version to be rejected")
	}
}

func TestStatusNotification(t *testing.T) {
	t.Parallel()

	rec := NewStatusRecord("evt-1", "artist-1")
	n := NewStatusNotification("instance-a", *rec)

	if n.NotificationID == "" {
		t.Error("Expected a generated notification id")
	}
	if n.EventID != "evt-1" {
		t.Errorf("Expected event id copied from record, got %q", n.EventID)
	}
	if n.Origin != "instance-a" {
		t.Errorf("Expected origin 'instance-a', got %q", n.Origin)
	}
	if n.PublishedAt.IsZero() {
		t.Error("Expected publish timestamp to be set")
	}
	if got := n.Topic(); got != "status.updates.evt-1" {
		t.Errorf("Unexpected topic %q", got)
	}
	if err := n.Validate(); err != nil {
		t.Errorf("Expected valid notification, got %v", err)
	}

	n.Origin = ""
	if err := n.Validate(); err == nil {
		t.Error("Expected missing origin to be rejected")
	}
}

func TestStatusTopic(t *testing.T) {
	t.Parallel()

	if got := StatusTopic("summer-gala-2026"); got != "status.updates.summer-gala-2026" {
		t.Errorf("Unexpected topic %q", got)
	}
}

func TestUpdatePriority(t *testing.T) {
	t.Parallel()

	if PriorityHigh.Rank() <= PriorityNormal.Rank() || PriorityNormal.Rank() <= PriorityLow.Rank() {
		t.Error("Expected rank order high > normal > low")
	}
	if UpdatePriority("urgent").Rank() != PriorityLow.Rank() {
		t.Error("Expected unknown priority to rank with low")
	}
	if !PriorityHigh.Valid() || !PriorityNormal.Valid() || !PriorityLow.Valid() {
		t.Error("Expected known priorities to be valid")
	}
	if UpdatePriority("urgent").Valid() {
		t.Error("Expected unknown priority to be invalid")
	}
}

func TestNewQueuedUpdate(t *testing.T) {
	t.Parallel()

	status := StatusCompleted
	q := NewQueuedUpdate("evt-1", "artist-1", StatusUpdate{PerformanceStatus: &status}, PriorityHigh)

	if q.ID == "" {
		t.Error("Expected a generated queue entry id")
	}
	if q.Priority != PriorityHigh {
		t.Errorf("Expected priority high, got %q", q.Priority)
	}
	if q.EnqueuedAt.IsZero() {
		t.Error("Expected enqueue timestamp to be set")
	}

	// Unknown priorities are normalized, not rejected.
	q = NewQueuedUpdate("evt-1", "artist-1", StatusUpdate{}, "urgent")
	if q.Priority != PriorityNormal {
		t.Errorf("Expected unknown priority to fall back to normal, got %q", q.Priority)
	}
}

func TestQueuedUpdateEligible(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	q := NewQueuedUpdate("evt-1", "artist-1", StatusUpdate{}, PriorityNormal)

	if !q.Eligible(now) {
		t.Error("Expected entry without a retry gate to be eligible")
	}

	later := now.Add(time.Minute)
	q.NextRetryAt = &later
	if q.Eligible(now) {
		t.Error("Expected entry to be ineligible before its retry time")
	}
	if !q.Eligible(later) {
		t.Error("Expected entry to be eligible exactly at its retry time")
	}
	if !q.Eligible(later.Add(time.Second)) {
		t.Error("Expected entry to be eligible after its retry time")
	}
}

func TestQueuedUpdateExhausted(t *testing.T) {
	t.Parallel()

	q := NewQueuedUpdate("evt-1", "artist-1", StatusUpdate{}, PriorityNormal)
	q.MaxRetries = 3

	for _, tt := range []struct {
		retries int
		want    bool
	}{
		{0, false}, {3, false}, {4, true},
	} {
		q.RetryCount = tt.retries
		if got := q.Exhausted(); got != tt.want {
			t.Errorf("Exhausted() with %d/%d retries = %v, want %v", tt.retries, q.MaxRetries, got, tt.want)
		}
	}
}

func TestRecoveryTypeValid(t *testing.T) {
	t.Parallel()

	for _, typ := range []RecoveryType{
		RecoveryCacheCorruption, RecoveryNetworkFailure,
		RecoveryDataInconsistency, RecoverySyncFailure,
	} {
		if !typ.Valid() {
			t.Errorf("Expected %q to be valid", typ)
		}
	}
	if RecoveryType("reboot").Valid() {
		t.Error("Expected unknown recovery type to be invalid")
	}
}

func TestRecoveryOperationLifecycle(t *testing.T) {
	t.Parallel()

	op := NewRecoveryOperation(RecoveryNetworkFailure, "evt-1")

	if op.ID == "" {
		t.Error("Expected a generated operation id")
	}
	if op.Status != RecoveryPending {
		t.Errorf("Expected fresh operation to be pending, got %q", op.Status)
	}

	op.Complete()
	if op.Status != RecoveryCompleted {
		t.Errorf("Expected completed, got %q", op.Status)
	}

	op = NewRecoveryOperation(RecoverySyncFailure, "evt-1")
	op.Fail(errors.New("bucket unreachable"))
	if op.Status != RecoveryFailed {
		t.Errorf("Expected failed, got %q", op.Status)
	}
	if op.Error != "bucket unreachable" {
		t.Errorf("Expected failure cause recorded, got %q", op.Error)
	}

	op = NewRecoveryOperation(RecoverySyncFailure, "evt-1")
	op.Fail(nil)
	if op.Status != RecoveryFailed || op.Error != "" {
		t.Error("Expected nil-error failure to mark status without a message")
	}
}

// The JSON field names are the contract with the dashboards; this pins
// the casing and the omitempty behavior of the optional fields.
func TestStatusRecordJSONContract(t *testing.T) {
	t.Parallel()

	t.Run("nil optionals are omitted", func(t *testing.T) {
		rec := NewStatusRecord("evt-1", "artist-1")
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("Failed to marshal record: %v", err)
		}
		s := string(data)
		for _, key := range []string{`"artistId"`, `"eventId"`, `"performanceStatus"`, `"timestamp"`, `"version"`} {
			if !strings.Contains(s, key) {
				t.Errorf("Expected %s in payload %s", key, s)
			}
		}
		for _, key := range []string{`"performanceOrder"`, `"performanceDate"`, `"dirty"`} {
			if strings.Contains(s, key) {
				t.Errorf("Expected %s to be omitted from payload %s", key, s)
			}
		}
	})

	t.Run("populated record round-trips", func(t *testing.T) {
		order := 4
		date := time.Date(2026, 8, 25, 22, 30, 0, 0, time.UTC)
		rec := &StatusRecord{
			ArtistID:          "artist-1",
			EventID:           "evt-1",
			PerformanceStatus: StatusNextOnStage,
			PerformanceOrder:  &order,
			PerformanceDate:   &date,
			Timestamp:         time.Now().UTC(),
			Version:           12,
			Dirty:             true,
		}

		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("Failed to marshal record: %v", err)
		}
		var decoded StatusRecord
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Failed to unmarshal record: %v", err)
		}

		if decoded.PerformanceStatus != StatusNextOnStage {
			t.Errorf("Expected status preserved, got %q", decoded.PerformanceStatus)
		}
		if decoded.PerformanceOrder == nil || *decoded.PerformanceOrder != 4 {
			t.Error("Expected performance order preserved")
		}
		if decoded.PerformanceDate == nil || !decoded.PerformanceDate.Equal(date) {
			t.Error("Expected performance date preserved")
		}
		if decoded.Version != 12 || !decoded.Dirty {
			t.Errorf("Expected version and dirty flag preserved, got v%d dirty=%v", decoded.Version, decoded.Dirty)
		}
	})
}
