// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusNotification is the wire payload fanned out whenever a write is
// accepted. Delivery is at-least-once and unordered, so consumers always
// run incoming records through conflict resolution before applying them.
type StatusNotification struct {
	NotificationID string       `json:"notificationId"`
	EventID        string       `json:"eventId"`
	Record         StatusRecord `json:"record"`
	Origin         string       `json:"origin"`
	PublishedAt    time.Time    `json:"publishedAt"`
}

// NewStatusNotification wraps an accepted record for publishing.
// origin identifies the publishing instance so it can skip its own echo.
func NewStatusNotification(origin string, record StatusRecord) *StatusNotification {
	return &StatusNotification{
		NotificationID: uuid.New().String(),
		EventID:        record.EventID,
		Record:         record,
		Origin:         origin,
		PublishedAt:    time.Now().UTC(),
	}
}

// StatusTopic returns the NATS subject carrying status updates for an
// event. Format: status.updates.<eventId>
func StatusTopic(eventID string) string {
	return "status.updates." + eventID
}

// Topic returns the NATS subject for this notification.
func (n *StatusNotification) Topic() string {
	return StatusTopic(n.EventID)
}

// Validate checks required fields and returns an error if validation fails.
func (n *StatusNotification) Validate() error {
	if n.NotificationID == "" {
		return &ValidationError{Field: "notificationId", Message: "required"}
	}
	if n.EventID == "" {
		return &ValidationError{Field: "eventId", Message: "required"}
	}
	if n.Origin == "" {
		return &ValidationError{Field: "origin", Message: "required"}
	}
	return n.Record.Validate()
}
