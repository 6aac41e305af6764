// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package notify

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/HtooAg/FAME-sub001/internal/models"
)

// Serializer handles notification encoding for NATS messages. Invalid
// notifications fail at marshal time so they never reach the wire.
type Serializer struct{}

// NewSerializer creates a serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal validates and encodes a notification.
func (s *Serializer) Marshal(n *models.StatusNotification) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("validate notification: %w", err)
	}

	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}

	return data, nil
}

// Unmarshal decodes a notification payload.
func (s *Serializer) Unmarshal(data []byte) (*models.StatusNotification, error) {
	var n models.StatusNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}

	return &n, nil
}
