// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import "time"

// TransitionRecord is one journaled status transition: the accepted
// write that moved an artist from one stage state to another. Rows are
// append-only and exist for post-show analytics, never for correctness.
type TransitionRecord struct {
	ArtistID   string            `json:"artistId"`
	EventID    string            `json:"eventId"`
	FromStatus PerformanceStatus `json:"fromStatus"`
	ToStatus   PerformanceStatus `json:"toStatus"`
	Version    int64             `json:"version"`
	RecordedAt time.Time         `json:"recordedAt"`
}
