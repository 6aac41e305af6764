// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package journal

import (
	"context"
	"fmt"

	"github.com/HtooAg/FAME-sub001/internal/models"
)

// EventHistory returns every journaled transition for an event in
// chronological order, oldest first.
func (j *Journal) EventHistory(ctx context.Context, eventID string) ([]models.TransitionRecord, error) {
	query := `
		SELECT artist_id, event_id, from_status, to_status, version, recorded_at
		FROM status_transitions
		WHERE event_id = ?
		ORDER BY recorded_at ASC, version ASC
	`

	rows, err := j.conn.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event history: %w", err)
	}
	defer closeQuietly(rows)

	transitions := make([]models.TransitionRecord, 0)
	for rows.Next() {
		var tr models.TransitionRecord
		if err := rows.Scan(&tr.ArtistID, &tr.EventID, &tr.FromStatus, &tr.ToStatus, &tr.Version, &tr.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		transitions = append(transitions, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}
	return transitions, nil
}

// TransitionCounts aggregates an event's journaled transitions by
// destination status.
func (j *Journal) TransitionCounts(ctx context.Context, eventID string) (map[models.PerformanceStatus]int64, error) {
	query := `
		SELECT to_status, COUNT(*)
		FROM status_transitions
		WHERE event_id = ?
		GROUP BY to_status
	`

	rows, err := j.conn.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition counts: %w", err)
	}
	defer closeQuietly(rows)

	counts := make(map[models.PerformanceStatus]int64)
	for rows.Next() {
		var status models.PerformanceStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transition counts: %w", err)
	}
	return counts, nil
}
