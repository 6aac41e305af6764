// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"time"

	"github.com/HtooAg/FAME-sub001/internal/models"
)

// UpdateStatusRequest is the PUT body for a single status write. All
// fields but version are optional; omitted fields keep their cached
// value. Version is the writer's expectation for the optimistic check.
type UpdateStatusRequest struct {
	PerformanceStatus *models.PerformanceStatus `json:"performanceStatus,omitempty" validate:"omitempty,performance_status"`
	PerformanceOrder  *int                      `json:"performanceOrder,omitempty" validate:"omitempty,gte=0"`
	PerformanceDate   *time.Time                `json:"performanceDate,omitempty"`
	Version           int64                     `json:"version" validate:"gte=0"`
}

// toStatusUpdate converts the request into the cache's update shape.
func (r *UpdateStatusRequest) toStatusUpdate() *models.StatusUpdate {
	return &models.StatusUpdate{
		PerformanceStatus: r.PerformanceStatus,
		PerformanceOrder:  r.PerformanceOrder,
		PerformanceDate:   r.PerformanceDate,
		Version:           r.Version,
	}
}

// BatchUpdateEntry is one artist's update inside a batch request.
type BatchUpdateEntry struct {
	ArtistID string              `json:"artistId" validate:"required,max=128"`
	Update   UpdateStatusRequest `json:"update"`
}

// BatchUpdateRequest is the POST body for a multi-artist write. The
// batch cap keeps one request from monopolizing the cache lock during
// a show; callers split larger updates.
type BatchUpdateRequest struct {
	Updates []BatchUpdateEntry `json:"updates" validate:"required,min=1,max=100,dive"`
}

// toBatchItems converts the request into the cache's batch shape.
func (r *BatchUpdateRequest) toBatchItems() []models.BatchUpdateItem {
	items := make([]models.BatchUpdateItem, 0, len(r.Updates))
	for i := range r.Updates {
		items = append(items, models.BatchUpdateItem{
			ArtistID: r.Updates[i].ArtistID,
			Update:   *r.Updates[i].Update.toStatusUpdate(),
		})
	}
	return items
}

// RecoveryRequest is the optional POST body scoping a recovery run.
// Only data_inconsistency reads ArtistIDs; other procedures ignore the
// body entirely.
type RecoveryRequest struct {
	ArtistIDs []string `json:"artistIds,omitempty" validate:"omitempty,max=500,dive,required,max=128"`
}
