// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package models

import (
	"time"
)

// APIResponse is the standardized wrapper used by every HTTP endpoint.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"artistId": "artist-1", "performanceStatus": "currently_on_stage", ...},
//	  "metadata": {"timestamp": "2026-08-25T12:00:00Z", "cached": true}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "VERSION_CONFLICT",
//	    "message": "stale version 3, cache holds 5",
//	    "details": {"artistId": "artist-1"}
//	  },
//	  "metadata": {"timestamp": "2026-08-25T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response observability fields.
//
// Cached reports whether the payload was served from the in-memory status
// cache; false means the handler had to fall through to the durable store.
// QueryTimeMS is the handler-side processing time for storage-backed reads.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the structured error payload.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid input parameters
//   - INVALID_JSON: request body failed to parse
//   - VERSION_CONFLICT: stale optimistic-concurrency version on a write
//   - NOT_FOUND: artist or resource unknown
//   - EVENT_MISMATCH: path event does not match the active cache event
//   - SYNC_IN_PROGRESS: a reconciliation run is already active
//   - SYNC_FAILED: a reconciliation run could not start
//   - RECOVERY_IN_FLIGHT: a recovery procedure is already running
//   - INTERNAL_ERROR: unexpected server-side failure
//   - SERVICE_UNAVAILABLE: subsystem not initialized or unreachable
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
