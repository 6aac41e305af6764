// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

/*
Package api exposes the FAME HTTP surface: the status read/write
endpoints the show boards poll and mutate, the operational endpoints
(sync, recovery, queue, cache stats), health probes, Prometheus
metrics, and the WebSocket upgrade path.

Routing uses go-chi with per-group rate limits. All JSON bodies are
encoded with goccy/go-json and wrapped in the models.APIResponse
envelope:

	{
	  "status": "success" | "error",
	  "data": { ... },
	  "metadata": { "timestamp": ..., "query_time_ms": ..., "cached": ... },
	  "error": { "code": ..., "message": ..., "details": { ... } }
	}

Endpoints:

	GET  /api/v1/events/{eventID}/artists/{artistID}/status
	PUT  /api/v1/events/{eventID}/artists/{artistID}/status
	POST /api/v1/events/{eventID}/statuses/batch
	GET  /api/v1/events/{eventID}/statuses
	GET  /api/v1/events/{eventID}/journal
	GET  /api/v1/events/{eventID}/journal/counts
	POST /api/v1/sync?direction=push|pull
	GET  /api/v1/sync/metadata
	POST /api/v1/recovery/{type}
	GET  /api/v1/recovery/history
	GET  /api/v1/queue/stats
	POST /api/v1/queue/{updateID}/retry
	GET  /api/v1/cache/stats
	GET  /healthz
	GET  /readyz
	GET  /metrics
	GET  /ws?role=dashboard|stage|dj

Event Scoping:

Status endpoints are addressed by event, but one instance serves one
active event at a time. A request naming any other event is rejected
with 409 EVENT_MISMATCH rather than silently served from the wrong
show's cache. Journal endpoints are exempt: the transition journal
retains past events for post-show review.

Error Codes:

Errors carry a stable machine-readable code next to the human message.
See models.APIError for the full set.

Middleware:

The global stack is request-ID injection, real-IP resolution, panic
recovery, CORS, and security headers. Route groups add IP rate limits
sized for their traffic: reads are generous, writes tighter, and the
sync/recovery triggers are nearly singular because the operations they
start are heavyweight and serialized anyway.

Responses are marked Cache-Control: no-store. Everything this API
serves is live show state; a board acting on a stale cached response
would announce the wrong artist.
*/
package api
