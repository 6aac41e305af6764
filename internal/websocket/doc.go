// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

/*
Package websocket fans performance-status updates out to the live
boards connected to this instance.

The stage-manager dashboard, the DJ/MC screens, and the public live
board all attach here. The package uses the gorilla/websocket library
with a hub-client architecture: the hub owns the client set and the
broadcast channel, each client owns one connection with separate
read/write goroutines.

Key Components:

  - Hub: Central broker that manages client connections and broadcasts
  - Client: One WebSocket connection with read/write goroutines
  - Message: Typed envelope for the different event types

Message Types:

  - status_update: An accepted performance-status write (all roles)
  - sync_completed: A cloud sync run finished (dashboard only)
  - stats_update: Cache and queue statistics changed (dashboard only)
  - recovery_update: A recovery operation transitioned (dashboard only)
  - ping/pong: Application-level keepalive

Roles:

Clients connect with a role (dashboard, stage, dj) that filters what
they receive. Performance boards only see status transitions; the
dashboard also sees operational traffic. Unknown roles fall back to
dashboard.

Usage:

	hub := websocket.NewHub()
	go hub.Run(ctx)

	// In the HTTP layer:
	client := websocket.NewClient(hub, conn, r.URL.Query().Get("role"))
	hub.Register <- client
	client.Start()

	// From the cache manager's accepted-write path:
	hub.BroadcastStatus(record)

Slow Clients:

Per-client send channels are buffered (256 messages). A client whose
buffer fills is closed and removed rather than allowed to stall the
broadcast loop; the drop is counted in the websocket_messages_dropped
metric. A show board that reconnects performs a fresh GET of the full
status list, so dropped frames never leave it permanently stale.

Connection Lifecycle:

 1. Client connects via HTTP upgrade (GET /ws?role=stage)
 2. Hub registers client
 3. Client starts read/write goroutines
 4. Hub broadcasts messages filtered by role
 5. Client disconnects (network error or explicit close)
 6. Hub unregisters client and cleans up

Timeouts:

  - writeWait: 10 seconds (time allowed to write a message)
  - pongWait: 60 seconds (time allowed to read the next pong)
  - pingPeriod: 54 seconds (must be below pongWait)
  - maxMessageSize: 64 KB (inbound limit; clients send almost nothing)

See Also:

  - github.com/gorilla/websocket: Underlying WebSocket library
  - internal/api: WebSocket endpoint handler
  - internal/cache: BroadcastStatus call site
*/
package websocket
