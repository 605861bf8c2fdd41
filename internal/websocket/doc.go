// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Package websocket pushes bus events to connected dashboard clients.

# Components

  - Hub: the set of connected clients. Run broadcasts queued messages until
    its context ends, then closes every client.
  - Client: one connection with a read pump (client pings, pong deadlines)
    and a write pump (messages and keepalive pings).
  - Bridge: subscribes to the event topics and hands each delivery to the
    hub as a Message.
  - NewHandler: upgrades GET /api/v1/events/stream and registers the
    connection with the hub.

# Message Format

Every frame is a JSON object:

	{
	  "type": "sync.completed",
	  "correlation_id": "req-42",
	  "timestamp": "2026-06-01T08:00:00Z",
	  "data": { ... event payload ... }
	}

type is the bus topic without the "adsync." prefix. Clients may send
{"type":"ping"} and receive {"type":"pong"}.

# Delivery

Delivery is best effort. A client whose send buffer is full is dropped, and
a full hub queue drops the message with a warning. Durable history lives in
the event log (GET /api/v1/events).

# Supervision

Hub.Run and Bridge.Run both satisfy the supervisor's Runner interface and
run in the messaging layer.
*/
package websocket
