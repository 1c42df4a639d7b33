// ABOUTME: Package documentation for the WebSocket transport layer
// ABOUTME: Describes the session model and inbound/outbound wire contract

// Package transport carries bus traffic over WebSocket connections.
//
// Each accepted connection becomes one session with a read pump and a
// write pump. The read pump parses inbound JSON messages (subscribe,
// unsubscribe, collaboration requests) and dispatches them to the bus
// service; the write pump drains a buffered outbound channel onto the
// wire. Sends to a session never block the broadcaster: a full buffer
// or closed connection drops the event for that session only.
//
// When the read pump returns the connection is finished, and the
// handler removes the session from every room before discarding the
// handle. A session that has disconnected can therefore never appear
// as a stale room member.
package transport
