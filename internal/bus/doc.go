// Package bus implements the real-time agent coordination core.
//
// # Overview
//
// The bus keeps connected clients synchronized with live agent state. It
// multiplexes per-agent event streams over a shared transport via
// topic-keyed rooms, mediates the two-party collaboration handshake, and
// exposes the broadcast operations producers use to push updates without
// knowing who is subscribed.
//
// # Rooms
//
// A Room is a named multiplexing group keyed by topic ("agent:<id>" or the
// global LLM topic). Rooms are created lazily on first join and reclaimed
// when their membership empties. Join, leave, and broadcast on one topic
// are mutually exclusive, so fan-out never observes a half-updated
// membership set.
//
// # Service
//
// The Service ties rooms to the agent directory:
//
//	rooms := bus.NewRooms(logger)
//	svc := bus.NewService(rooms, dir, logger)
//
// Key operations:
//
//   - Subscribe(ctx, sess, agentID): validate via the directory, join the
//     agent's room, reply with a point-in-time registration snapshot
//   - Unsubscribe(sess, agentID): leave the room; always succeeds
//   - Collaborate(ctx, sess, req): drive a start/accept/reject/end
//     transition, serialized per agent pair
//   - BroadcastAgentUpdate / BroadcastCapabilityUpdate / BroadcastLLMUpdate:
//     fire-and-forget producer fan-out
//
// # Failure model
//
// Nothing here is globally fatal. Unknown agents, stale collaboration
// transitions, and directory failures narrow to a single error event on
// the requesting connection; sends to closed connections are silent loss.
package bus
