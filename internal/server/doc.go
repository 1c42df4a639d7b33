// Package server assembles the agentbus process: it mounts the
// WebSocket bus endpoint, the agent registry API, and the producer
// broadcast API on one HTTP listener and owns graceful shutdown.
//
// Endpoints:
//
//	GET  /health                    liveness
//	GET  /health/ready              readiness (directory reachable)
//	GET  /ws                        WebSocket bus
//	GET  /api/agents                list registrations
//	GET  /api/agents/{id}           one registration
//	PUT  /api/agents/{id}           upsert a registration
//	POST /api/broadcast/agent       fan out an agent-update
//	POST /api/broadcast/capability  fan out a capability-update
//	POST /api/broadcast/llm         fan out an llm-update to everyone
//
// When auth.jwt_secret is configured, everything except the health
// checks requires a valid JWT.
package server
