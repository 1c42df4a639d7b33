// Package auth provides JWT authentication for agentbus clients.
//
// Tokens are HS256-signed JWTs carrying the client ID in the "sub"
// claim. The HTTP middleware accepts tokens from the Authorization
// header (Bearer scheme) or the token query parameter; the latter
// exists because browser WebSocket clients cannot set headers.
//
// Authentication is optional. When no secret is configured the server
// mounts its endpoints without this middleware and every connection is
// anonymous.
package auth
