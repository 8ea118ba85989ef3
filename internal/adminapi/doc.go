// Package adminapi serves the operator HTTP interface of coven-handoff.
//
// # Routes
//
//	GET    /health               liveness, always "OK"
//	GET    /health/ready         ledger reachability
//	GET    /metrics              Prometheus exposition (path configurable)
//	GET    /api/state            broker snapshot (read scope)
//	GET    /api/events           ledger history; since, until, user, agent, type, limit (read scope)
//	GET    /api/events/counts    transitions per type; since (read scope)
//	POST   /api/blacklist        {"agent": ..., "user": ...} (admin scope)
//	DELETE /api/blacklist        {"agent": ..., "user": ...} (admin scope)
//	POST   /api/conversations/end {"user": ...} (admin scope)
//
// The /api routes require a bearer JWT from auth.JWTVerifier and are not
// mounted when no secret is configured. Broker denials map to 400 for bad
// input, 404 when there is nothing to act on, and 409 otherwise.
//
// # Listeners
//
// Server listens on server.http_addr, or on a Tailscale node with automatic
// HTTPS certificates when tailscale.enabled is set.
package adminapi
