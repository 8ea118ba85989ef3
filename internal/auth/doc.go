// Package auth protects the hand-off admin API.
//
// Operators authenticate with HS256 JWTs signed with the configured
// jwt_secret (at least 32 bytes). Tokens carry:
//
//   - sub: who the token was issued to, for logs
//   - scope: "read" (state, events) or "admin" (also blacklist changes)
//   - exp/iat: standard expiry and issue times
//
// A token without a recognized scope is treated as read-only.
//
// # HTTP Middleware
//
//	r.With(auth.Middleware(verifier, auth.ScopeAdmin)).Post("/api/blacklist", h)
//
// Handlers behind the middleware read the verified claims with FromContext.
// Tokens are minted by the "coven-handoff token" subcommand.
package auth
