// Package session provides the Redis-backed refresh-token registry: the durable
// source of truth for which refresh-token identifiers are currently valid.
//
// # Key layout
//
//   - refresh:<jti>                  -> <userID>            (nuclear strategy)
//   - refresh:<jti>:family:<fid>     -> <userID>:<fid>      (family strategy)
//   - family:<fid>                   -> <userID>
//
// Entries carry a TTL matching the refresh token's remaining lifetime and never
// outlive it.
//
// # Rotation atomicity
//
// Consume is a Lua GET+DEL on the resolved key: two concurrent rotation attempts
// on the same jti resolve to exactly one success and one not-found, never two
// successes.
//
// # What this package must NOT do
//
//   - Parse or create JWTs (the jwt package owns token material).
//   - Decide how reuse is punished. That is the [Strategy] selected by the Engine.
package session
