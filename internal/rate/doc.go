// Package rate provides the Redis-backed rate limiter for security-sensitive
// authentication endpoints.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys follow
//
//	rate_limit:<endpoint>:<scope>:<value>
//
// with a companion :penalty key tracking repeated violations. Each violation
// within the penalty TTL doubles the effective block duration up to an 8x cap.
//
// # Failure mode
//
// The limiter fails open: if Redis is unreachable the request is allowed and
// a warning is logged. The session registry, not the limiter, is the
// fail-closed layer.
//
// # What this package must NOT do
//
//   - Decide which endpoints get which budgets (the Engine owns policy).
//   - Be imported outside the authcore module.
package rate
