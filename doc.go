// Package authcore provides the authentication session core for the Revline
// dealership platform: JWT access tokens, rotating refresh tokens with reuse
// detection, a Redis-backed session registry, and rate limiting with
// exponential backoff.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, User). Orchestration state (rate limiting,
// the credential store contract, event publication) lives under internal/
// and is never exported outside the module.
//
// # What this package must NOT do
//
//   - Expose Redis clients or registry key layouts in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder hashes
//     one throwaway password and is otherwise allocation-only).
//   - Reveal whether an email exists: lookup misses and password mismatches
//     both surface as [ErrInvalidCredentials].
package authcore
