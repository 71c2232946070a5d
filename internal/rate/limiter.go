package rate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is the sentinel matched by errors.Is for any blocked request.
var ErrRateLimited = errors.New("rate limited")

const (
	keyPrefix     = "rate_limit:"
	penaltySuffix = ":penalty"

	// penaltyTTLFactor keeps violation history around long enough for the
	// backoff to escalate across consecutive windows.
	penaltyTTLFactor = 10

	maxPenaltyMultiplier = 8
)

// Scope names a client-identity dimension a counter is keyed by.
type Scope string

const (
	// ScopeIP is an exported constant or variable used by the session core.
	ScopeIP Scope = "ip"
	// ScopeUser is an exported constant or variable used by the session core.
	ScopeUser Scope = "user"
)

// Rule is one counter to enforce: a scope value with its budget per window.
type Rule struct {
	Scope  Scope
	Value  string
	Limit  int
	Window time.Duration
}

// RateLimitError reports a blocked request and how long the client must wait.
// It unwraps to [ErrRateLimited].
type RateLimitError struct {
	Scope      Scope
	RetryAfter time.Duration
}

// Error describes the error operation and its observable behavior.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s scope), retry after %s", e.Scope, e.RetryAfter)
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Limiter enforces fixed-window counters with exponential backoff penalties,
// backed by Redis.
//
// Limiter instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Limiter struct {
	redis  redis.UniversalClient
	logger *slog.Logger
}

// New creates a [Limiter] backed by the given Redis client. A nil logger
// falls back to slog.Default.
func New(client redis.UniversalClient, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{redis: client, logger: logger}
}

// Check increments the counter for one rule and reports whether the request
// is allowed. When the increment pushes the count past the limit it records a
// backoff penalty, extends the block, and returns a [*RateLimitError].
//
// Redis unavailability fails OPEN: the request is allowed and a warning is
// logged. Locking every user out during a store outage is the worse failure.
func (l *Limiter) Check(ctx context.Context, endpoint string, rule Rule) error {
	if rule.Value == "" || rule.Limit <= 0 {
		return nil
	}

	key := counterKey(endpoint, rule)
	count, err := l.incrementWithTTL(ctx, key, rule.Window)
	if err != nil {
		l.failOpen(endpoint, rule, err)
		return nil
	}
	if count <= int64(rule.Limit) {
		return nil
	}

	multiplier, err := l.bumpPenalty(ctx, key+penaltySuffix, rule.Window)
	if err != nil {
		l.failOpen(endpoint, rule, err)
		multiplier = 1
	}

	retryAfter := rule.Window * time.Duration(multiplier)
	// Extend the counter so the block actually lasts the penalized duration,
	// not just the rest of the original window.
	if err := l.redis.Expire(ctx, key, retryAfter).Err(); err != nil {
		l.failOpen(endpoint, rule, err)
	}

	return &RateLimitError{Scope: rule.Scope, RetryAfter: retryAfter}
}

// CheckAll enforces several rules for one endpoint; the first rule to block
// determines the response, so the stricter budget wins.
func (l *Limiter) CheckAll(ctx context.Context, endpoint string, rules ...Rule) error {
	for _, rule := range rules {
		if err := l.Check(ctx, endpoint, rule); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the counter for one rule. Called after a successful login so
// earlier failed attempts stop counting. The penalty history is kept: a
// client that already earned escalated blocks does not shed them by logging
// in to an account it controls.
func (l *Limiter) Reset(ctx context.Context, endpoint string, rule Rule) error {
	if rule.Value == "" {
		return nil
	}
	if err := l.redis.Del(ctx, counterKey(endpoint, rule)).Err(); err != nil {
		l.failOpen(endpoint, rule, err)
	}
	return nil
}

func counterKey(endpoint string, rule Rule) string {
	return keyPrefix + endpoint + ":" + string(rule.Scope) + ":" + rule.Value
}

// Fixed-window semantics: set TTL only for the first hit in the window.
func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// bumpPenalty advances the violation counter and returns the effective block
// multiplier: 1x, 2x, 4x, then flat at [maxPenaltyMultiplier]. The penalty TTL
// is re-armed on every violation so the history survives escalating blocks.
func (l *Limiter) bumpPenalty(ctx context.Context, key string, window time.Duration) (int64, error) {
	violations, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 1, err
	}
	if err := l.redis.Expire(ctx, key, penaltyTTLFactor*window).Err(); err != nil {
		return 1, err
	}

	multiplier := int64(1) << (violations - 1)
	if violations > 4 || multiplier > maxPenaltyMultiplier {
		multiplier = maxPenaltyMultiplier
	}
	return multiplier, nil
}

func (l *Limiter) failOpen(endpoint string, rule Rule, err error) {
	l.logger.Warn("rate limiter store unavailable, allowing request",
		"endpoint", endpoint,
		"scope", string(rule.Scope),
		"error", err,
	)
}
