package session

import (
	"context"
	"fmt"
	"time"
)

// Rotation strategy names accepted by [NewStrategy].
const (
	StrategyNuclear = "nuclear"
	StrategyFamily  = "family"
)

// Strategy is the rotation policy selected once at Engine construction.
// It decides how refresh entries are keyed and what happens when reuse of
// an already-consumed token is detected.
type Strategy interface {
	Name() string

	// Begin starts a new rotation chain at login. The family strategy mints
	// a family id; the nuclear strategy has no chain state and returns "".
	Begin(ctx context.Context, userID string, ttl time.Duration) (string, error)

	// Register records a freshly issued refresh jti as live.
	Register(ctx context.Context, jti, userID, familyID string, ttl time.Duration) error

	// Consume atomically checks and deletes the entry for jti.
	// ErrSessionNotFound means the token was already consumed, i.e. reuse.
	Consume(ctx context.Context, jti string) (*Entry, error)

	// OnReuse reacts to a detected reuse of jti.
	OnReuse(ctx context.Context, jti, familyID string) error

	// Revoke best-effort deletes the entry for jti (logout).
	Revoke(ctx context.Context, jti string) error
}

// NewStrategy selects a [Strategy] by configuration name.
func NewStrategy(name string, store *Store) (Strategy, error) {
	switch name {
	case "", StrategyNuclear:
		return &Nuclear{store: store}, nil
	case StrategyFamily:
		return &Family{store: store}, nil
	default:
		return nil, fmt.Errorf("unknown refresh rotation strategy %q", name)
	}
}

// Nuclear is the minimal rotation policy: a replayed token is denied and its
// (already deleted) entry needs no further action. Sibling tokens issued to
// the same user stay live until their natural TTL.
type Nuclear struct {
	store *Store
}

// Name describes the name operation and its observable behavior.
func (n *Nuclear) Name() string { return StrategyNuclear }

// Begin describes the begin operation and its observable behavior.
func (n *Nuclear) Begin(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return "", nil
}

// Register describes the register operation and its observable behavior.
func (n *Nuclear) Register(ctx context.Context, jti, userID, familyID string, ttl time.Duration) error {
	return n.store.Create(ctx, jti, userID, ttl)
}

// Consume describes the consume operation and its observable behavior.
func (n *Nuclear) Consume(ctx context.Context, jti string) (*Entry, error) {
	return n.store.Consume(ctx, jti)
}

// OnReuse describes the onreuse operation and its observable behavior.
func (n *Nuclear) OnReuse(ctx context.Context, jti, familyID string) error {
	// The consumed entry is already gone; denial of this request is the
	// whole response. Siblings expire on their own TTL.
	return nil
}

// Revoke describes the revoke operation and its observable behavior.
func (n *Nuclear) Revoke(ctx context.Context, jti string) error {
	return n.store.Delete(ctx, jti)
}

// Family groups every refresh jti descended from one login under a family
// id. Reuse of any consumed token in the chain revokes the whole family,
// limiting the blast radius to one device's session chain.
type Family struct {
	store *Store
}

// Name describes the name operation and its observable behavior.
func (f *Family) Name() string { return StrategyFamily }

// Begin describes the begin operation and its observable behavior.
func (f *Family) Begin(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return f.store.CreateFamily(ctx, userID, ttl)
}

// Register describes the register operation and its observable behavior.
func (f *Family) Register(ctx context.Context, jti, userID, familyID string, ttl time.Duration) error {
	if familyID == "" {
		return fmt.Errorf("family strategy requires a family id")
	}
	return f.store.CreateInFamily(ctx, jti, userID, familyID, ttl)
}

// Consume describes the consume operation and its observable behavior.
func (f *Family) Consume(ctx context.Context, jti string) (*Entry, error) {
	return f.store.ConsumeInFamily(ctx, jti)
}

// OnReuse describes the onreuse operation and its observable behavior.
func (f *Family) OnReuse(ctx context.Context, jti, familyID string) error {
	if familyID == "" {
		// Token predates family tracking or carries no fam claim; nothing
		// to widen the revocation to.
		return nil
	}
	return f.store.RevokeFamily(ctx, familyID)
}

// Revoke describes the revoke operation and its observable behavior.
func (f *Family) Revoke(ctx context.Context, jti string) error {
	return f.store.DeleteInFamily(ctx, jti)
}
