package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewStrategySelection(t *testing.T) {
	store, _ := newTestStore(t)

	s, err := NewStrategy("", store)
	require.NoError(t, err)
	require.Equal(t, StrategyNuclear, s.Name())

	s, err = NewStrategy(StrategyFamily, store)
	require.NoError(t, err)
	require.Equal(t, StrategyFamily, s.Name())

	_, err = NewStrategy("scorched-earth", store)
	require.Error(t, err)
}

func TestNuclearReuseLeavesSiblingsAlive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	strategy, err := NewStrategy(StrategyNuclear, store)
	require.NoError(t, err)

	fid, err := strategy.Begin(ctx, "user-1", time.Hour)
	require.NoError(t, err)
	require.Empty(t, fid)

	require.NoError(t, strategy.Register(ctx, "jti-1", "user-1", "", time.Hour))
	require.NoError(t, strategy.Register(ctx, "jti-2", "user-1", "", time.Hour))

	_, err = strategy.Consume(ctx, "jti-1")
	require.NoError(t, err)

	// Replay of jti-1: denied, OnReuse is a no-op, sibling stays valid.
	_, err = strategy.Consume(ctx, "jti-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, strategy.OnReuse(ctx, "jti-1", ""))

	entry, err := strategy.Consume(ctx, "jti-2")
	require.NoError(t, err)
	require.Equal(t, "user-1", entry.UserID)
}

func TestFamilyReuseRevokesWholeChain(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	strategy, err := NewStrategy(StrategyFamily, store)
	require.NoError(t, err)

	fid, err := strategy.Begin(ctx, "user-2", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, fid)

	require.NoError(t, strategy.Register(ctx, "jti-1", "user-2", fid, time.Hour))
	require.NoError(t, strategy.Register(ctx, "jti-2", "user-2", fid, time.Hour))

	_, err = strategy.Consume(ctx, "jti-1")
	require.NoError(t, err)

	_, err = strategy.Consume(ctx, "jti-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, strategy.OnReuse(ctx, "jti-1", fid))

	// The sibling in the same family is gone too.
	_, err = strategy.Consume(ctx, "jti-2")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.FamilyOwner(ctx, fid)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFamilyRegisterRequiresFamilyID(t *testing.T) {
	store, _ := newTestStore(t)

	strategy, err := NewStrategy(StrategyFamily, store)
	require.NoError(t, err)

	err = strategy.Register(context.Background(), "jti-1", "user-3", "", time.Hour)
	require.Error(t, err)
}
