package authcore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/revline/authcore/internal/rate"
	"github.com/revline/authcore/internal/repository"
	"github.com/revline/authcore/jwt"
	"github.com/revline/authcore/session"
)

// memoryUsers is an in-memory credential store for engine tests.
type memoryUsers struct {
	mu      sync.Mutex
	seq     int64
	byEmail map[string]*repository.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: make(map[string]*repository.User)}
}

func (m *memoryUsers) Create(ctx context.Context, user *repository.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[user.Email]; exists {
		return repository.ErrEmailExists
	}
	m.seq++
	user.ID = m.seq
	user.CreatedAt = time.Now()

	clone := *user
	m.byEmail[user.Email] = &clone
	return nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *memoryUsers) GetByID(ctx context.Context, id int64) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.byEmail {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memoryUsers) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.byEmail {
		if user.ID == id {
			user.PasswordHash = hash
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = "engine-test-secret-0123456789abcdef"
	// Minimum hashing cost keeps the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUsers(newMemoryUsers()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	require.NoError(t, err)

	return engine, mr
}

func mustRegisterAndLogin(t *testing.T, e *Engine, ctx context.Context, email string) *TokenPair {
	t.Helper()

	_, err := e.Register(ctx, email, "Secret123!", "Test User")
	require.NoError(t, err)

	pair, err := e.Login(ctx, email, "Secret123!")
	require.NoError(t, err)
	return pair
}

func TestRegister(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.1")

	user, err := engine.Register(ctx, "alice@example.com", "Secret123!", "Alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.Equal(t, "alice@example.com", user.Email)

	_, err = engine.Register(ctx, "alice@example.com", "Secret123!", "Alice Again")
	require.ErrorIs(t, err, ErrEmailExists)

	_, err = engine.Register(ctx, "not-an-email", "Secret123!", "Bob")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = engine.Register(ctx, "bob@example.com", "short", "Bob")
	require.ErrorIs(t, err, ErrPasswordPolicy)
}

func TestLogin(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.2")

	_, err := engine.Register(ctx, "alice@example.com", "Secret123!", "Alice")
	require.NoError(t, err)

	pair, err := engine.Login(ctx, "alice@example.com", "Secret123!")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, 60*time.Minute, pair.ExpiresIn)

	claims, err := engine.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "1", claims.Subject)
	require.Equal(t, string(jwt.TypeAccess), claims.TokenType)

	_, err = engine.Login(ctx, "alice@example.com", "WrongPass1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown emails collapse to the same error as wrong passwords.
	_, err = engine.Login(ctx, "nobody@example.com", "Secret123!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotation(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.3")

	pair := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed token is dead; replaying it is a reuse event.
	_, err = engine.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshReuse)

	// The rotated token is unaffected by the replay in nuclear mode.
	_, err = engine.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.4")

	pair := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		reuses int
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrRefreshReuse):
				reuses++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, wins, "exactly one concurrent refresh must win")
	require.Equal(t, workers-1, reuses)
}

func TestFamilyReuseRevokesChain(t *testing.T) {
	engine, _ := newTestEngine(t, func(c *Config) {
		c.Session.RotationStrategy = session.StrategyFamily
	})
	ctx := WithClientIP(context.Background(), "10.1.0.5")

	first := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	second, err := engine.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	// Replaying the consumed token revokes the whole family.
	_, err = engine.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshReuse)

	_, err = engine.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshReuse)
}

func TestNuclearReuseLeavesOtherSessionsAlive(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.6")

	_, err := engine.Register(ctx, "alice@example.com", "Secret123!", "Alice")
	require.NoError(t, err)

	sessionA, err := engine.Login(ctx, "alice@example.com", "Secret123!")
	require.NoError(t, err)
	sessionB, err := engine.Login(ctx, "alice@example.com", "Secret123!")
	require.NoError(t, err)

	_, err = engine.Refresh(ctx, sessionA.RefreshToken)
	require.NoError(t, err)
	_, err = engine.Refresh(ctx, sessionA.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshReuse)

	// The independent session survives.
	_, err = engine.Refresh(ctx, sessionB.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.7")

	pair := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	engine.Logout(ctx, pair.RefreshToken)
	engine.Logout(ctx, pair.RefreshToken)
	engine.Logout(ctx, "garbage-token")

	// The revoked token can no longer refresh.
	_, err := engine.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshReuse)
}

func TestLoginRateLimit(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.8")

	_, err := engine.Register(ctx, "alice@example.com", "Secret123!", "Alice")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := engine.Login(ctx, "alice@example.com", "WrongPass1!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = engine.Login(ctx, "alice@example.com", "WrongPass1!")
	require.ErrorIs(t, err, ErrRateLimited)

	var rle *rate.RateLimitError
	require.ErrorAs(t, err, &rle)
	require.Equal(t, time.Minute, rle.RetryAfter)

	// A different IP has its own budget.
	otherCtx := WithClientIP(context.Background(), "10.1.0.99")
	_, err = engine.Login(otherCtx, "alice@example.com", "Secret123!")
	require.NoError(t, err)
}

func TestRefreshRateLimitsInvalidTokens(t *testing.T) {
	engine, _ := newTestEngine(t, func(c *Config) {
		c.RateLimit.RefreshPerIP = Budget{Limit: 3, Window: time.Minute}
	})
	ctx := WithClientIP(context.Background(), "10.1.0.9")

	// Undecodable cookies still count against the IP budget, so a flood of
	// garbage cannot probe the verifier without bound.
	for i := 0; i < 3; i++ {
		_, err := engine.Refresh(ctx, "not-a-jwt")
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err := engine.Refresh(ctx, "not-a-jwt")
	require.ErrorIs(t, err, ErrRateLimited)

	// A different IP is unaffected.
	_, err = engine.Refresh(WithClientIP(context.Background(), "10.1.0.10"), "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshSubjectMismatchRejected(t *testing.T) {
	engine, mr := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.9")

	pair := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	claims, err := engine.tokens.VerifyTyped(pair.RefreshToken, jwt.TypeRefresh)
	require.NoError(t, err)

	// Registry and claims disagreeing on the owner is treated as tampering.
	require.NoError(t, mr.Set("refresh:"+claims.JTI(), "999"))

	_, err = engine.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrRefreshReuse)
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.10")

	pair := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	_, err := engine.VerifyAccess(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = engine.VerifyAccess(ctx, "garbage")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshFailsClosedWhenRegistryDown(t *testing.T) {
	engine, mr := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.11")

	pair := mustRegisterAndLogin(t, engine, ctx, "alice@example.com")

	mr.Close()

	_, err := engine.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrRefreshReuse)
}

func TestUserByID(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "10.1.0.12")

	registered, err := engine.Register(ctx, "alice@example.com", "Secret123!", "Alice")
	require.NoError(t, err)

	user, err := engine.UserByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, registered.Email, user.Email)

	_, err = engine.UserByID(ctx, "999")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = engine.UserByID(ctx, "not-a-number")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestBuilderRequirements(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := New().WithConfig(testEngineConfig()).WithUsers(newMemoryUsers()).Build()
	require.Error(t, err, "redis required")

	_, err = New().WithConfig(testEngineConfig()).WithRedis(client).Build()
	require.Error(t, err, "users required")

	b := New().WithConfig(testEngineConfig()).WithRedis(client).WithUsers(newMemoryUsers())
	_, err = b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	require.Error(t, err, "builder reuse")
}
