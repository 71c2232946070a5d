package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"time"

	"github.com/revline/authcore/internal/events"
	"github.com/revline/authcore/internal/observability"
	"github.com/revline/authcore/internal/rate"
	"github.com/revline/authcore/internal/repository"
	"github.com/revline/authcore/jwt"
	"github.com/revline/authcore/password"
	"github.com/revline/authcore/session"
)

// Endpoint names used for rate-limit keys and metrics labels.
const (
	endpointLogin    = "login"
	endpointRegister = "register"
	endpointRefresh  = "refresh"
)

// Engine is the session manager: it orchestrates registration, login, token
// refresh, and logout, and owns the reuse-detection state machine. Engine
// methods are safe to call from multiple goroutines after [Builder.Build].
type Engine struct {
	config   Config
	logger   *slog.Logger
	users    repository.UserRepository
	tokens   *jwt.Manager
	strategy session.Strategy
	limiter  *rate.Limiter
	hasher   *password.Hasher
	events   events.Publisher

	// dummyHash is verified against when an email lookup misses, so unknown
	// emails cost the same as wrong passwords.
	dummyHash string
}

// Register creates a new user under the register rate limit.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) Register(ctx context.Context, email, pass, name string) (*User, error) {
	ip := clientIPFromContext(ctx)
	if err := e.checkLimit(ctx, endpointRegister, e.ipRule(ip, e.config.RateLimit.RegisterPerIP)); err != nil {
		return nil, err
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	record := &repository.User{Email: email, Name: name, PasswordHash: hash}
	if err := e.users.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	e.events.Publish(ctx, events.Event{
		Type:     events.TypeUserRegistered,
		UserID:   formatID(record.ID),
		ClientIP: ip,
	})
	e.logger.Info("user registered", "user_id", record.ID)

	return publicUser(record), nil
}

// Login verifies credentials and issues a fresh access+refresh pair under
// the login rate limit. Unknown emails and wrong passwords both collapse to
// [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	ip := clientIPFromContext(ctx)
	loginRule := e.ipRule(ip, e.config.RateLimit.LoginPerIP)
	if err := e.checkLimit(ctx, endpointLogin, loginRule); err != nil {
		return nil, err
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = e.hasher.Verify(pass, e.dummyHash)
			observability.LoginAttempts.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		observability.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	e.maybeUpgradeHash(ctx, user, pass)
	_ = e.limiter.Reset(ctx, endpointLogin, loginRule)

	subject := formatID(user.ID)
	familyID, err := e.strategy.Begin(ctx, subject, e.tokens.RefreshTTL())
	if err != nil {
		return nil, fmt.Errorf("begin session chain: %w", err)
	}

	pair, err := e.issueTokens(ctx, subject, familyID)
	if err != nil {
		return nil, err
	}

	observability.LoginAttempts.WithLabelValues("success").Inc()
	e.events.Publish(ctx, events.Event{
		Type:     events.TypeUserLogin,
		UserID:   subject,
		ClientIP: ip,
		FamilyID: familyID,
	})
	e.logger.Info("user logged in", "user_id", user.ID)

	return pair, nil
}

// Refresh rotates a refresh token: the presented jti is atomically consumed
// and a new access+refresh pair is issued. A consumed or unknown jti is a
// reuse event and triggers the configured reuse strategy.
func (e *Engine) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	ip := clientIPFromContext(ctx)

	// The limiter runs before any token check so floods of garbage cookies
	// still draw down the IP budget. The user scope is keyed by the
	// unverified sub claim; it only selects a counter, never authorizes.
	err := e.checkLimit(ctx, endpointRefresh,
		e.ipRule(ip, e.config.RateLimit.RefreshPerIP),
		rate.Rule{
			Scope:  rate.ScopeUser,
			Value:  e.tokens.PeekSubject(presented),
			Limit:  e.config.RateLimit.RefreshPerUser.Limit,
			Window: e.config.RateLimit.RefreshPerUser.Window,
		},
	)
	if err != nil {
		return nil, err
	}

	claims, err := e.tokens.VerifyTyped(presented, jwt.TypeRefresh)
	if err != nil {
		observability.RefreshRotations.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	entry, err := e.strategy.Consume(ctx, claims.JTI())
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		e.handleReuse(ctx, claims, ip)
		observability.RefreshRotations.WithLabelValues("reuse").Inc()
		return nil, ErrRefreshReuse
	case err != nil:
		// Registry down: fail closed. A refresh we cannot confirm live must
		// not be honored.
		observability.RefreshRotations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if entry.UserID != claims.Subject {
		e.logger.Warn("refresh token subject disagrees with registry owner",
			"jti", claims.JTI(),
			"subject", claims.Subject,
		)
		observability.RefreshRotations.WithLabelValues("mismatch").Inc()
		return nil, ErrUnauthorized
	}

	pair, err := e.issueTokens(ctx, claims.Subject, entry.FamilyID)
	if err != nil {
		return nil, err
	}

	observability.RefreshRotations.WithLabelValues("rotated").Inc()
	return pair, nil
}

// Logout best-effort revokes the presented refresh token. It never fails:
// an invalid token or a registry error still results in the caller clearing
// the client-side cookie.
func (e *Engine) Logout(ctx context.Context, presented string) {
	claims, err := e.tokens.VerifyTyped(presented, jwt.TypeRefresh)
	if err != nil {
		return
	}

	if err := e.strategy.Revoke(ctx, claims.JTI()); err != nil {
		e.logger.Warn("logout session cleanup failed", "jti", claims.JTI(), "error", err)
		return
	}
	e.logger.Info("user logged out", "user_id", claims.Subject)
}

// VerifyAccess validates an access token: signature, expiry, optional
// issuer/audience, and the type="access" claim. Stateless: no registry
// lookup, so revocation lag is capped at the access TTL.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := e.tokens.VerifyTyped(token, jwt.TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims, nil
}

// UserByID resolves a token subject to its public user record.
func (e *Engine) UserByID(ctx context.Context, subject string) (*User, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return nil, ErrUnauthorized
	}

	record, err := e.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return publicUser(record), nil
}

// Cookie reports the refresh-cookie settings for the HTTP layer.
func (e *Engine) Cookie() CookieConfig {
	return e.config.Cookie
}

// RefreshTTL reports the configured refresh-token lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	return e.tokens.RefreshTTL()
}

// issueTokens registers a fresh refresh jti and issues the pair. The old jti
// (when rotating) is already consumed before this runs.
func (e *Engine) issueTokens(ctx context.Context, subject, familyID string) (*TokenPair, error) {
	refreshToken, jti, err := e.tokens.IssueRefresh(subject, familyID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := e.strategy.Register(ctx, jti, subject, familyID, e.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("register refresh session: %w", err)
	}

	accessToken, _, err := e.tokens.IssueAccess(subject)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    e.tokens.AccessTTL(),
	}, nil
}

func (e *Engine) handleReuse(ctx context.Context, claims *jwt.Claims, ip string) {
	if err := e.strategy.OnReuse(ctx, claims.JTI(), claims.FamilyID); err != nil {
		e.logger.Error("reuse response failed",
			"jti", claims.JTI(),
			"family_id", claims.FamilyID,
			"error", err,
		)
	}

	e.logger.Warn("refresh token reuse detected",
		"user_id", claims.Subject,
		"jti", claims.JTI(),
		"strategy", e.strategy.Name(),
	)

	e.events.Publish(ctx, events.Event{
		Type:     events.TypeRefreshReuse,
		UserID:   claims.Subject,
		ClientIP: ip,
		FamilyID: claims.FamilyID,
	})
	if e.strategy.Name() == session.StrategyFamily && claims.FamilyID != "" {
		e.events.Publish(ctx, events.Event{
			Type:     events.TypeFamilyRevoked,
			UserID:   claims.Subject,
			ClientIP: ip,
			FamilyID: claims.FamilyID,
		})
	}
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user *repository.User, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	upgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		e.logger.Warn("password hash upgrade failed", "user_id", user.ID, "error", err)
	}
}

func (e *Engine) checkLimit(ctx context.Context, endpoint string, rules ...rate.Rule) error {
	err := e.limiter.CheckAll(ctx, endpoint, rules...)
	var rle *rate.RateLimitError
	if errors.As(err, &rle) {
		observability.RateLimited.WithLabelValues(endpoint, string(rle.Scope)).Inc()
	}
	return err
}

func (e *Engine) ipRule(ip string, budget Budget) rate.Rule {
	return rate.Rule{
		Scope:  rate.ScopeIP,
		Value:  ip,
		Limit:  budget.Limit,
		Window: budget.Window,
	}
}

func publicUser(record *repository.User) *User {
	return &User{
		ID:        record.ID,
		Email:     record.Email,
		Name:      record.Name,
		CreatedAt: record.CreatedAt,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
