package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod defines a public type used by authcore APIs.
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SigningMethod string

const (
	// MethodHS256 is an exported constant or variable used by the session core.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS512 is an exported constant or variable used by the session core.
	MethodHS512 SigningMethod = "hs512"
)

// TokenType discriminates access tokens from refresh tokens. It is carried
// in the "type" claim and enforced on verification.
type TokenType string

const (
	// TypeAccess is an exported constant or variable used by the session core.
	TypeAccess TokenType = "access"
	// TypeRefresh is an exported constant or variable used by the session core.
	TypeRefresh TokenType = "refresh"
)

const maxLeeway = 2 * time.Minute

var (
	// ErrTokenInvalid is an exported constant or variable used by the session core.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the session core.
	ErrTokenExpired = errors.New("token expired")
	// ErrClaimMismatch is an exported constant or variable used by the session core.
	ErrClaimMismatch = errors.New("token claim mismatch")
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string

	// Leeway is the clock-skew tolerance on expiry checks. Zero selects the
	// 2-minute default; any negative value disables tolerance entirely.
	Leeway time.Duration
}

// Claims is the decoded claim set of an authcore token. TokenType carries
// the "type" discriminator; jti, sub, iat, exp live in RegisteredClaims.
type Claims struct {
	TokenType string `json:"type"`
	FamilyID  string `json:"fam,omitempty"`
	jwt.RegisteredClaims
}

// JTI returns the unique token identifier (the "jti" claim).
func (c *Claims) JTI() string {
	return c.ID
}

// Manager defines a public type used by authcore APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// The signing secret is injected here at construction; there is no
// package-level key state, so tests can run distinct managers side by side.
type Manager struct {
	config Config
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	switch {
	case cfg.Leeway > maxLeeway:
		return nil, errors.New("invalid leeway configuration")
	case cfg.Leeway < 0:
		// Explicitly disabled skew tolerance.
		cfg.Leeway = 0
	case cfg.Leeway == 0:
		cfg.Leeway = maxLeeway
	}
	switch cfg.SigningMethod {
	case "", MethodHS256:
		cfg.SigningMethod = MethodHS256
	case MethodHS512:
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Issue creates a signed token of the given type with a fresh random jti.
// It returns the compact token string and the jti embedded in it.
func (m *Manager) Issue(subject string, typ TokenType, ttl time.Duration) (string, string, error) {
	return m.issue(subject, typ, ttl, "")
}

func (m *Manager) issue(subject string, typ TokenType, ttl time.Duration, familyID string) (string, string, error) {
	if subject == "" {
		return "", "", errors.New("subject required")
	}
	if ttl <= 0 {
		return "", "", errors.New("ttl must be > 0")
	}

	jti := uuid.NewString()
	now := time.Now()

	claims := Claims{
		TokenType: string(typ),
		FamilyID:  familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.getMethod(), claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", "", err
	}

	return signed, jti, nil
}

// IssueAccess issues an access token for the subject using the configured access TTL.
func (m *Manager) IssueAccess(subject string) (string, string, error) {
	return m.Issue(subject, TypeAccess, m.config.AccessTTL)
}

// IssueRefresh issues a refresh token for the subject using the configured
// refresh TTL. familyID, when non-empty, is embedded as the "fam" claim so
// reuse of an already-consumed token can still identify its rotation chain.
func (m *Manager) IssueRefresh(subject, familyID string) (string, string, error) {
	return m.issue(subject, TypeRefresh, m.config.RefreshTTL, familyID)
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Verify describes the verify operation and its observable behavior.
//
// Verify checks the signature, expiry (with the configured clock-skew
// leeway), and issuer/audience equality when both are configured. It fails
// closed: any check failure yields a typed error and nil claims.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrTokenInvalid)
	}

	return claims, nil
}

// PeekSubject extracts the "sub" claim without verifying the signature. A
// token that does not even decode yields "". The result selects rate-limit
// counters before verification; it must never be trusted for authorization.
func (m *Manager) PeekSubject(tokenStr string) string {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return ""
	}
	return claims.Subject
}

// VerifyTyped verifies the token and additionally enforces the "type"
// claim. A refresh token presented where an access token is expected (or
// the reverse) fails with [ErrClaimMismatch].
func (m *Manager) VerifyTyped(tokenStr string, want TokenType) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != string(want) {
		return nil, fmt.Errorf("%w: token type %q, want %q", ErrClaimMismatch, claims.TokenType, want)
	}
	return claims, nil
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrClaimMismatch, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
