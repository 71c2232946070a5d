package authcore

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/revline/authcore/session"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT        JWTConfig
	Password   PasswordConfig
	RateLimit  RateLimitConfig
	Session    SessionConfig
	Cookie     CookieConfig
	Production bool
	LogLevel   string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	Secret        string
	SigningMethod string // "hs256" (default) or "hs512"
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string

	// Leeway is the clock-skew tolerance on token expiry checks. Zero
	// selects the 2-minute default; a negative value disables tolerance.
	Leeway time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// Budget is one fixed-window allowance.
type Budget struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig defines a public type used by authcore APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	LoginPerIP     Budget
	RegisterPerIP  Budget
	RefreshPerIP   Budget
	RefreshPerUser Budget
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	// RotationStrategy selects the reuse response: "nuclear" denies the
	// replayed request only, "family" revokes the whole rotation chain.
	RotationStrategy string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the refresh-token cookie set by the HTTP layer.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     60 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Leeway:        2 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			LoginPerIP:     Budget{Limit: 5, Window: time.Minute},
			RegisterPerIP:  Budget{Limit: 5, Window: time.Minute},
			RefreshPerIP:   Budget{Limit: 60, Window: time.Minute},
			RefreshPerUser: Budget{Limit: 10, Window: time.Minute},
		},
		Session: SessionConfig{
			RotationStrategy: session.StrategyNuclear,
		},
		Cookie: CookieConfig{
			Name:     "revline_refresh",
			Path:     "/api/v1/auth",
			SameSite: http.SameSiteLaxMode,
		},
		LogLevel: "info",
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: JWT Secret is required", ErrConfiguration)
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "hs512" {
		return fmt.Errorf("%w: unsupported JWT signing method %q", ErrConfiguration, c.JWT.SigningMethod)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("%w: JWT AccessTTL must be > 0", ErrConfiguration)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("%w: JWT RefreshTTL must be > 0", ErrConfiguration)
	}
	if c.JWT.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: JWT Leeway must not exceed 2m", ErrConfiguration)
	}

	// Issuer/audience checks are skipped when unset, which is acceptable in
	// development only. Production refuses to start without them.
	if c.Production {
		if c.JWT.Issuer == "" || c.JWT.Audience == "" {
			return fmt.Errorf("%w: production mode requires JWT Issuer and Audience", ErrConfiguration)
		}
		if !c.Cookie.Secure {
			return fmt.Errorf("%w: production mode requires Secure refresh cookie", ErrConfiguration)
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return fmt.Errorf("%w: Password Memory must be >= 8192 KB", ErrConfiguration)
	}
	if c.Password.Time < 1 {
		return fmt.Errorf("%w: Password Time must be >= 1", ErrConfiguration)
	}
	if c.Password.Parallelism < 1 {
		return fmt.Errorf("%w: Password Parallelism must be >= 1", ErrConfiguration)
	}
	if c.Password.SaltLength < 16 {
		return fmt.Errorf("%w: Password SaltLength must be >= 16", ErrConfiguration)
	}
	if c.Password.KeyLength < 16 {
		return fmt.Errorf("%w: Password KeyLength must be >= 16", ErrConfiguration)
	}

	// Rate limits
	for _, b := range []struct {
		name   string
		budget Budget
	}{
		{"LoginPerIP", c.RateLimit.LoginPerIP},
		{"RegisterPerIP", c.RateLimit.RegisterPerIP},
		{"RefreshPerIP", c.RateLimit.RefreshPerIP},
		{"RefreshPerUser", c.RateLimit.RefreshPerUser},
	} {
		if b.budget.Limit <= 0 {
			return fmt.Errorf("%w: RateLimit %s Limit must be > 0", ErrConfiguration, b.name)
		}
		if b.budget.Window <= 0 {
			return fmt.Errorf("%w: RateLimit %s Window must be > 0", ErrConfiguration, b.name)
		}
	}

	// Session
	switch c.Session.RotationStrategy {
	case session.StrategyNuclear, session.StrategyFamily:
	default:
		return fmt.Errorf("%w: unknown rotation strategy %q", ErrConfiguration, c.Session.RotationStrategy)
	}

	// Cookie
	if c.Cookie.Name == "" {
		return fmt.Errorf("%w: Cookie Name is required", ErrConfiguration)
	}
	if c.Cookie.Path == "" {
		return fmt.Errorf("%w: Cookie Path is required", ErrConfiguration)
	}

	return nil
}

// ConfigFromEnv builds a Config from environment variables, starting from
// the defaults. Unset variables keep their default value.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	cfg.JWT.Secret = envString("AUTH_JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.SigningMethod = envString("AUTH_JWT_SIGNING_METHOD", cfg.JWT.SigningMethod)
	cfg.JWT.AccessTTL = envDuration("AUTH_ACCESS_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = envDuration("AUTH_REFRESH_TTL", cfg.JWT.RefreshTTL)
	cfg.JWT.Issuer = envString("AUTH_JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = envString("AUTH_JWT_AUDIENCE", cfg.JWT.Audience)
	cfg.JWT.Leeway = envDuration("AUTH_JWT_LEEWAY", cfg.JWT.Leeway)

	cfg.Production = envBool("AUTH_PRODUCTION", cfg.Production)
	cfg.LogLevel = envString("AUTH_LOG_LEVEL", cfg.LogLevel)

	cfg.Session.RotationStrategy = envString("AUTH_ROTATION_STRATEGY", cfg.Session.RotationStrategy)

	cfg.RateLimit.LoginPerIP = envBudget("AUTH_RATE_LOGIN_IP", cfg.RateLimit.LoginPerIP)
	cfg.RateLimit.RegisterPerIP = envBudget("AUTH_RATE_REGISTER_IP", cfg.RateLimit.RegisterPerIP)
	cfg.RateLimit.RefreshPerIP = envBudget("AUTH_RATE_REFRESH_IP", cfg.RateLimit.RefreshPerIP)
	cfg.RateLimit.RefreshPerUser = envBudget("AUTH_RATE_REFRESH_USER", cfg.RateLimit.RefreshPerUser)

	cfg.Cookie.Name = envString("AUTH_COOKIE_NAME", cfg.Cookie.Name)
	cfg.Cookie.Path = envString("AUTH_COOKIE_PATH", cfg.Cookie.Path)
	cfg.Cookie.Domain = envString("AUTH_COOKIE_DOMAIN", cfg.Cookie.Domain)
	cfg.Cookie.Secure = envBool("AUTH_COOKIE_SECURE", cfg.Cookie.Secure || cfg.Production)
	cfg.Cookie.SameSite = envSameSite("AUTH_COOKIE_SAMESITE", cfg.Cookie.SameSite)

	cfg.Password.UpgradeOnLogin = envBool("AUTH_PASSWORD_UPGRADE_ON_LOGIN", cfg.Password.UpgradeOnLogin)

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// envBudget parses "limit/window", e.g. "5/60s".
func envBudget(key string, fallback Budget) Budget {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	var limit int
	var window string
	if _, err := fmt.Sscanf(v, "%d/%s", &limit, &window); err != nil {
		return fallback
	}
	parsed, err := time.ParseDuration(window)
	if err != nil || limit <= 0 || parsed <= 0 {
		return fallback
	}
	return Budget{Limit: limit, Window: parsed}
}

func envSameSite(key string, fallback http.SameSite) http.SameSite {
	switch os.Getenv(key) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return fallback
	}
}
