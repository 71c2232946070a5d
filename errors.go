package authcore

import (
	"errors"

	"github.com/revline/authcore/internal/rate"
)

var (
	// ErrUnauthorized is an exported constant or variable used by the authentication engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailExists is an exported constant or variable used by the authentication engine.
	ErrEmailExists = errors.New("email already registered")
	// ErrRefreshReuse is an exported constant or variable used by the authentication engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidEmail is an exported constant or variable used by the authentication engine.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrConfiguration marks fatal startup-time misconfiguration. The process
	// must refuse to start rather than run insecurely.
	ErrConfiguration = errors.New("configuration error")
)

// ErrRateLimited is the sentinel for blocked requests. Use errors.As with
// [*rate.RateLimitError] to read the Retry-After duration.
var ErrRateLimited = rate.ErrRateLimited
