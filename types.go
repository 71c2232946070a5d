package authcore

import "time"

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string

	// ExpiresIn is the access token's lifetime, reported to clients.
	ExpiresIn time.Duration
}

// User is the public identity record returned by registration and profile
// lookups. It never carries the password hash.
type User struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
}
