package repository

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is an exported constant or variable used by the session core.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is returned when registration collides with an existing email.
	ErrEmailExists = errors.New("email already registered")
)

// User is the identity record owned by the credential store.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepository is the credential store contract the Engine depends on.
type UserRepository interface {
	// Create persists a new user and fills in ID and CreatedAt.
	// A duplicate email yields [ErrEmailExists].
	Create(ctx context.Context, user *User) error

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)

	// UpdatePasswordHash replaces the stored hash, used for transparent
	// parameter upgrades after a successful login.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}
