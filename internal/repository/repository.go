// Package repository declares the storage interfaces consumed by the
// service layer. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/shopmesh/identity/internal/model"
)

// UserRepository is the credential store: the single source of truth for
// identities and their live API keys.
type UserRepository interface {
	// Create persists a new identity. The check-then-insert runs inside
	// one transaction and the username check happens before the email
	// check, so a double collision reports the username conflict.
	Create(ctx context.Context, user *model.User) error

	// GetByUsername returns the identity with the given username, or
	// apperror.ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// GetByAPIKey returns the identity whose live key exactly equals the
	// given value, or apperror.ErrNotFound. No partial or case-insensitive
	// matching.
	GetByAPIKey(ctx context.Context, key string) (*model.User, error)

	// Exists reports whether an identity with the username exists.
	Exists(ctx context.Context, username string) (bool, error)

	// List returns all identities.
	List(ctx context.Context) ([]model.User, error)

	// UpdateAPIKey overwrites the stored key for the identity. Whichever
	// of two concurrent rotations commits last wins; readers always see
	// one consistent value.
	UpdateAPIKey(ctx context.Context, userID, key string) error
}
