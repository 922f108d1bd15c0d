// Package service holds the business rules for the identity flow,
// between the HTTP handlers and the credential store:
//
//	UserHandler (HTTP) → UserService (rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt) + KeyIssuer (tokens)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopmesh/identity/internal/apperror"
	"github.com/shopmesh/identity/internal/auth"
	"github.com/shopmesh/identity/internal/model"
	"github.com/shopmesh/identity/internal/repository"
)

// basicScheme is the credential scheme protected calls present:
// "Authorization: Basic <api_key>". Kept for wire compatibility with the
// services that already call this API, even though the key is not a
// base64 user:password pair.
const basicScheme = "Basic "

// UserService implements registration, login, logout and identity
// resolution.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	keys      *auth.KeyIssuer
	logger    *slog.Logger
}

// compile-time check: the service is the IdentityResolver the auth
// middleware consumes.
var _ auth.IdentityResolver = (*UserService)(nil)

// NewUserService wires a UserService with its dependencies.
func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	keys *auth.KeyIssuer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		keys:      keys,
		logger:    logger,
	}
}

// RegisterInput carries the five registration fields. All are required.
type RegisterInput struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates a new identity.
//
// Validation fails fast on the first empty field. The password is hashed
// before anything touches the store; the store's transactional Create
// guarantees a failed insert leaves no partial state behind.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	for _, f := range []struct{ name, value string }{
		{"username", in.Username},
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
		{"email", in.Email},
		{"password", in.Password},
	} {
		if f.value == "" {
			return nil, apperror.ValidationFailed(f.name, "All fields are required")
		}
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: creating %q: %w", in.Username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login verifies the credentials and, on success, issues a fresh API key
// bound to the identity. The returned key is the only live key: whatever
// a previous login issued stops resolving once this one is stored.
//
// Unknown username and wrong password produce the same error. The two
// cases are distinguished only in debug logs, never in anything returned
// to the caller, so responses can't be used to enumerate usernames.
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("login failed: unknown username", slog.String("username", username))
			return nil, "", apperror.Unauthorized("Not logged in")
		}
		return nil, "", fmt.Errorf("service/user: looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("login failed: bad password", slog.String("username", username))
		return nil, "", apperror.Unauthorized("Not logged in")
	}

	key, err := s.keys.Issue()
	if err != nil {
		return nil, "", fmt.Errorf("service/user: %w", err)
	}
	if err := s.users.UpdateAPIKey(ctx, user.ID, key); err != nil {
		return nil, "", fmt.Errorf("service/user: storing api key for %q: %w", username, err)
	}
	user.APIKey = key

	s.logger.Info("user logged in", slog.String("userID", user.ID), slog.String("username", username))
	return user, key, nil
}

// Authenticate resolves an Authorization header to an identity.
//
// The header must carry the Basic scheme followed by a live API key.
// Missing header, wrong scheme, or a key that matches no identity all
// yield the same unauthorized error; a rejected request learns nothing
// about why it was rejected.
func (s *UserService) Authenticate(ctx context.Context, authHeader string) (*model.User, error) {
	if !strings.HasPrefix(authHeader, basicScheme) {
		return nil, apperror.Unauthorized("Not logged in")
	}
	key := strings.TrimPrefix(authHeader, basicScheme)
	if key == "" {
		return nil, apperror.Unauthorized("Not logged in")
	}

	user, err := s.users.GetByAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Not logged in")
		}
		return nil, fmt.Errorf("service/user: resolving api key: %w", err)
	}
	return user, nil
}

// Exists reports whether a username is taken.
func (s *UserService) Exists(ctx context.Context, username string) (bool, error) {
	ok, err := s.users.Exists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("service/user: checking %q: %w", username, err)
	}
	return ok, nil
}

// List returns the serialized form of every identity. Password hashes and
// API keys never cross this boundary.
func (s *UserService) List(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}

	public := make([]model.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, users[i].Public())
	}
	return public, nil
}
