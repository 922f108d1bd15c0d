package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/shopmesh/identity/internal/apperror"
	"github.com/shopmesh/identity/internal/model"
	"github.com/shopmesh/identity/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, first_name, last_name, email, password_hash, api_key, created_at, updated_at`

// Create inserts a new identity.
//
// The uniqueness checks and the insert run inside a single transaction.
// The checks exist to give a deterministic error order (username before
// email); the UNIQUE constraints are the real guarantee. Two creates for
// the same username serialize on the write lock (taken at BEGIN, see
// New): the loser's check sees the winner's committed row and reports
// the conflict. Should an insert still hit a constraint, we map it back
// to the same conflict error; the store never ends up with two rows.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback is a no-op after Commit. Everything before the commit is
	// invisible to other connections, so a failed create leaves no trace.
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, user.Username,
	).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: checking username %q: %w", user.Username, err)
	}
	if n > 0 {
		return apperror.Conflict("username", "Username already exists")
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, user.Email,
	).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: checking email: %w", err)
	}
	if n > 0 {
		return apperror.Conflict("email", "Email already exists")
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, first_name, last_name, email, password_hash, api_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if conflictErr := mapUniqueViolation(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %q: %w", user.Username, err)
	}
	return nil
}

// mapUniqueViolation translates a UNIQUE constraint failure into the
// conflict error the pre-insert checks would have produced. Returns nil
// for unrelated errors.
func mapUniqueViolation(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	if strings.Contains(msg, "users.username") {
		return apperror.Conflict("username", "Username already exists")
	}
	if strings.Contains(msg, "users.email") {
		return apperror.Conflict("email", "Email already exists")
	}
	return nil
}

// GetByUsername retrieves an identity by username.
// Returns apperror.ErrNotFound if no such user exists.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
		"user", username)
}

// GetByAPIKey retrieves the identity whose live key equals the given
// value. The comparison is the column equality itself: exact and
// case-sensitive. The empty string never matches; rows without a key
// store '' and we refuse the lookup outright.
func (db *DB) GetByAPIKey(ctx context.Context, key string) (*model.User, error) {
	if key == "" {
		return nil, apperror.NotFound("api key", "(empty)")
	}
	return db.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE api_key = ?`, key,
		"api key", "(redacted)")
}

func (db *DB) getOne(ctx context.Context, query string, arg any, resource, id string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&u.APIKey,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(resource, id)
		}
		return nil, fmt.Errorf("sqlite: getting %s: %w", resource, err)
	}
	return &u, nil
}

// Exists reports whether an identity with the username exists. It exposes
// existence only; no other attribute of the row leaks through it.
func (db *DB) Exists(ctx context.Context, username string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking existence of %q: %w", username, err)
	}
	return n > 0, nil
}

// List returns all identities ordered by creation time.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(
			&u.ID,
			&u.Username,
			&u.FirstName,
			&u.LastName,
			&u.Email,
			&u.PasswordHash,
			&u.APIKey,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// UpdateAPIKey overwrites the stored key for the identity. A single
// UPDATE, so SQLite's writer serialization makes concurrent rotations
// last-commit-wins with no torn state.
func (db *DB) UpdateAPIKey(ctx context.Context, userID, key string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET api_key = ?, updated_at = ? WHERE id = ?`,
		key, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating api key for user %s: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking api key update for user %s: %w", userID, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}
