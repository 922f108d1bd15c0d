// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered identity.
//
// PasswordHash is a bcrypt digest; the plaintext password is never stored
// and the hash is never compared except through auth.PasswordService.Verify.
// APIKey is the single live bearer token for this identity: empty until the
// first successful login, overwritten on every subsequent login. Because
// there is only one slot, issuing a new key silently invalidates whatever
// key a previous session was holding.
type User struct {
	ID           string    `json:"id"            db:"id"`
	Username     string    `json:"username"      db:"username"`
	FirstName    string    `json:"first_name"    db:"first_name"`
	LastName     string    `json:"last_name"     db:"last_name"`
	Email        string    `json:"email"         db:"email"`
	PasswordHash string    `json:"-"             db:"password_hash"`
	APIKey       string    `json:"-"             db:"api_key"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}

// PublicUser is the serialized form of a User returned by the API.
// It never carries the password hash or the raw API key; the key is
// returned exactly once, in the login response.
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public returns the API-safe serialized form of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
