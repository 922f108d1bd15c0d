// Package auth provides the credential primitives for the user service:
// bcrypt password hashing and opaque API key issuance, plus the HTTP
// middleware that resolves a presented key back to an identity.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor.
//
// Cost 12 takes roughly 250ms on a modern server: negligible for a login,
// expensive for an attacker brute-forcing a dumped table. bcrypt generates
// a random salt per hash and embeds it in the output, so hashing the same
// password twice yields different digests that both verify.
const defaultCost = 12

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so the cost can be injected in tests:
// cost 4 makes tests run in milliseconds without changing the logic.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with the given bcrypt
// cost. Use the minimum (4) in tests to avoid the ~250ms overhead of cost 12
// per hashing operation. Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string (version, cost, salt, digest);
// store it directly; Verify knows how to decode it.
//
// Returns an error if the plaintext exceeds 72 bytes (a bcrypt limit:
// bcrypt silently truncates longer inputs, so we reject them explicitly).
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// Returns nil if they match, a non-nil error if they don't.
//
// bcrypt.CompareHashAndPassword compares in constant time, so response
// timing does not leak how much of the password was correct.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
