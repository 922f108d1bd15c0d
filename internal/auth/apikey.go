package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// keyBytes is the entropy of an issued API key. 32 random bytes is far
// beyond guessable; the key carries no information derived from the
// identity it will be bound to.
const keyBytes = 32

// keyPrefix makes issued keys recognisable in logs and bug reports
// without revealing anything about them.
const keyPrefix = "usk_"

// KeyIssuer mints opaque bearer tokens.
//
// A key is just random bytes; it is bound to an identity by being stored
// on that identity's row, not by anything encoded in the key itself.
// Storing a new key overwrites the old one, which is what enforces the
// single-live-token rule: the previous key stops resolving the moment the
// new one commits.
type KeyIssuer struct{}

// NewKeyIssuer creates a KeyIssuer.
func NewKeyIssuer() *KeyIssuer {
	return &KeyIssuer{}
}

// Issue returns a new opaque API key.
//
// The key is treated with the same sensitivity as a password reset token:
// log it nowhere, return it to the authenticated caller exactly once.
func (i *KeyIssuer) Issue() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating api key: %w", err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
