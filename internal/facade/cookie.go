package facade

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cookieName is the session cookie set by the facade.
const cookieName = "session"

// CookieCodec issues and decodes the signed session cookie.
//
// The cookie carries only a session ID, wrapped in an HS256-signed JWT so
// a tampered or forged ID fails verification instead of hitting the
// session store. The API key itself never appears in the cookie.
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewCookieCodec creates a codec. The secret should be at least 32 bytes
// of random data in production.
func NewCookieCodec(secret string, ttl time.Duration) (*CookieCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("facade: session secret must be at least 16 characters")
	}
	return &CookieCodec{secret: []byte(secret), ttl: ttl}, nil
}

// Issue returns a Set-Cookie value binding the browser to the session.
// HttpOnly keeps it out of reach of page scripts; SameSite=Lax keeps it
// off cross-site POSTs.
func (c *CookieCodec) Issue(sessionID string) (*http.Cookie, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		Issuer:    "frontend",
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("facade: signing session cookie: %w", err)
	}

	return &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Expire returns a Set-Cookie value that deletes the session cookie.
func (c *CookieCodec) Expire() *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Decode extracts and verifies the session ID from the request's cookie.
// Any failure (no cookie, bad signature, expired token) returns an
// error; callers treat all of them as "no session".
func (c *CookieCodec) Decode(r *http.Request) (string, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", fmt.Errorf("facade: no session cookie: %w", err)
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return c.secret, nil
		})
	if err != nil {
		return "", fmt.Errorf("facade: parsing session cookie: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("facade: session cookie carries no session ID")
	}
	return claims.Subject, nil
}
