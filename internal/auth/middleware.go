package auth

import (
	"context"
	"net/http"

	"github.com/shopmesh/identity/internal/model"
)

// IdentityResolver resolves the value of an Authorization header to the
// identity that owns the presented API key. Implemented by the user
// service layer; declared here so the middleware doesn't depend on it.
type IdentityResolver interface {
	Authenticate(ctx context.Context, authHeader string) (*model.User, error)
}

// contextKey is an unexported type for context keys in this package.
// A package-private key type means only this package can read or write
// the identity value; no other package can collide with or shadow it.
type contextKey string

const identityKey contextKey = "identity"

// RequireIdentity enforces authentication on protected routes.
//
// It resolves the Authorization header once, stores the identity in the
// request context, and passes control on. If the header is missing,
// malformed, or matches no live key, it responds 401 before the handler
// runs; a rejected request never executes any side effect.
func RequireIdentity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Not logged in"}`))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalIdentity resolves the identity if a valid key is presented but
// does not block the request otherwise. Used by logout, which must
// acknowledge callers that were never logged in.
func OptionalIdentity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := resolver.Authenticate(r.Context(), r.Header.Get("Authorization")); err == nil {
				ctx := context.WithValue(r.Context(), identityKey, user)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext retrieves the authenticated user from the request
// context. Returns (nil, false) if the request is anonymous.
func IdentityFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(identityKey).(*model.User)
	return user, ok && user != nil
}
