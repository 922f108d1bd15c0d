package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/identity/internal/auth"
	"github.com/shopmesh/identity/internal/model"
	"github.com/shopmesh/identity/internal/service"
)

// UserHandler exposes the identity flow over HTTP.
//
// Route map (wired in internal/server):
//
//	POST /api/user/create            → HandleCreate
//	POST /api/user/login             → HandleLogin
//	POST /api/user/logout            → HandleLogout (OptionalIdentity)
//	GET  /api/user/{username}/exists → HandleExists
//	GET  /api/user                   → HandleCurrent (RequireIdentity)
//	GET  /api/users                  → HandleList
//	GET  /health                     → HandleHealth
type UserHandler struct {
	users  *service.UserService
	health HealthChecker
	logger *slog.Logger
}

// HealthChecker is whatever can tell us the store is reachable.
// Satisfied by the sqlite repository.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, health HealthChecker, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		health: health,
		logger: logger,
	}
}

// createRequest is the body of POST /api/user/create, accepted as JSON or
// as a classic form post; the existing callers send both.
type createRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// HandleCreate registers a new identity.
//
// HTTP: POST /api/user/create
// 200 {message, result} | 400 missing field | 409 duplicate | 500
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid JSON body"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid form body"})
			return
		}
		req = createRequest{
			Username:  r.PostFormValue("username"),
			FirstName: r.PostFormValue("first_name"),
			LastName:  r.PostFormValue("last_name"),
			Email:     r.PostFormValue("email"),
			Password:  r.PostFormValue("password"),
		}
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User created successfully",
		"result":  user.Public(),
	})
}

// HandleLogin authenticates and returns a fresh API key.
//
// HTTP: POST /api/user/login (form body: username, password)
// 200 {message, api_key} | 401 on any failure; the response never says
// whether the username or the password was wrong.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid form body"})
		return
	}

	_, key, err := h.users.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Logged in",
		"api_key": key,
	})
}

// HandleLogout acknowledges the end of a session.
//
// HTTP: POST /api/user/logout
// Always 200. The body says whether there was a session to end; being
// logged out already is a no-op, not an error. The stored API key is not
// cleared; it stays live until the next login rotates it.
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); ok {
		writeJSON(w, http.StatusOK, map[string]string{"message": "You are logged out"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "You are not logged in"})
}

// HandleExists reports whether a username is taken.
//
// HTTP: GET /api/user/{username}/exists
// 200 {result: true} | 404 {message}
func (h *UserHandler) HandleExists(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	ok, err := h.users.Exists(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "Cannot find username"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"result": true})
}

// HandleCurrent returns the identity that owns the presented API key.
//
// HTTP: GET /api/user
// Auth: RequireIdentity; the middleware resolved the key and stored the
// identity in the context; a request that reaches here is authenticated.
func (h *UserHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Unreachable on a protected route; kept so a wiring mistake
		// fails closed.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Not logged in"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.PublicUser{"result": user.Public()})
}

// HandleList returns the serialized form of every identity.
//
// HTTP: GET /api/users
// Deliberately unauthenticated to stay wire-compatible with existing
// callers; only public fields are serialized. Revisit before exposing
// this service outside the cluster.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleHealth reports service and database health.
//
// HTTP: GET /health → 200 | 503
func (h *UserHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"service":  "user-service",
			"database": "disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"service":  "user-service",
		"database": "connected",
	})
}
