package facade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopmesh/identity/internal/apperror"
)

// Handler exposes the gateway routes.
//
// Route map (wired in server.go):
//
//	POST /register → HandleRegister
//	POST /login    → HandleLogin
//	POST /logout   → HandleLogout
//	GET  /me       → HandleMe
//	GET  /health   → HandleHealth
type Handler struct {
	client   *UserClient
	sessions SessionStore
	cookies  *CookieCodec
	logger   *slog.Logger
}

// NewHandler creates the gateway handler.
func NewHandler(client *UserClient, sessions SessionStore, cookies *CookieCodec, logger *slog.Logger) *Handler {
	return &Handler{
		client:   client,
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleRegister proxies account creation to the user service.
//
// HTTP: POST /register (form body: username, first_name, last_name,
// email, password). Status passes through: 400, 409, 503 as the client
// mapped them.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid form body")
		return
	}

	user, err := h.client.Register(r.Context(),
		r.PostFormValue("username"),
		r.PostFormValue("first_name"),
		r.PostFormValue("last_name"),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User created successfully",
		"result":  user,
	})
}

// HandleLogin authenticates against the user service and binds the
// issued API key to a new session. The browser gets a signed cookie
// naming the session; the key itself stays server-side.
//
// HTTP: POST /login (form body: username, password)
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostFormValue("username")

	apiKey, err := h.client.Login(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess := NewSession(username, apiKey, defaultSessionTTL)
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.logger.Error("saving session", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	cookie, err := h.cookies.Issue(sess.ID)
	if err != nil {
		h.logger.Error("issuing session cookie", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}
	http.SetCookie(w, cookie)

	writeMessage(w, http.StatusOK, "Logged in")
}

// HandleLogout drops the session binding and expires the cookie.
//
// HTTP: POST /logout. Always 200: ending a session that doesn't exist is
// an acknowledged no-op, not an error. The API key stored on the user
// service stays live until the next login rotates it.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.cookies.Decode(r)
	if err != nil {
		writeMessage(w, http.StatusOK, "You are not logged in")
		return
	}

	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		http.SetCookie(w, h.cookies.Expire())
		writeMessage(w, http.StatusOK, "You are not logged in")
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("deleting session", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}
	http.SetCookie(w, h.cookies.Expire())
	writeMessage(w, http.StatusOK, "You are logged out")
}

// HandleMe returns the logged-in identity by presenting the cached API
// key to the user service.
//
// HTTP: GET /me → 200 {result} | 401 no session or rotated key | 503
// user service unreachable.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.cookies.Decode(r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	user, err := h.client.GetUser(r.Context(), sess.APIKey)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			// The key was rotated by a later login elsewhere. The
			// binding is dead; drop it so we don't keep asking.
			_ = h.sessions.Delete(r.Context(), sessionID)
			http.SetCookie(w, h.cookies.Expire())
		}
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": user})
}

// HandleHealth reports the gateway's view of the world: itself plus the
// reachability of the user service.
//
// HTTP: GET /health → 200 | 503
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := h.client.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "unhealthy",
			"service":      "frontend",
			"user_service": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "healthy",
		"service":      "frontend",
		"user_service": "reachable",
	})
}

// writeError maps client errors to gateway responses. Unavailable becomes
// a generic 503 so transport detail never leaks to the browser.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
		}
		writeMessage(w, status, appErr.Message)
		return
	}

	h.logger.Error("gateway error", slog.String("error", err.Error()))
	writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func contextWithTimeout(r *http.Request) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}
