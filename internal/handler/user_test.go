package handler_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmesh/identity/internal/auth"
	"github.com/shopmesh/identity/internal/handler"
	"github.com/shopmesh/identity/internal/repository/sqlite"
	"github.com/shopmesh/identity/internal/service"
)

// newTestRouter wires the real service stack over an in-memory database,
// mirroring the route setup in internal/server.
func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	users := service.NewUserService(db, auth.NewPasswordServiceForTest(4), auth.NewKeyIssuer(), logger)
	h := handler.NewUserHandler(users, db, logger)

	r := chi.NewRouter()
	r.Get("/health", h.HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/user/create", h.HandleCreate)
		r.Post("/user/login", h.HandleLogin)
		r.With(auth.OptionalIdentity(users)).Post("/user/logout", h.HandleLogout)
		r.Get("/user/{username}/exists", h.HandleExists)
		r.With(auth.RequireIdentity(users)).Get("/user", h.HandleCurrent)
		r.Get("/users", h.HandleList)
	})
	return r
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerAlice(t *testing.T, router http.Handler) {
	t.Helper()
	rec := postForm(t, router, "/api/user/create", url.Values{
		"username":   {"alice"},
		"first_name": {"Alice"},
		"last_name":  {"Liddell"},
		"email":      {"alice@x.com"},
		"password":   {"secret1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func loginAlice(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := postForm(t, router, "/api/user/login", url.Values{
		"username": {"alice"},
		"password": {"secret1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body.APIKey)
	return body.APIKey
}

func TestCreate_JSONBody(t *testing.T) {
	router := newTestRouter(t)

	body := `{"username":"alice","first_name":"Alice","last_name":"Liddell","email":"alice@x.com","password":"secret1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "User created successfully", resp.Message)

	// The serialized record exposes no secret material.
	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "alice", result["username"])
	assert.NotContains(t, result, "password_hash")
	assert.NotContains(t, result, "api_key")
}

func TestCreate_MissingField(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/api/user/create", url.Values{
		"username": {"alice"},
		"password": {"secret1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExists(t *testing.T) {
	router := newTestRouter(t)
	registerAlice(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/user/alice/exists", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":true}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/user/bob/exists", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogout(t *testing.T) {
	router := newTestRouter(t)
	registerAlice(t, router)
	key := loginAlice(t, router)

	// With a live key: acknowledged as logged out.
	req := httptest.NewRequest(http.MethodPost, "/api/user/logout", nil)
	req.Header.Set("Authorization", "Basic "+key)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are logged out")

	// Without credentials: still 200, different acknowledgment.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/user/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are not logged in")
}

func TestUsersList_PublicFieldsOnly(t *testing.T) {
	router := newTestRouter(t)
	registerAlice(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	require.Len(t, users, 1)
	assert.NotContains(t, users[0], "password_hash")
	assert.NotContains(t, users[0], "api_key")
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

// TestIdentityFlow walks the full scenario: register, duplicate register,
// login, authenticated fetch, wrong password, key rotation.
func TestIdentityFlow(t *testing.T) {
	router := newTestRouter(t)

	registerAlice(t, router)

	// Same username, different email → 409 conflict on the username.
	rec := postForm(t, router, "/api/user/create", url.Values{
		"username":   {"alice"},
		"first_name": {"Imposter"},
		"last_name":  {"Person"},
		"email":      {"other@x.com"},
		"password":   {"hunter2"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username already exists")

	firstKey := loginAlice(t, router)

	// The key resolves to alice's record.
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Authorization", "Basic "+firstKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alice"`)

	// Wrong password → 401 with the same generic message as unknown user.
	rec = postForm(t, router, "/api/user/login", url.Values{
		"username": {"alice"},
		"password": {"wrongpass"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postForm(t, router, "/api/user/login", url.Values{
		"username": {"mallory"},
		"password": {"wrongpass"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Second login rotates the key; the first one stops working.
	secondKey := loginAlice(t, router)
	require.NotEqual(t, firstKey, secondKey)

	req = httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Authorization", "Basic "+firstKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Authorization", "Basic "+secondKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
