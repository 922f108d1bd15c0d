// Package facade implements the frontend gateway: a thin HTTP service
// that calls the user service over REST, caches the issued API key in a
// server-side session store, and presents it as a bearer credential on
// protected calls. The API key never reaches the browser; the browser
// holds only a signed session cookie.
package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopmesh/identity/internal/apperror"
	"github.com/shopmesh/identity/internal/model"
)

// defaultTimeout bounds every call to the user service. A hung upstream
// turns into an Unavailable error, never an indefinite block.
const defaultTimeout = 10 * time.Second

// UserClient is the REST client for the user service.
//
// Error contract: responses the upstream actually produced pass through
// as their apperror equivalents (401 → ErrUnauthorized, 409 → ErrConflict,
// and so on), while transport failures (refused connection, timeout)
// become ErrUnavailable. Callers can therefore tell "the service said no"
// from "the service could not be asked", and no raw transport error ever
// escapes this package.
type UserClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUserClient creates a client for the user service at baseURL.
func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type loginResponse struct {
	Message string `json:"message"`
	APIKey  string `json:"api_key"`
}

type resultResponse struct {
	Message string           `json:"message"`
	Result  model.PublicUser `json:"result"`
}

// Login exchanges credentials for an API key.
func (c *UserClient) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{
		"username": {username},
		"password": {password},
	}

	body, err := c.postForm(ctx, "/api/user/login", form)
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("facade: decoding login response: %w", err)
	}
	if resp.APIKey == "" {
		return "", fmt.Errorf("facade: login response carried no api key")
	}
	return resp.APIKey, nil
}

// Register creates an identity on the user service.
func (c *UserClient) Register(ctx context.Context, username, firstName, lastName, email, password string) (*model.PublicUser, error) {
	form := url.Values{
		"username":   {username},
		"first_name": {firstName},
		"last_name":  {lastName},
		"email":      {email},
		"password":   {password},
	}

	body, err := c.postForm(ctx, "/api/user/create", form)
	if err != nil {
		return nil, err
	}

	var resp resultResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("facade: decoding create response: %w", err)
	}
	return &resp.Result, nil
}

// GetUser resolves the cached API key back to the identity it belongs to.
// ErrUnauthorized means the key is no longer live (a later login rotated
// it) and the session binding should be dropped.
func (c *UserClient) GetUser(ctx context.Context, apiKey string) (*model.PublicUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user", nil)
	if err != nil {
		return nil, fmt.Errorf("facade: building request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+apiKey)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp resultResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("facade: decoding user response: %w", err)
	}
	return &resp.Result, nil
}

// Exists reports whether the username is taken. A 404 is a definite "no";
// only transport failures surface as errors.
func (c *UserClient) Exists(ctx context.Context, username string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/user/"+url.PathEscape(username)+"/exists", nil)
	if err != nil {
		return false, fmt.Errorf("facade: building request: %w", err)
	}

	_, err = c.do(req)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Health checks the user service's own health endpoint.
func (c *UserClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("facade: building request: %w", err)
	}
	if _, err := c.do(req); err != nil {
		return err
	}
	return nil
}

func (c *UserClient) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("facade: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// do performs the request and applies the error contract.
func (c *UserClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: the outcome of the
		// remote operation is unknown. Degrade to Unavailable instead of
		// leaking transport details to the caller.
		return nil, apperror.Unavailable("user service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Unavailable("user service unreachable")
	}

	if resp.StatusCode >= 400 {
		return nil, statusToError(resp.StatusCode, body)
	}
	return body, nil
}

// statusToError maps an upstream error response to the apperror taxonomy,
// carrying the upstream message through where it is safe to do so.
func statusToError(status int, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	_ = json.Unmarshal(body, &errResp)

	switch status {
	case http.StatusBadRequest:
		return apperror.ValidationFailed(errResp.Field, messageOr(errResp.Message, "invalid request"))
	case http.StatusUnauthorized:
		return apperror.Unauthorized("Not logged in")
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: messageOr(errResp.Message, "not found")}
	case http.StatusConflict:
		return apperror.Conflict(errResp.Field, messageOr(errResp.Message, "conflict"))
	case http.StatusServiceUnavailable:
		return apperror.Unavailable("user service unavailable")
	default:
		return fmt.Errorf("facade: user service returned HTTP %d", status)
	}
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
