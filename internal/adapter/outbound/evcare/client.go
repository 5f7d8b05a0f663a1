// Package evcare is the outbound client for the EVCare backend API.
// It is the backend login strategy: credentials are verified by the remote
// service and the returned user is normalized into the domain identity here,
// at the boundary, so nothing downstream deals with backend field quirks.
package evcare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/login"
)

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 10 * time.Second

// envelope is the backend's standard response wrapper.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
}

// loginData is the payload under data on a successful login.
type loginData struct {
	User         json.RawMessage `json:"user"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
}

// backendUser tolerates both id and legacy _id from the backend.
type backendUser struct {
	ID        string    `json:"id"`
	MongoID   string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

// identity normalizes the backend user. id wins over _id when both are set.
func (u *backendUser) identity() *auth.Identity {
	id := u.ID
	if id == "" {
		id = u.MongoID
	}
	return &auth.Identity{
		ID:        id,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      auth.Role(u.Role),
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

// Client talks to the EVCare backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate implements login.Strategy against POST /api/auth/login.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*login.Result, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w: %w", auth.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	env, err := readEnvelope(resp)
	if err != nil {
		return nil, err
	}

	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("parse login payload: %w", err)
	}
	if data.Token == "" || len(data.User) == 0 {
		return nil, fmt.Errorf("login payload missing token or user: %w", auth.ErrServiceUnavailable)
	}

	var user backendUser
	if err := json.Unmarshal(data.User, &user); err != nil {
		return nil, fmt.Errorf("parse login user: %w", err)
	}

	return &login.Result{
		Identity:     user.identity(),
		Token:        data.Token,
		RefreshToken: data.RefreshToken,
	}, nil
}

// NotifyLogout implements login.Strategy against POST /api/auth/logout.
// The caller treats failures as best effort.
func (c *Client) NotifyLogout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w: %w", auth.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Profile fetches the caller's profile via GET /api/auth/profile and returns
// the raw data payload for passthrough.
func (c *Client) Profile(ctx context.Context, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/auth/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w: %w", auth.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	env, err := readEnvelope(resp)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// readEnvelope decodes the response wrapper and maps failure shapes onto the
// domain error taxonomy. 4xx and success=false mean the credentials were
// rejected; 5xx and unparseable bodies mean the service is unavailable.
func readEnvelope(resp *http.Response) (*envelope, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", auth.ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("backend status %d: %w", resp.StatusCode, auth.ErrServiceUnavailable)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse response envelope: %w: %w", auth.ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: %w", msg, auth.ErrInvalidCredentials)
	}

	return &env, nil
}

// Compile-time interface verification.
var _ login.Strategy = (*Client)(nil)
