// Package authclient is an HTTP client for a Better Auth style provider with
// the Convex and cross-domain plugins. It implements authbridge.AuthClient and
// authbridge.CrossDomainClient.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/panyam/authbridge"
)

// Provider endpoints, relative to the auth base path.
const (
	PathConvexToken        = "/convex/token"
	PathVerifyOneTimeToken = "/cross-domain/one-time-token/verify"
	PathGetSession         = "/get-session"
	PathSignUpEmail        = "/sign-up/email"
	PathSignInEmail        = "/sign-in/email"
	PathSignOut            = "/sign-out"
)

// DefaultBasePath is where the provider is usually mounted on a site
const DefaultBasePath = "/api/auth"

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("auth provider: HTTP %d: %s (%s)", e.Status, e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("auth provider: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth provider: HTTP %d", e.Status)
}

// AuthResponse is returned by the sign-up and sign-in endpoints.
type AuthResponse struct {
	Token string           `json:"token"`
	User  *authbridge.User `json:"user"`
}

// Client talks to the auth provider and keeps its cookies.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	baseTransport http.RoundTripper
	logger        *slog.Logger
	sessions      *sessionStore
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// A cookie jar is added when it has none.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the provider mounted at baseURL, for example
// "https://app.example.com/api/auth".
func New(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseTransport != nil {
		c.httpClient.Transport = c.baseTransport
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	c.sessions = newSessionStore(c.fetchSession, c.logger)
	return c, nil
}

// BaseURL returns the provider base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client, cookies included
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ConvexToken exchanges the session (cookie, or the Authorization header in
// header) for a backend JWT.
func (c *Client) ConvexToken(ctx context.Context, header http.Header) (*authbridge.TokenData, error) {
	var out *authbridge.TokenData
	if err := c.do(ctx, http.MethodGet, PathConvexToken, header, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyOneTimeToken trades a cross-domain one-time token for a session.
func (c *Client) VerifyOneTimeToken(ctx context.Context, token string) (*authbridge.OneTimeTokenResult, error) {
	var out *authbridge.OneTimeTokenResult
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, PathVerifyOneTimeToken, nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns the current session, or nil when signed out.
func (c *Client) GetSession(ctx context.Context, header http.Header) (*authbridge.SessionData, error) {
	var out *authbridge.SessionData
	if err := c.do(ctx, http.MethodGet, PathGetSession, header, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchSession(ctx context.Context) (*authbridge.SessionData, error) {
	return c.GetSession(ctx, nil)
}

// UpdateSession refetches the session and notifies subscribers.
func (c *Client) UpdateSession(ctx context.Context) error {
	return c.sessions.refresh(ctx)
}

// Subscribe implements authbridge.SessionSource. The first subscriber
// triggers a session fetch; until it completes the state is pending.
func (c *Client) Subscribe(fn func(authbridge.SessionState)) (unsubscribe func()) {
	return c.sessions.subscribe(fn)
}

// Session returns the last session state delivered to subscribers.
func (c *Client) Session() authbridge.SessionState {
	return c.sessions.current()
}

// SignUpEmail creates an account and signs it in.
func (c *Client) SignUpEmail(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	var out *AuthResponse
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, PathSignUpEmail, nil, body, &out); err != nil {
		return nil, err
	}
	c.refreshAfter(ctx, "sign up")
	return out, nil
}

// SignInEmail signs in with email and password.
func (c *Client) SignInEmail(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out *AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, PathSignInEmail, nil, body, &out); err != nil {
		return nil, err
	}
	c.refreshAfter(ctx, "sign in")
	return out, nil
}

// SignOut ends the session.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, PathSignOut, nil, map[string]string{}, nil); err != nil {
		return err
	}
	c.refreshAfter(ctx, "sign out")
	return nil
}

func (c *Client) refreshAfter(ctx context.Context, op string) {
	if !c.sessions.active() {
		return
	}
	if err := c.sessions.refresh(ctx); err != nil {
		c.logger.Warn("session refresh failed", "after", op, "error", err)
	}
}

// do sends one JSON request. Transport failures come back as
// *authbridge.NetworkError, error responses as *APIError.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &authbridge.NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &authbridge.NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return nil
}
