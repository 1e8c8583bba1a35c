// Package backend is a reactive backend client over gRPC. It owns the single
// credential registration: the token fetcher the app hands over with SetAuth
// and the callback that learns whether the backend accepted the token.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/panyam/authbridge/grpcauth"
)

// DefaultRefreshLeeway is how long before expiry a confirmed token is refetched
const DefaultRefreshLeeway = 10 * time.Second

// DefaultConfirmTimeout bounds the retries of one confirmation
const DefaultConfirmTimeout = 15 * time.Minute

// FetchOptions is passed to a FetchAccessToken.
type FetchOptions struct {
	// ForceRefreshToken asks for a fresh token instead of a cached one.
	ForceRefreshToken bool
}

// FetchAccessToken returns a backend JWT, or "" when there is none.
type FetchAccessToken func(ctx context.Context, opts FetchOptions) (string, error)

// ErrNoToken is returned by token sources when the fetcher has no token.
var ErrNoToken = errors.New("no backend token")

// Client is a gRPC backend connection with one credential registration.
type Client struct {
	conn     *grpc.ClientConn
	ownsConn bool
	health   healthpb.HealthClient

	service        string
	leeway         time.Duration
	confirmTimeout time.Duration
	logger         *slog.Logger
	creds          credentials.TransportCredentials
	dialOpts       []grpc.DialOption

	ctx    context.Context
	stop   context.CancelFunc
	secure bool

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	token  string
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHealthService sets the health service name used to confirm tokens.
// The default "" checks the server as a whole.
func WithHealthService(service string) Option {
	return func(c *Client) {
		c.service = service
	}
}

// WithRefreshLeeway sets how long before expiry a token is refetched
func WithRefreshLeeway(d time.Duration) Option {
	return func(c *Client) {
		c.leeway = d
	}
}

// WithConfirmTimeout bounds how long transient failures of one confirmation
// are retried.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.confirmTimeout = d
	}
}

// WithTransportCredentials overrides the transport credentials Dial picks
// from the target scheme.
func WithTransportCredentials(creds credentials.TransportCredentials) Option {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithDialOptions appends gRPC dial options, used by Dial only.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

func newClient(opts []Option) *Client {
	c := &Client{
		leeway:         DefaultRefreshLeeway,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.stop = context.WithCancel(context.Background())
	return c
}

// Dial connects to a backend. An https:// URL (or a bare host:port) uses
// TLS, http:// uses plaintext, anything else is passed to gRPC as is.
// Calls on the connection carry the confirmed token.
func Dial(target string, opts ...Option) (*Client, error) {
	c := newClient(opts)

	addr, creds := resolveTarget(target)
	if c.creds != nil {
		creds = c.creds
	}
	c.secure = creds.Info().SecurityProtocol != "insecure"

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(c.Credentials()),
	}, c.dialOpts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		c.stop()
		return nil, fmt.Errorf("dial backend %s: %w", target, err)
	}
	c.conn = conn
	c.ownsConn = true
	c.health = healthpb.NewHealthClient(conn)
	return c, nil
}

// NewClient wraps an existing connection. Close does not close conn.
func NewClient(conn *grpc.ClientConn, opts ...Option) *Client {
	c := newClient(opts)
	c.conn = conn
	c.health = healthpb.NewHealthClient(conn)
	return c
}

func resolveTarget(target string) (string, credentials.TransportCredentials) {
	u, err := url.Parse(target)
	if err == nil && u.Host != "" {
		switch u.Scheme {
		case "https":
			return hostPort(u, "443"), credentials.NewTLS(nil)
		case "http":
			return hostPort(u, "80"), insecure.NewCredentials()
		}
	}
	if err == nil && u.Scheme != "" && u.Opaque == "" {
		return target, credentials.NewTLS(nil)
	}
	return "dns:///" + target, credentials.NewTLS(nil)
}

func hostPort(u *url.URL, port string) string {
	if u.Port() != "" {
		return u.Host
	}
	return u.Hostname() + ":" + port
}

// Conn returns the underlying connection.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Token returns the confirmed token of the current registration, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetAuth replaces the credential registration. The fetcher is called in the
// background; onChange reports whether the backend accepted the token, and
// again if a later refresh is rejected. Callbacks of a replaced registration
// are never called.
func (c *Client) SetAuth(fetch FetchAccessToken, onChange func(isAuthenticated bool)) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.token = ""
	c.mu.Unlock()

	go c.authenticate(ctx, gen, fetch, onChange)
}

// ClearAuth drops the registration and the confirmed token.
func (c *Client) ClearAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.token = ""
}

// Close clears the registration and closes a connection that Dial opened.
func (c *Client) Close() error {
	c.ClearAuth()
	c.stop()
	if c.ownsConn {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) authenticate(ctx context.Context, gen uint64, fetch FetchAccessToken, onChange func(bool)) {
	token, forced, err := fetchToken(ctx, fetch)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Warn("backend token fetch failed", "error", err)
		c.report(ctx, gen, onChange, false)
		return
	}
	if token == "" {
		c.report(ctx, gen, onChange, false)
		return
	}

	ok, err := c.confirmWithRetry(ctx, token)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("backend confirmation gave up", "error", err)
		}
		return
	}
	if !ok && !forced {
		// The fetcher may have handed out a cached token that has since expired.
		token, err = fetch(ctx, FetchOptions{ForceRefreshToken: true})
		if ctx.Err() != nil {
			return
		}
		if err == nil && token != "" {
			ok, err = c.confirmWithRetry(ctx, token)
			if err != nil {
				return
			}
		}
	}
	if !ok {
		c.report(ctx, gen, onChange, false)
		return
	}

	for {
		if !c.setToken(gen, token) {
			return
		}
		c.report(ctx, gen, onChange, true)

		delay, ok := c.refreshDelay(token)
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		token, err = fetch(ctx, FetchOptions{ForceRefreshToken: true})
		if ctx.Err() != nil {
			return
		}
		if err == nil && token != "" {
			ok, err = c.confirmWithRetry(ctx, token)
			if ctx.Err() != nil {
				return
			}
		}
		if err != nil || token == "" || !ok {
			if err != nil {
				c.logger.Warn("backend token refresh failed", "error", err)
			}
			c.setToken(gen, "")
			c.report(ctx, gen, onChange, false)
			return
		}
	}
}

// fetchToken asks for a cached token first and forces a fetch if there is none.
func fetchToken(ctx context.Context, fetch FetchAccessToken) (token string, forced bool, err error) {
	token, err = fetch(ctx, FetchOptions{})
	if err != nil || token != "" {
		return token, false, err
	}
	token, err = fetch(ctx, FetchOptions{ForceRefreshToken: true})
	return token, true, err
}

// confirm asks the backend whether token is acceptable. Unauthenticated and
// PermissionDenied are a definite no; other failures are returned.
func (c *Client) confirm(ctx context.Context, token string) (bool, error) {
	ctx = grpcauth.BearerToOutgoingContext(withoutCredentials(ctx), token)
	_, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: c.service})
	switch status.Code(err) {
	case codes.OK:
		return true, nil
	case codes.Unauthenticated, codes.PermissionDenied:
		return false, nil
	}
	return false, err
}

func (c *Client) confirmWithRetry(ctx context.Context, token string) (bool, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (bool, error) {
		ok, err := c.confirm(ctx, token)
		if err != nil && status.Code(err) == codes.Canceled {
			return false, backoff.Permanent(err)
		}
		return ok, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.confirmTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Info("backend confirmation failed, retrying", "error", err, "backoff", d)
		}),
	)
}

func (c *Client) refreshDelay(token string) (time.Duration, bool) {
	exp, ok := ExpiresAt(token)
	if !ok {
		return 0, false
	}
	delay := time.Until(exp) - c.leeway
	if delay < time.Second {
		delay = time.Second
	}
	return delay, true
}

func (c *Client) setToken(gen uint64, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.token = token
	return true
}

func (c *Client) report(ctx context.Context, gen uint64, onChange func(bool), ok bool) {
	c.mu.Lock()
	current := gen == c.gen && ctx.Err() == nil
	c.mu.Unlock()
	if current && onChange != nil {
		onChange(ok)
	}
}
