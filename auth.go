package authbridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/panyam/authbridge/backend"
)

// Options configures an Auth.
type Options struct {
	// AuthClient is the auth provider client. Required.
	AuthClient AuthClient

	// Backend owns the credential registration. When nil, a backend client is
	// dialed from BackendURL, falling back to PUBLIC_CONVEX_URL.
	Backend        BackendClient
	BackendURL     string
	BackendOptions []backend.Option

	// ServerState returns the server-rendered auth state. It is called once,
	// in New. Nil means no server rendering.
	ServerState func() *InitialAuthState

	// Location is the page location checked for a one-time token. Browser
	// mode only.
	Location Location

	// ExternalSession switches Auth to external mode.
	ExternalSession ExternalSession

	Retry   RetryPolicy
	Logger  *slog.Logger
	Verbose bool
}

// Auth reconciles the provider session, the backend verdict and the server
// hint into one AuthState. Create it with New and release it with Close.
type Auth struct {
	id       string
	external bool
	client   AuthClient
	backend  BackendClient
	owned    *backend.Client
	retry    RetryPolicy
	logger   *slog.Logger
	verbose  bool
	fetch    FetchAccessToken

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	serverAuth bool
	observer   sessionObserver
	verdict    BackendVerdict
	gate       confirmationGate
	closed     bool

	// effectMu serializes backend registration calls, which run outside mu.
	effectMu sync.Mutex

	notifyMu  sync.Mutex
	listeners []listener
	nextID    int
	last      *AuthState

	unsubscribe   func()
	hasCredential atomic.Bool
	ottDone       chan struct{}
}

type listener struct {
	id int
	fn func(AuthState)
}

// New creates an Auth in external mode when opts.ExternalSession is set and
// in browser mode otherwise.
func New(opts Options) (*Auth, error) {
	if opts.ExternalSession != nil {
		return NewExternal(opts.ExternalSession, opts)
	}
	return NewBrowser(opts)
}

// NewBrowser creates an Auth driven by the provider's cookie session.
//
// The server hint is read once here. The provider's session stream is
// subscribed for the lifetime of the Auth, and a one-time token in
// opts.Location is consumed in the background.
func NewBrowser(opts Options) (*Auth, error) {
	a, err := newAuth(opts, false)
	if err != nil {
		return nil, err
	}
	if opts.ServerState != nil {
		if hint := opts.ServerState(); hint != nil {
			a.serverAuth = hint.IsAuthenticated
		}
	}
	a.observer = newSessionObserver(a.serverAuth)
	if a.serverAuth {
		a.verdict = VerdictConfirmed
	}
	a.fetch = a.browserFetcher()

	a.unsubscribe = a.client.Subscribe(a.handleSession)
	a.syncGate()
	a.publish()

	if opts.Location != nil {
		if cd, ok := a.client.(CrossDomainClient); ok {
			a.ottDone = make(chan struct{})
			go func() {
				defer close(a.ottDone)
				if err := ConsumeOneTimeToken(a.ctx, cd, opts.Location); err != nil && a.ctx.Err() == nil {
					a.logger.Warn("one-time token exchange failed", "error", err)
				}
			}()
		}
	}
	return a, nil
}

// NewExternal creates an Auth for headless flows. The backend verdict alone
// drives the state; the credential comes from session.
func NewExternal(session ExternalSession, opts Options) (*Auth, error) {
	if session == nil {
		return nil, errors.New("authbridge: nil external session")
	}
	a, err := newAuth(opts, true)
	if err != nil {
		return nil, err
	}
	a.fetch = a.externalFetcher(session)

	a.mu.Lock()
	action := a.gate.restart(true, &a.verdict)
	a.mu.Unlock()
	a.applyGate(action)
	a.publish()

	if w, ok := session.(Watcher); ok {
		go func() {
			err := w.Watch(a.ctx, a.reregister)
			if err != nil && a.ctx.Err() == nil {
				a.logger.Warn("credential watch stopped", "error", err)
			}
		}()
	}
	return a, nil
}

func newAuth(opts Options, external bool) (*Auth, error) {
	if opts.AuthClient == nil {
		return nil, ErrNoAuthClient
	}
	id := uuid.NewString()
	mode := "browser"
	if external {
		mode = "external"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("auth_id", id, "mode", mode)

	a := &Auth{
		id:       id,
		external: external,
		client:   opts.AuthClient,
		retry:    opts.Retry,
		logger:   logger,
		verbose:  opts.Verbose,
	}
	if a.retry.Logger == nil && opts.Verbose {
		a.retry.Logger = logger
	}
	if err := a.resolveBackend(opts); err != nil {
		return nil, err
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a, nil
}

// resolveBackend prefers an injected client and otherwise dials one, which
// the Auth then owns.
func (a *Auth) resolveBackend(opts Options) error {
	if opts.Backend != nil {
		a.backend = opts.Backend
		return nil
	}
	target := opts.BackendURL
	if target == "" {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		target = cfg.ConvexURL
	}
	if target == "" {
		return ErrNoBackendURL
	}
	bopts := append([]backend.Option{backend.WithLogger(a.logger)}, opts.BackendOptions...)
	c, err := backend.Dial(target, bopts...)
	if err != nil {
		return err
	}
	a.backend = c
	a.owned = c
	return nil
}

// handleSession is the session stream callback.
func (a *Auth) handleSession(session SessionState) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if session.Error != nil {
		a.logVerbose("session stream error", "error", session.Error)
	}
	a.verdict = a.observer.apply(session, a.verdict)
	action, changed := a.gate.sync(a.shouldAuthenticate(), &a.verdict)
	a.mu.Unlock()

	if changed {
		a.applyGate(action)
	}
	a.publish()
}

// syncGate re-evaluates the gate after mount, in case the subscription did
// not deliver a state synchronously.
func (a *Auth) syncGate() {
	a.mu.Lock()
	action, changed := a.gate.sync(a.shouldAuthenticate(), &a.verdict)
	a.mu.Unlock()
	if changed {
		a.applyGate(action)
	}
}

// shouldAuthenticate must be called with mu held.
func (a *Auth) shouldAuthenticate() bool {
	if a.external {
		return true
	}
	return a.observer.present() || (a.serverAuth && !a.observer.settled)
}

// reregister starts a new registration after the external credential changed.
func (a *Auth) reregister() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.logVerbose("credential changed, re-registering")
	action := a.gate.restart(true, &a.verdict)
	a.mu.Unlock()
	a.applyGate(action)
	a.publish()
}

// applyGate performs a gate action against the backend unless a newer run
// has superseded it.
func (a *Auth) applyGate(action gateAction) {
	a.effectMu.Lock()
	defer a.effectMu.Unlock()

	a.mu.Lock()
	stale := a.closed || action.gen != a.gate.gen
	a.mu.Unlock()
	if stale {
		return
	}

	if !action.register {
		a.logVerbose("clearing backend auth")
		a.backend.ClearAuth()
		return
	}
	a.logVerbose("registering token fetcher", "generation", action.gen)
	a.backend.SetAuth(a.fetch, func(isAuthenticated bool) {
		a.confirm(action.gen, isAuthenticated)
	})
}

// confirm is the backend completion callback for generation gen.
func (a *Auth) confirm(gen uint64, isAuthenticated bool) {
	a.mu.Lock()
	if a.closed || !a.gate.accepts(gen) {
		a.mu.Unlock()
		a.logVerbose("ignoring stale confirmation", "generation", gen)
		return
	}
	a.verdict = VerdictFromBool(isAuthenticated)
	a.mu.Unlock()
	a.logVerbose("backend confirmation", "authenticated", isAuthenticated)
	a.publish()
}

// publish notifies listeners when the reconciled state changed.
func (a *Auth) publish() {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	state := a.State()
	if a.last != nil && *a.last == state {
		return
	}
	a.last = &state
	for _, l := range a.listeners {
		l.fn(state)
	}
}

// State returns the current reconciled state.
func (a *Auth) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.external {
		return reconcileExternal(a.verdict)
	}
	return reconcileBrowser(a.serverAuth, a.observer, a.verdict)
}

func (a *Auth) IsLoading() bool       { return a.State().IsLoading }
func (a *Auth) IsAuthenticated() bool { return a.State().IsAuthenticated }

// FetchAccessToken is the token fetcher registered with the backend.
func (a *Auth) FetchAccessToken(ctx context.Context, opts FetchOptions) (string, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return "", ErrClosed
	}
	return a.fetch(ctx, opts)
}

// TokenSource returns the fetcher as an oauth2.TokenSource. Each Token call
// forces a fresh exchange.
func (a *Auth) TokenSource(ctx context.Context) oauth2.TokenSource {
	return backend.TokenSource(ctx, a.fetch)
}

// HasCredential reports whether the last external fetch produced a token.
// It is always false in browser mode.
func (a *Auth) HasCredential() bool {
	return a.hasCredential.Load()
}

func (a *Auth) setHasCredential(v bool) {
	a.hasCredential.Store(v)
}

// ID identifies this Auth in log records.
func (a *Auth) ID() string {
	return a.id
}

// Subscribe calls fn with the current state and then with every distinct
// state after it. fn runs synchronously and must not call Subscribe.
func (a *Auth) Subscribe(fn func(AuthState)) (unsubscribe func()) {
	a.notifyMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners = append(a.listeners, listener{id: id, fn: fn})
	fn(a.State())
	a.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.notifyMu.Lock()
			defer a.notifyMu.Unlock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Close tears down the registration, unsubscribes from the provider and
// closes a backend client that New dialed. Close is idempotent.
func (a *Auth) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.gate.teardown(&a.verdict)
	a.mu.Unlock()

	a.cancel()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	a.effectMu.Lock()
	a.backend.ClearAuth()
	a.effectMu.Unlock()

	if a.owned != nil {
		return a.owned.Close()
	}
	return nil
}

func (a *Auth) logVerbose(msg string, args ...any) {
	if a.verbose {
		a.logger.Debug(msg, args...)
	}
}
