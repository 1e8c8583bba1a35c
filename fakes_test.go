package authbridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// fakeSessionSource replays session emissions to one subscriber.
type fakeSessionSource struct {
	mu      sync.Mutex
	fn      func(SessionState)
	initial *SessionState

	fakeExchanger
}

func (s *fakeSessionSource) Subscribe(fn func(SessionState)) func() {
	s.mu.Lock()
	s.fn = fn
	initial := s.initial
	s.mu.Unlock()
	if initial != nil {
		fn(*initial)
	}
	return func() {
		s.mu.Lock()
		s.fn = nil
		s.mu.Unlock()
	}
}

func (s *fakeSessionSource) emit(state SessionState) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (s *fakeSessionSource) subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

type exchangeResult struct {
	data *TokenData
	err  error
}

// fakeExchanger returns queued results in order and repeats the last one.
type fakeExchanger struct {
	xmu     sync.Mutex
	results []exchangeResult
	calls   int
	headers []http.Header
}

func (e *fakeExchanger) ConvexToken(ctx context.Context, header http.Header) (*TokenData, error) {
	e.xmu.Lock()
	defer e.xmu.Unlock()
	e.calls++
	e.headers = append(e.headers, header)
	if len(e.results) == 0 {
		return nil, nil
	}
	r := e.results[0]
	if len(e.results) > 1 {
		e.results = e.results[1:]
	}
	return r.data, r.err
}

func (e *fakeExchanger) callCount() int {
	e.xmu.Lock()
	defer e.xmu.Unlock()
	return e.calls
}

type registration struct {
	fetch    FetchAccessToken
	onChange func(bool)
}

// fakeBackend records registrations. With autoConfirm set it runs the
// fetcher inside SetAuth and reports whether a token came back.
type fakeBackend struct {
	mu            sync.Mutex
	registrations []registration
	clears        int
	autoConfirm   bool
}

func (b *fakeBackend) SetAuth(fetch FetchAccessToken, onChange func(bool)) {
	b.mu.Lock()
	b.registrations = append(b.registrations, registration{fetch, onChange})
	auto := b.autoConfirm
	b.mu.Unlock()
	if auto {
		token, err := fetch(context.Background(), FetchOptions{})
		onChange(err == nil && token != "")
	}
}

func (b *fakeBackend) ClearAuth() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clears++
}

func (b *fakeBackend) reg(i int) registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registrations[i]
}

func (b *fakeBackend) registrationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registrations)
}

func (b *fakeBackend) clearCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clears
}

// fakeCrossDomain implements CrossDomainClient.
type fakeCrossDomain struct {
	mu          sync.Mutex
	verifyErr   error
	result      *OneTimeTokenResult
	verified    []string
	sessionAuth []string
	updates     int
}

func (c *fakeCrossDomain) VerifyOneTimeToken(ctx context.Context, token string) (*OneTimeTokenResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified = append(c.verified, token)
	return c.result, c.verifyErr
}

func (c *fakeCrossDomain) GetSession(ctx context.Context, header http.Header) (*SessionData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionAuth = append(c.sessionAuth, header.Get("Authorization"))
	return &SessionData{}, nil
}

func (c *fakeCrossDomain) UpdateSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++
	return nil
}

// crossDomainSource is a session source that also verifies one-time tokens.
type crossDomainSource struct {
	*fakeSessionSource
	*fakeCrossDomain
}

var errUnauthorized = errors.New("unauthorized")

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func signedIn() *SessionData {
	return &SessionData{
		Session: Session{ID: "s1", Token: "session-token", UserID: "u1"},
		User:    User{ID: "u1", Email: "test@example.com"},
	}
}
