package authclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/panyam/authbridge"
)

// sessionStore is the client-side session cache. It starts pending, fetches
// on the first subscription and notifies subscribers after every refresh.
type sessionStore struct {
	fetch  func(ctx context.Context) (*authbridge.SessionData, error)
	logger *slog.Logger

	// emitMu orders state changes with their notifications.
	emitMu    sync.Mutex
	mu        sync.Mutex
	state     authbridge.SessionState
	listeners map[int]func(authbridge.SessionState)
	nextID    int
	started   bool
}

func newSessionStore(fetch func(ctx context.Context) (*authbridge.SessionData, error), logger *slog.Logger) *sessionStore {
	return &sessionStore{
		fetch:     fetch,
		logger:    logger,
		state:     authbridge.SessionState{IsPending: true},
		listeners: make(map[int]func(authbridge.SessionState)),
	}
}

func (s *sessionStore) subscribe(fn func(authbridge.SessionState)) func() {
	s.emitMu.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	state := s.state
	start := !s.started
	s.started = true
	s.mu.Unlock()
	fn(state)
	s.emitMu.Unlock()

	if start {
		go func() {
			if err := s.refresh(context.Background()); err != nil {
				s.logger.Warn("initial session fetch failed", "error", err)
			}
		}()
	}

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// active reports whether anyone ever subscribed.
func (s *sessionStore) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// refresh refetches the session. Only an error response from the provider
// clears the last known session.
func (s *sessionStore) refresh(ctx context.Context) error {
	data, err := s.fetch(ctx)

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	next := authbridge.SessionState{Data: data, Error: err}
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			next.Data = s.state.Data
		}
	}
	s.state = next
	listeners := make([]func(authbridge.SessionState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return err
}

func (s *sessionStore) current() authbridge.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
