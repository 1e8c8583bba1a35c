package credstore

import (
	"context"
	"fmt"
)

// Session serves the stored credential for one server as an
// authbridge.ExternalSession.
type Session struct {
	Store     Store
	ServerURL string
}

// GetAccessToken returns the stored access token, or "" when there is none
// or it expired.
func (s *Session) GetAccessToken(ctx context.Context) (string, error) {
	cred, err := s.Store.GetCredential(s.ServerURL)
	if err != nil {
		return "", fmt.Errorf("read credential for %s: %w", s.ServerURL, err)
	}
	if cred == nil || cred.IsExpired() {
		return "", nil
	}
	return cred.AccessToken, nil
}

// Watch forwards to the store when it is a Watcher and otherwise returns
// at once.
func (s *Session) Watch(ctx context.Context, onChange func()) error {
	w, ok := s.Store.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, onChange)
}
