package authbridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// OneTimeTokenParam is the query parameter carrying a cross-domain one-time
// token.
const OneTimeTokenParam = "ott"

// Location is the mutable page location the one-time token is read from.
type Location interface {
	URL() *url.URL
	// Replace swaps the current location without adding a history entry.
	Replace(u *url.URL)
}

// MemoryLocation is a Location held in memory.
type MemoryLocation struct {
	mu  sync.Mutex
	cur *url.URL
}

// NewLocation parses raw into a MemoryLocation.
func NewLocation(raw string) (*MemoryLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse location: %w", err)
	}
	return &MemoryLocation{cur: u}, nil
}

func (l *MemoryLocation) URL() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := *l.cur
	return &u
}

func (l *MemoryLocation) Replace(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *u
	l.cur = &c
}

func (l *MemoryLocation) String() string {
	return l.URL().String()
}

// ConsumeOneTimeToken exchanges a one-time token found in loc for a session.
//
// The parameter is removed from loc before the exchange, so a failed or
// interrupted exchange cannot be replayed by reloading. Errors from the
// exchange are returned.
func ConsumeOneTimeToken(ctx context.Context, client CrossDomainClient, loc Location) error {
	u := loc.URL()
	q := u.Query()
	token := q.Get(OneTimeTokenParam)
	if token == "" {
		return nil
	}
	q.Del(OneTimeTokenParam)
	u.RawQuery = q.Encode()
	loc.Replace(u)

	result, err := client.VerifyOneTimeToken(ctx, token)
	if err != nil {
		return fmt.Errorf("verify one-time token: %w", err)
	}
	if result == nil || result.Session == nil || result.Session.Token == "" {
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+result.Session.Token)
	if _, err := client.GetSession(ctx, header); err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if err := client.UpdateSession(ctx); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
