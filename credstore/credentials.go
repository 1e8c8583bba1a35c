// Package credstore keeps provider credentials (device tokens, API keys,
// session tokens) for headless use, keyed by server URL.
package credstore

import (
	"context"
	"time"
)

// Credential kinds
const (
	KindSession     = "session"
	KindDeviceToken = "device_token"
	KindAPIKey      = "api_key"
)

// Credential holds a provider credential for a single server
type Credential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	UserEmail   string    `json:"user_email,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired returns true if the credential has expired. A zero ExpiresAt
// never expires.
func (c *Credential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Store defines the interface for storing and retrieving credentials
type Store interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*Credential, error)

	// SetCredential stores a credential for a server URL
	SetCredential(serverURL string, cred *Credential) error

	// RemoveCredential removes a credential for a server URL
	RemoveCredential(serverURL string) error

	// ListServers returns all server URLs with stored credentials
	ListServers() ([]string, error)

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// Watcher is implemented by stores that can report outside changes.
type Watcher interface {
	// Watch calls onChange after the stored credentials changed, until ctx
	// is done.
	Watch(ctx context.Context, onChange func()) error
}
