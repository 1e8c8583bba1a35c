package authbridge

import (
	"context"
	"net/http"
	"time"

	"github.com/panyam/authbridge/backend"
)

// AuthSignal is the provider-side view of whether a session exists.
type AuthSignal int

const (
	// SignalUnknown means the provider has not delivered any session state yet.
	SignalUnknown AuthSignal = iota
	// SignalAbsent means the last emission carried no session data.
	SignalAbsent
	// SignalPresent means the last emission carried session data.
	SignalPresent
)

func (s AuthSignal) String() string {
	switch s {
	case SignalAbsent:
		return "absent"
	case SignalPresent:
		return "present"
	default:
		return "unknown"
	}
}

// BackendVerdict is what the backend reported after trying the credential.
type BackendVerdict int

const (
	// VerdictUnconfirmed means the backend has not answered (null).
	VerdictUnconfirmed BackendVerdict = iota
	// VerdictConfirmed means the backend accepted the credential (true).
	VerdictConfirmed
	// VerdictRejected means the backend refused the credential (false).
	VerdictRejected
)

// VerdictFromBool maps a backend confirmation callback argument to a verdict.
func VerdictFromBool(isAuthenticated bool) BackendVerdict {
	if isAuthenticated {
		return VerdictConfirmed
	}
	return VerdictRejected
}

func (v BackendVerdict) String() string {
	switch v {
	case VerdictConfirmed:
		return "confirmed"
	case VerdictRejected:
		return "rejected"
	default:
		return "unconfirmed"
	}
}

// InitialAuthState is the auth state a server rendered into the page payload.
// It is read once when an Auth is created.
type InitialAuthState struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// AuthState is the reconciled state exposed to consumers.
type AuthState struct {
	IsLoading       bool `json:"isLoading"`
	IsAuthenticated bool `json:"isAuthenticated"`
}

// FetchOptions and FetchAccessToken are shared with the backend client, which
// is the caller of every registered token fetcher.
type (
	FetchOptions     = backend.FetchOptions
	FetchAccessToken = backend.FetchAccessToken
)

// Session is the provider's session record.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// User is the provider's user record.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
	Image         string `json:"image,omitempty"`
}

// SessionData is the payload of a session emission when a user is signed in.
type SessionData struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

// SessionState is one emission of the provider's session stream.
type SessionState struct {
	Data      *SessionData
	IsPending bool
	Error     error
}

// TokenData is the body returned by the provider's backend token endpoint.
type TokenData struct {
	Token string `json:"token"`
}

// OneTimeTokenResult is returned when a one-time token is verified.
type OneTimeTokenResult struct {
	Session *Session `json:"session"`
	User    *User    `json:"user"`
}

// SessionSource delivers the provider's session stream. Subscribe must call
// fn with the current state and then once per change until unsubscribed.
type SessionSource interface {
	Subscribe(fn func(SessionState)) (unsubscribe func())
}

// TokenExchanger exchanges the provider credential carried by the client (a
// session cookie, or the Authorization header passed in) for a backend JWT.
// A nil *TokenData with a nil error means the provider returned no token.
type TokenExchanger interface {
	ConvexToken(ctx context.Context, header http.Header) (*TokenData, error)
}

// AuthClient is what the reconciler needs from the auth provider.
type AuthClient interface {
	SessionSource
	TokenExchanger
}

// CrossDomainClient is implemented by provider clients that support one-time
// token verification for cross-domain sign in.
type CrossDomainClient interface {
	VerifyOneTimeToken(ctx context.Context, token string) (*OneTimeTokenResult, error)
	GetSession(ctx context.Context, header http.Header) (*SessionData, error)
	UpdateSession(ctx context.Context) error
}

// BackendClient owns the single credential registration of the reactive
// backend. SetAuth supersedes any previous registration.
type BackendClient interface {
	SetAuth(fetch FetchAccessToken, onChange func(isAuthenticated bool))
	ClearAuth()
}

// ExternalSession supplies a provider credential (device token, API key or
// session token) for headless flows. An empty string means no credential.
type ExternalSession interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// ExternalSessionFunc adapts a function to ExternalSession.
type ExternalSessionFunc func(ctx context.Context) (string, error)

func (f ExternalSessionFunc) GetAccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Watcher is optionally implemented by an ExternalSession whose credential
// can change underneath it. onChange is called after each change.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}
