package backend

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/credentials"
)

type skipCredentialsKey struct{}

// withoutCredentials marks calls that carry their own token.
func withoutCredentials(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCredentialsKey{}, true)
}

// Credentials returns per-RPC credentials that attach the confirmed token to
// every call. Calls made before a token is confirmed go out without one.
func (c *Client) Credentials() credentials.PerRPCCredentials {
	return tokenCredentials{c: c}
}

type tokenCredentials struct {
	c *Client
}

func (t tokenCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	if skip, _ := ctx.Value(skipCredentialsKey{}).(bool); skip {
		return nil, nil
	}
	token := t.c.Token()
	if token == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

func (t tokenCredentials) RequireTransportSecurity() bool {
	return t.c.secure
}

// TokenSource returns the confirmed token as an oauth2.TokenSource.
func (c *Client) TokenSource() oauth2.TokenSource {
	return confirmedTokenSource{c: c}
}

type confirmedTokenSource struct {
	c *Client
}

func (s confirmedTokenSource) Token() (*oauth2.Token, error) {
	return newToken(s.c.Token())
}

// TokenSource adapts a fetcher to an oauth2.TokenSource. Tokens are fetched
// with ForceRefreshToken and reused until they expire.
func TokenSource(ctx context.Context, fetch FetchAccessToken) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, fetchTokenSource{ctx: ctx, fetch: fetch})
}

type fetchTokenSource struct {
	ctx   context.Context
	fetch FetchAccessToken
}

func (s fetchTokenSource) Token() (*oauth2.Token, error) {
	raw, err := s.fetch(s.ctx, FetchOptions{ForceRefreshToken: true})
	if err != nil {
		return nil, err
	}
	return newToken(raw)
}

func newToken(raw string) (*oauth2.Token, error) {
	if raw == "" {
		return nil, ErrNoToken
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if exp, ok := ExpiresAt(raw); ok {
		tok.Expiry = exp
	}
	return tok, nil
}

// ExpiresAt reads the exp claim of a JWT without verifying it. ok is false
// when token is not a JWT or has no exp.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
