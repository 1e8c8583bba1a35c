package server

import (
	"encoding/json"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/panyam/authbridge"
	"github.com/panyam/authbridge/backend"
)

// InitialState is the auth state to render into the page for r. It reads the
// token stored by Hooks and falls back to the cookie.
func InitialState(r *http.Request) *authbridge.InitialAuthState {
	return &authbridge.InitialAuthState{IsAuthenticated: requestToken(r) != ""}
}

// StateHandler serves InitialState as JSON, for clients that are not
// rendered by this server.
func StateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(InitialState(r))
	})
}

// TokenSource returns the request's JWT as a static token source for server
// side backend calls, or nil when the request carries none.
func TokenSource(r *http.Request) oauth2.TokenSource {
	token := requestToken(r)
	if token == "" {
		return nil
	}
	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, ok := backend.ExpiresAt(token); ok {
		tok.Expiry = exp
	}
	return oauth2.StaticTokenSource(tok)
}

func requestToken(r *http.Request) string {
	if t := TokenFromContext(r.Context()); t != "" {
		return t
	}
	return GetToken(r)
}
