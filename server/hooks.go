package server

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

// SessionTokenKey is the scs key the token is mirrored under.
const SessionTokenKey = "convex_jwt"

type tokenKey struct{}

// WithToken stores the backend JWT in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token Hooks stored, or "".
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// Hooks runs before every request and makes the JWT available to handlers.
type Hooks struct {
	Cookie TokenCookie

	// Sessions, when set, mirrors the token into the scs session so code that
	// only has the session can read it. The mirror is removed as soon as the
	// cookie is gone.
	Sessions *scs.SessionManager
}

// Middleware stores the request's JWT in the request context.
func (h *Hooks) Middleware(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.Cookie.Get(r)
		if h.Sessions != nil {
			switch {
			case token != "" && h.Sessions.GetString(r.Context(), SessionTokenKey) != token:
				h.Sessions.Put(r.Context(), SessionTokenKey, token)
			case token == "" && h.Sessions.Exists(r.Context(), SessionTokenKey):
				h.Sessions.Remove(r.Context(), SessionTokenKey)
			}
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
	if h.Sessions != nil {
		return h.Sessions.LoadAndSave(inner)
	}
	return inner
}
