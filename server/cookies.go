// Package server holds the server-side helpers of an app that renders pages
// for authbridge clients: reading the provider's JWT cookie, request hooks,
// the initial auth state and a reverse proxy to the provider.
package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// Cookie naming used by the provider.
const (
	DefaultCookiePrefix = "better-auth"
	JWTCookieName       = "convex_jwt"
	SecureCookiePrefix  = "__Secure-"
)

// TokenCookie locates the backend JWT cookie the provider sets.
type TokenCookie struct {
	// Prefix defaults to "better-auth".
	Prefix string

	// Secure selects the "__Secure-" variant. Nil derives it from the
	// request: TLS or X-Forwarded-Proto: https.
	Secure *bool

	Logger *slog.Logger
}

func (c TokenCookie) prefix() string {
	if c.Prefix == "" {
		return DefaultCookiePrefix
	}
	return c.Prefix
}

func (c TokenCookie) secure(r *http.Request) bool {
	if c.Secure != nil {
		return *c.Secure
	}
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// Name returns the cookie name the provider uses for r.
func (c TokenCookie) Name(r *http.Request) string {
	name := c.prefix() + "." + JWTCookieName
	if c.secure(r) {
		return SecureCookiePrefix + name
	}
	return name
}

// Get returns the JWT from r, or "". When only the other variant of the
// cookie is present it logs a warning and still returns "": the provider
// and this server disagree about whether the site is served over https.
func (c TokenCookie) Get(r *http.Request) string {
	name := c.Name(r)
	if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
		return ck.Value
	}

	other := SecureCookiePrefix + name
	if strings.HasPrefix(name, SecureCookiePrefix) {
		other = strings.TrimPrefix(name, SecureCookiePrefix)
	}
	if ck, err := r.Cookie(other); err == nil && ck.Value != "" {
		logger := c.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("JWT cookie found under the wrong name; check the provider base URL scheme",
			"expected", name, "found", other)
	}
	return ""
}

// GetToken returns the backend JWT cookie of r using the default naming.
func GetToken(r *http.Request) string {
	return TokenCookie{}.Get(r)
}
