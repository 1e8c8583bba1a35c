package authbridge

import (
	"context"
	"fmt"
)

type authContextKey struct{}

// View is the read-only face of an Auth handed to consumers.
type View struct {
	auth *Auth
}

func (v View) IsLoading() bool       { return v.auth.IsLoading() }
func (v View) IsAuthenticated() bool { return v.auth.IsAuthenticated() }
func (v View) State() AuthState      { return v.auth.State() }

// FetchAccessToken fetches a backend token through the installed Auth.
func (v View) FetchAccessToken(ctx context.Context, opts FetchOptions) (string, error) {
	return v.auth.FetchAccessToken(ctx, opts)
}

// Subscribe forwards to Auth.Subscribe.
func (v View) Subscribe(fn func(AuthState)) (unsubscribe func()) {
	return v.auth.Subscribe(fn)
}

// WithAuth installs a in ctx.
func WithAuth(ctx context.Context, a *Auth) context.Context {
	return context.WithValue(ctx, authContextKey{}, a)
}

// FromContext returns the View installed in ctx, if any.
func FromContext(ctx context.Context) (View, bool) {
	a, ok := ctx.Value(authContextKey{}).(*Auth)
	if !ok || a == nil {
		return View{}, false
	}
	return View{auth: a}, true
}

// UseAuth returns the View installed in ctx. It panics when ctx carries no
// Auth: reading auth state outside an installed scope is a programming error.
func UseAuth(ctx context.Context) View {
	v, ok := FromContext(ctx)
	if !ok {
		panic(fmt.Errorf("UseAuth: %w", ErrNoAuthContext))
	}
	return v
}
