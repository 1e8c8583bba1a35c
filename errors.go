package authbridge

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrNoBackendURL is returned when no backend client was given and no backend
// URL could be resolved from the options or the environment.
var ErrNoBackendURL = errors.New("no backend URL provided: pass BackendURL or set PUBLIC_CONVEX_URL")

// ErrNoAuthClient is returned when Options.AuthClient is nil
var ErrNoAuthClient = errors.New("no auth client provided")

// ErrNoAuthContext is the panic value of UseAuth outside an auth scope
var ErrNoAuthContext = errors.New("UseAuth must be called with a context derived from WithAuth")

// ErrClosed is returned by operations on a closed Auth
var ErrClosed = errors.New("auth is closed")

// NetworkError marks a failure to reach the provider or the backend at the
// transport level. These are the only errors the token fetcher retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return "network error: " + e.Err.Error()
	}
	return e.Op + ": network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is a transient transport failure.
// Cancellation by the caller is never a network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
