package authbridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default retry schedule for token exchanges
const (
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 1000 * time.Millisecond
	DefaultMaxRetries     = 10
)

// RetryPolicy configures FetchTokenWithRetry. The zero value is usable and
// means the defaults above.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger receives one record per retry decision. Nil disables logging.
	Logger *slog.Logger
}

// EnsureDefaults fills in unset fields.
func (p *RetryPolicy) EnsureDefaults() *RetryPolicy {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// newBackOff returns min(initial*2^n, max) with ±50% jitter for the n-th call.
func (p *RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

func (p *RetryPolicy) log(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Info(msg, args...)
	}
}

// FetchTokenWithRetry exchanges the provider credential for a backend token.
//
// Network errors are retried with exponential backoff and jitter, up to
// MaxRetries times; the failure after the last retry is returned. Any other
// error is returned immediately. A successful exchange without a token
// payload returns "" and a nil error.
func FetchTokenWithRetry(ctx context.Context, exchanger TokenExchanger, header http.Header, policy RetryPolicy) (string, error) {
	policy.EnsureDefaults()
	b := policy.newBackOff()

	retries := 0
	for {
		data, err := exchanger.ConvexToken(ctx, header)
		if err == nil {
			if data == nil {
				return "", nil
			}
			return data.Token, nil
		}
		if !IsNetworkError(err) {
			return "", err
		}
		if retries >= policy.MaxRetries {
			policy.log("fetchToken failed with network error, giving up", "retries", retries, "error", err)
			return "", err
		}

		delay := b.NextBackOff()
		retries++
		policy.log("fetchToken failed with network error, retrying", "attempt", retries, "backoff", delay)
		if err := policy.Sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// browserFetcher only hands out a token when the backend asks for a fresh
// one; the session cookie is the cache.
func (a *Auth) browserFetcher() FetchAccessToken {
	return func(ctx context.Context, opts FetchOptions) (string, error) {
		if !opts.ForceRefreshToken {
			return "", nil
		}
		token, err := FetchTokenWithRetry(ctx, a.client, nil, a.retry)
		if err != nil {
			return "", err
		}
		a.logVerbose("browser: returning retrieved token")
		return token, nil
	}
}

// externalFetcher always exchanges the external credential, ignoring
// ForceRefreshToken.
func (a *Auth) externalFetcher(session ExternalSession) FetchAccessToken {
	return func(ctx context.Context, _ FetchOptions) (string, error) {
		raw, err := session.GetAccessToken(ctx)
		if err != nil {
			a.setHasCredential(false)
			return "", err
		}
		if raw == "" {
			a.logVerbose("external: no access token")
			a.setHasCredential(false)
			return "", nil
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+raw)
		token, err := FetchTokenWithRetry(ctx, a.client, header, a.retry)
		if err != nil {
			a.setHasCredential(false)
			return "", err
		}
		a.setHasCredential(token != "")
		return token, nil
	}
}
