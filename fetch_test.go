package authbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestFetchTokenWithRetryBackoffBounds(t *testing.T) {
	netErr := &NetworkError{Op: "convex token", Err: syscall.ECONNREFUSED}
	ex := &fakeExchanger{results: []exchangeResult{{err: netErr}}}

	var delays []time.Duration
	policy := RetryPolicy{Sleep: func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}}

	_, err := FetchTokenWithRetry(context.Background(), ex, nil, policy)
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("expected the last network error, got %v", err)
	}
	if ex.callCount() != 11 {
		t.Errorf("expected 11 attempts, got %d", ex.callCount())
	}
	if len(delays) != 10 {
		t.Fatalf("expected 10 waits, got %d", len(delays))
	}
	for i, d := range delays {
		base := 100 * time.Millisecond << i
		if base > time.Second {
			base = time.Second
		}
		lo, hi := base/2, base*3/2
		if d < lo || d > hi {
			t.Errorf("wait %d: %v outside [%v, %v]", i+1, d, lo, hi)
		}
	}
}

func TestFetchTokenWithRetryRecovers(t *testing.T) {
	ex := &fakeExchanger{results: []exchangeResult{
		{err: &net.OpError{Op: "dial", Err: syscall.ECONNRESET}},
		{err: io.ErrUnexpectedEOF},
		{data: &TokenData{Token: "jwt"}},
	}}
	sleeps := 0
	policy := RetryPolicy{Sleep: func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}}

	token, err := FetchTokenWithRetry(context.Background(), ex, nil, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "jwt" {
		t.Errorf("expected jwt, got %q", token)
	}
	if sleeps != 2 {
		t.Errorf("expected 2 waits, got %d", sleeps)
	}
}

func TestFetchTokenWithRetryNonNetworkError(t *testing.T) {
	ex := &fakeExchanger{results: []exchangeResult{{err: errUnauthorized}}}
	sleeps := 0
	policy := RetryPolicy{Sleep: func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}}

	_, err := FetchTokenWithRetry(context.Background(), ex, nil, policy)
	if !errors.Is(err, errUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if ex.callCount() != 1 || sleeps != 0 {
		t.Errorf("expected one attempt and no waits, got %d attempts, %d waits", ex.callCount(), sleeps)
	}
}

func TestFetchTokenWithRetryNoPayload(t *testing.T) {
	ex := &fakeExchanger{results: []exchangeResult{{data: nil}}}
	token, err := FetchTokenWithRetry(context.Background(), ex, nil, RetryPolicy{Sleep: noSleep})
	if err != nil || token != "" {
		t.Errorf("expected empty token and nil error, got %q, %v", token, err)
	}
}

func TestFetchTokenWithRetryPassesHeader(t *testing.T) {
	ex := &fakeExchanger{results: []exchangeResult{{data: &TokenData{Token: "jwt"}}}}
	header := http.Header{}
	header.Set("Authorization", "Bearer device-token")

	if _, err := FetchTokenWithRetry(context.Background(), ex, header, RetryPolicy{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ex.headers[0].Get("Authorization"); got != "Bearer device-token" {
		t.Errorf("expected header to be forwarded, got %q", got)
	}
}

func TestFetchTokenWithRetryCancelled(t *testing.T) {
	ex := &fakeExchanger{results: []exchangeResult{{err: &NetworkError{Err: syscall.ECONNREFUSED}}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchTokenWithRetry(ctx, ex, nil, RetryPolicy{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ex.callCount() != 1 {
		t.Errorf("expected one attempt, got %d", ex.callCount())
	}
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped network error", fmt.Errorf("exchange: %w", &NetworkError{Err: errors.New("boom")}), true},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true},
		{"dns error", &net.DNSError{Err: "no such host", Name: "x"}, true},
		{"connection refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), false},
		{"plain", errUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetworkError(tt.err); got != tt.want {
				t.Errorf("IsNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
