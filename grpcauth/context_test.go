package grpcauth

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
}

func TestEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
}

func TestBearerFromIncomingContext_NoMetadata(t *testing.T) {
	if token := BearerFromIncomingContext(context.Background()); token != "" {
		t.Errorf("expected empty token, got %q", token)
	}
}

func TestBearerFromIncomingContext(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"basic", "Basic dXNlcjpwYXNz", ""},
		{"empty token", "Bearer   ", ""},
		{"no scheme", "abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := metadata.Pairs(DefaultMetadataKeyAuthorization, tt.header)
			ctx := metadata.NewIncomingContext(context.Background(), md)
			if got := BearerFromIncomingContext(ctx); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBearerToOutgoingContext(t *testing.T) {
	ctx := BearerToOutgoingContext(context.Background(), "token123")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	values := md.Get(DefaultMetadataKeyAuthorization)
	if len(values) != 1 || values[0] != "Bearer token123" {
		t.Errorf("expected bearer header, got %v", values)
	}
}

func TestCustomMetadataKey(t *testing.T) {
	config := &Config{MetadataKeyAuthorization: "x-backend-auth"}
	md := metadata.Pairs("x-backend-auth", "Bearer custom")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	if got := BearerFromIncomingContextWithConfig(ctx, config); got != "custom" {
		t.Errorf("expected custom token, got %q", got)
	}
	if got := BearerFromIncomingContext(ctx); got != "" {
		t.Errorf("default key must not match, got %q", got)
	}
}

func TestSubjectFromContext(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected unauthenticated context")
	}
	ctx := ContextWithSubject(context.Background(), "user123")
	if SubjectFromContext(ctx) != "user123" || !IsAuthenticated(ctx) {
		t.Errorf("expected subject user123, got %q", SubjectFromContext(ctx))
	}
}
