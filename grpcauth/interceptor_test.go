package grpcauth

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func verifyToken(ctx context.Context, token string) (string, error) {
	switch token {
	case "good":
		return "user123", nil
	case "denied":
		return "", status.Error(codes.PermissionDenied, "denied")
	}
	return "", errors.New("bad signature")
}

func bearerContext(token string) context.Context {
	md := metadata.Pairs(DefaultMetadataKeyAuthorization, "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestDefaultInterceptorConfig(t *testing.T) {
	config := DefaultInterceptorConfig(verifyToken)
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true by default")
	}
	if config.PublicMethods == nil {
		t.Error("expected PublicMethods to be initialized")
	}
	if config.Config == nil {
		t.Error("expected Config to be initialized")
	}
}

func TestNewPublicMethodsConfig(t *testing.T) {
	config := NewPublicMethodsConfig(verifyToken, "/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
	if !config.PublicMethods["/pkg.Svc/Method1"] || !config.PublicMethods["/pkg.Svc/Method2"] {
		t.Error("expected Method1 and Method2 to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected Method3 to not be public")
	}
}

func TestOptionalAuthConfig(t *testing.T) {
	if OptionalAuthConfig(verifyToken).RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	tests := []struct {
		name        string
		config      *InterceptorConfig
		ctx         context.Context
		method      string
		wantCode    codes.Code
		wantSubject string
	}{
		{"no token", DefaultInterceptorConfig(verifyToken), context.Background(), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"nil config", nil, context.Background(), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"valid token", DefaultInterceptorConfig(verifyToken), bearerContext("good"), "/pkg.Svc/Method", codes.OK, "user123"},
		{"invalid token", DefaultInterceptorConfig(verifyToken), bearerContext("bad"), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"verifier code kept", DefaultInterceptorConfig(verifyToken), bearerContext("denied"), "/pkg.Svc/Method", codes.PermissionDenied, ""},
		{"public method", NewPublicMethodsConfig(verifyToken, "/pkg.Svc/Public"), context.Background(), "/pkg.Svc/Public", codes.OK, ""},
		{"public method with token", NewPublicMethodsConfig(verifyToken, "/pkg.Svc/Public"), bearerContext("good"), "/pkg.Svc/Public", codes.OK, "user123"},
		{"optional auth", OptionalAuthConfig(verifyToken), context.Background(), "/pkg.Svc/Method", codes.OK, ""},
		{"optional auth bad token", OptionalAuthConfig(verifyToken), bearerContext("bad"), "/pkg.Svc/Method", codes.OK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := UnaryAuthInterceptor(tt.config)
			info := &grpc.UnaryServerInfo{FullMethod: tt.method}

			var subject string
			handlerCalled := false
			_, err := interceptor(tt.ctx, nil, info, func(ctx context.Context, req any) (any, error) {
				handlerCalled = true
				subject = SubjectFromContext(ctx)
				return "result", nil
			})

			if code := status.Code(err); code != tt.wantCode {
				t.Fatalf("expected code %v, got %v (%v)", tt.wantCode, code, err)
			}
			if handlerCalled != (tt.wantCode == codes.OK) {
				t.Errorf("handlerCalled = %v", handlerCalled)
			}
			if subject != tt.wantSubject {
				t.Errorf("expected subject %q, got %q", tt.wantSubject, subject)
			}
		})
	}
}

// mockServerStream implements grpc.ServerStream for testing
type mockServerStream struct {
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context    { return m.ctx }
func (m *mockServerStream) SetHeader(metadata.MD) error  { return nil }
func (m *mockServerStream) SendHeader(metadata.MD) error { return nil }
func (m *mockServerStream) SetTrailer(metadata.MD)       {}
func (m *mockServerStream) SendMsg(any) error            { return nil }
func (m *mockServerStream) RecvMsg(any) error            { return nil }

func TestStreamAuthInterceptor_RequireAuth_NoToken(t *testing.T) {
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(verifyToken))

	stream := &mockServerStream{ctx: context.Background()}
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/StreamMethod"}

	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})

	st, ok := status.FromError(err)
	if !ok || err == nil {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", st.Code())
	}
}

func TestStreamAuthInterceptor_WithToken(t *testing.T) {
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(verifyToken))

	stream := &mockServerStream{ctx: bearerContext("good")}
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/StreamMethod"}

	var subject string
	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		subject = SubjectFromContext(ss.Context())
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "user123" {
		t.Errorf("expected subject user123, got %q", subject)
	}
}

func TestStreamAuthInterceptor_PublicMethod(t *testing.T) {
	interceptor := StreamAuthInterceptor(NewPublicMethodsConfig(verifyToken, "/pkg.Svc/PublicStream"))

	stream := &mockServerStream{ctx: context.Background()}
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/PublicStream"}

	handlerCalled := false
	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		handlerCalled = true
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error for public stream: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called for public stream")
	}
}
