package grpcauth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VerifyFunc checks a bearer token and returns its subject.
type VerifyFunc func(ctx context.Context, token string) (subject string, err error)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Verify checks bearer tokens. Required.
	Verify VerifyFunc

	// RequireAuth when true rejects calls without a valid token.
	// When false, such calls proceed with no subject.
	RequireAuth bool

	// PublicMethods is a set of full method names ("/package.Service/Method")
	// that don't require auth. Only used when RequireAuth is true.
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verify VerifyFunc) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verify:        verify,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(verify VerifyFunc, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verify)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(verify VerifyFunc) *InterceptorConfig {
	config := DefaultInterceptorConfig(verify)
	config.RequireAuth = false
	return config
}

func (config *InterceptorConfig) prepare() *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	return config
}

// authenticate returns the context the handler runs with.
func (config *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	required := config.RequireAuth && !config.PublicMethods[method]

	token := BearerFromIncomingContextWithConfig(ctx, config.Config)
	if token == "" || config.Verify == nil {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	subject, err := config.Verify(ctx, token)
	if err != nil {
		if !required {
			return ctx, nil
		}
		// Verifiers may pick their own code, e.g. PermissionDenied.
		if code := status.Code(err); code != codes.Unknown {
			return nil, err
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return ContextWithSubject(ctx, subject), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies bearer tokens.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.prepare()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies bearer tokens.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.prepare()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authServerStream{ServerStream: ss, ctx: ctx})
	}
}

type authServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authServerStream) Context() context.Context { return s.ctx }
