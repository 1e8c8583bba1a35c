// Package grpcauth carries backend bearer tokens in gRPC metadata and checks
// them on the server side.
package grpcauth

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the gRPC metadata key carrying the bearer token
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// BearerFromIncomingContext returns the bearer token of an incoming call, or
// "" when there is none.
func BearerFromIncomingContext(ctx context.Context) string {
	return BearerFromIncomingContextWithConfig(ctx, nil)
}

// BearerFromIncomingContextWithConfig is BearerFromIncomingContext with custom keys.
func BearerFromIncomingContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthorization) {
		if token, ok := parseBearer(v); ok {
			return token
		}
	}
	return ""
}

// BearerToOutgoingContext attaches token as a bearer credential to outgoing
// calls made with ctx.
func BearerToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

func parseBearer(v string) (string, bool) {
	const prefix = "bearer "
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(v[len(prefix):])
	return token, token != ""
}

type subjectKey struct{}

// ContextWithSubject records the verified subject of a call.
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject the interceptor verified, or "".
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// IsAuthenticated returns true if the call carried a verified token.
func IsAuthenticated(ctx context.Context) bool {
	return SubjectFromContext(ctx) != ""
}
