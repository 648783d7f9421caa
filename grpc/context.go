// Package grpc provides interceptors and context utilities for
// authenticating gRPC requests with authkit access tokens.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for authentication context.
// These can be customized via Config if needed.
const (
	// DefaultMetadataKeyAuthorization is the default gRPC metadata key carrying
	// the bearer access token
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyUserID is the default gRPC metadata key for a
	// pre-authenticated user ID set by a trusted gateway
	DefaultMetadataKeyUserID = "x-user-id"
)

type contextKey string

const userIDContextKey contextKey = "authkit-user-id"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key for the bearer token.
	// Defaults to "authorization".
	MetadataKeyAuthorization string

	// MetadataKeyUserID is the gRPC metadata key for a gateway-injected user ID.
	// Defaults to "x-user-id".
	MetadataKeyUserID string

	// TrustGatewayUserID when true accepts the user ID metadata key without
	// verifying a token. Only enable behind a gateway that strips the key
	// from external traffic.
	TrustGatewayUserID bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyUserID:        DefaultMetadataKeyUserID,
		TrustGatewayUserID:       false,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
}

// UserIDFromContext extracts the authenticated user ID placed in the context
// by the auth interceptor. Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey).(string); ok {
		return userID
	}
	return ""
}

// ContextWithUserID returns a context carrying the authenticated user ID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// TokenToOutgoingContext adds a bearer access token to outgoing gRPC metadata.
func TokenToOutgoingContext(ctx context.Context, accessToken string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+accessToken)
}

// UserIDToOutgoingContext adds a gateway user ID to outgoing gRPC metadata.
// Only honored by servers configured with TrustGatewayUserID.
func UserIDToOutgoingContext(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyUserID, userID)
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// bearerFromMetadata extracts the bearer token from incoming metadata.
func bearerFromMetadata(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	parts := strings.SplitN(values[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
