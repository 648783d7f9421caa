package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// VerifyFunc validates an access token and returns the user ID it carries.
type VerifyFunc func(tokenString string) (userID string, err error)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// VerifyToken validates bearer tokens from incoming metadata.
	// Wire this to authkit.NewTokenVerifier(issuer).
	VerifyToken VerifyFunc

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verify VerifyFunc) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		VerifyToken:   verify,
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

// UnaryAuthInterceptor returns a gRPC unary interceptor that authenticates
// requests. The resolved user ID is placed in the handler context and can be
// read with UserIDFromContext.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = normalizeConfig(config)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		userID, err := resolveUserID(ctx, config)
		if err != nil {
			return nil, err
		}

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if userID == "" {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		if userID != "" {
			ctx = ContextWithUserID(ctx, userID)
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that authenticates
// requests the same way UnaryAuthInterceptor does.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = normalizeConfig(config)

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		userID, err := resolveUserID(ctx, config)
		if err != nil {
			return err
		}

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if userID == "" {
				return status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		if userID != "" {
			ss = &wrappedStream{ServerStream: ss, ctx: ContextWithUserID(ctx, userID)}
		}
		return handler(srv, ss)
	}
}

func normalizeConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	return config
}

// resolveUserID authenticates the incoming request. A present-but-invalid
// token is an error even for public methods; a missing token is not.
func resolveUserID(ctx context.Context, config *InterceptorConfig) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	if config.Config.TrustGatewayUserID {
		if values := md.Get(config.Config.MetadataKeyUserID); len(values) > 0 && values[0] != "" {
			return values[0], nil
		}
	}

	token := bearerFromMetadata(md, config.Config.MetadataKeyAuthorization)
	if token == "" {
		return "", nil
	}
	if config.VerifyToken == nil {
		return "", nil
	}
	userID, err := config.VerifyToken(token)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "invalid access token")
	}
	return userID, nil
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
