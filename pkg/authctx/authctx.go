// Package authctx carries the verified request identity through a context.
package authctx

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	textCodeIdentityMissing = "IDENTITY_CONTEXT_MISSING"
	textCodeIdentityInvalid = "IDENTITY_CONTEXT_INVALID"
)

type identityKey struct{}

type rotatedKey struct{}

// WithIdentity stores identity on ctx. A nil identity leaves ctx unchanged.
func WithIdentity(ctx context.Context, identity *types.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	copied := *identity
	return context.WithValue(ctx, identityKey{}, &copied)
}

// IdentityFromContext returns the identity attached by the session middleware.
func IdentityFromContext(ctx context.Context) (*types.Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*types.Identity)
	return identity, ok && identity != nil
}

// WithRotatedToken records that the resolver reissued an access token for the
// current request.
func WithRotatedToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, rotatedKey{}, token)
}

// RotatedTokenFromContext returns the access token minted during resolution,
// if any.
func RotatedTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(rotatedKey{}).(string)
	return token, ok && token != ""
}

// ResolveIdentity returns the identity stored on ctx or an authorization error
// when the request was not authenticated.
func ResolveIdentity(ctx context.Context) (*types.Identity, error) {
	if ctx == nil {
		return nil, errors.New("go-credentials: missing request context", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeIdentityMissing)
	}
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, errors.New("go-credentials: identity not found on request", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeIdentityMissing)
	}
	if identity.UserID == uuid.Nil {
		return nil, errors.New("go-credentials: identity missing user id", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeIdentityInvalid)
	}
	return identity, nil
}

type clientIPKey struct{}

// WithClientIP records the caller address for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the caller address, if recorded.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
