// Package session resolves a bearer credential into a request identity and
// silently reissues access tokens when a valid refresh token is presented.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/issuer"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
)

// State is the resolver state for a single request.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateVerifying       State = "verifying"
	StateAuthenticated   State = "authenticated"
	StateRejected        State = "rejected"
)

// Result is the outcome of Authenticate. RotatedToken is set whenever a new
// access token was minted: the bearer was a refresh token, or it was the
// latest access token for the user and had only lapsed.
type Result struct {
	State        State
	Identity     *types.Identity
	RotatedToken string
}

// Allowed reports whether the request may proceed.
func (r Result) Allowed() bool {
	return r.State == StateAuthenticated || r.State == StateUnauthenticated
}

// TokenAuthority verifies tokens and mints replacement access tokens.
// *issuer.Issuer satisfies it.
type TokenAuthority interface {
	Verify(kind types.TokenKind, token string) (*issuer.Claims, error)
	VerifyLapsed(kind types.TokenKind, token string) (*issuer.Claims, error)
	IssueAccess(ctx context.Context, claims issuer.Claims) (string, time.Time, error)
	Now() time.Time
}

// Config wires the resolver.
type Config struct {
	Authority TokenAuthority
	Store     types.CredentialStore
	Logger    types.Logger
	Listener  telemetry.Listener
}

// Resolver implements the verification state machine.
type Resolver struct {
	authority TokenAuthority
	store     types.CredentialStore
	logger    types.Logger
	listener  telemetry.Listener
}

// NewResolver validates cfg and returns a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Authority == nil {
		return nil, types.ErrMissingIssuer
	}
	if cfg.Store == nil {
		return nil, types.ErrMissingCredentialStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Resolver{
		authority: cfg.Authority,
		store:     cfg.Store,
		logger:    logger,
		listener:  cfg.Listener,
	}, nil
}

// Authenticate resolves token for a route. Public routes are always allowed;
// a failed credential on a public route yields an unauthenticated result with
// no identity and never triggers rotation.
func (r *Resolver) Authenticate(ctx context.Context, token string, public bool) (Result, error) {
	result, err := r.authenticate(ctx, strings.TrimSpace(token), public)
	if r.listener != nil {
		r.listener(ctx, telemetry.ValidationEvent{
			State:    string(result.State),
			Identity: result.Identity,
			Rotated:  result.RotatedToken != "",
		})
	}
	return result, err
}

func (r *Resolver) authenticate(ctx context.Context, token string, public bool) (Result, error) {
	if token == "" {
		if public {
			return Result{State: StateUnauthenticated}, nil
		}
		return Result{State: StateRejected}, types.ErrUnauthorized
	}

	// verifying
	if identity, ok := r.verifyAccess(ctx, token); ok {
		return Result{State: StateAuthenticated, Identity: identity}, nil
	}
	if public {
		return Result{State: StateUnauthenticated}, nil
	}

	identity, rotated, ok := r.rotate(ctx, token)
	if !ok {
		return Result{State: StateRejected}, types.ErrUnauthorized
	}
	return Result{State: StateAuthenticated, Identity: identity, RotatedToken: rotated}, nil
}

// verifyAccess accepts token only when it verifies under the access secret and
// matches the live access record of the user it names.
func (r *Resolver) verifyAccess(ctx context.Context, token string) (*types.Identity, bool) {
	claims, err := r.authority.Verify(types.TokenKindAccess, token)
	if err != nil {
		return nil, false
	}
	identity, err := claims.Identity(types.TokenKindAccess)
	if err != nil {
		return nil, false
	}
	record, err := r.store.FindByHash(ctx, issuer.Hash(token))
	if err != nil {
		r.logger.Error("session: access lookup failed", err, "user_id", identity.UserID)
		return nil, false
	}
	if record == nil ||
		record.UserID != identity.UserID ||
		record.Kind != types.TokenKindAccess ||
		record.Token != token ||
		record.Expired(r.authority.Now()) {
		return nil, false
	}
	return identity, true
}

// rotate renews the access token of the user behind token. Two bearers
// qualify: the user's live refresh token, or their latest access token once it
// has expired. Either way the stored refresh record must still be live.
func (r *Resolver) rotate(ctx context.Context, token string) (*types.Identity, string, bool) {
	claims, ok := r.refreshBearer(ctx, token)
	if !ok {
		claims, ok = r.lapsedAccessBearer(ctx, token)
	}
	if !ok {
		return nil, "", false
	}
	identity, err := claims.Identity(claims.kind)
	if err != nil {
		return nil, "", false
	}
	record, err := r.store.Find(ctx, identity.UserID, types.TokenKindRefresh)
	if err != nil {
		r.logger.Error("session: refresh lookup failed", err, "user_id", identity.UserID)
		return nil, "", false
	}
	if record == nil || record.Expired(r.authority.Now()) {
		return nil, "", false
	}
	if claims.kind == types.TokenKindRefresh && record.Token != token {
		return nil, "", false
	}
	rotated, _, err := r.authority.IssueAccess(ctx, claims.Claims)
	if err != nil {
		r.logger.Error("session: access rotation failed", err, "user_id", identity.UserID)
		return nil, "", false
	}
	r.logger.Debug("session: access token rotated", "user_id", identity.UserID, "bearer", claims.kind)
	return identity, rotated, true
}

type bearerClaims struct {
	issuer.Claims
	kind types.TokenKind
}

func (r *Resolver) refreshBearer(_ context.Context, token string) (bearerClaims, bool) {
	claims, err := r.authority.Verify(types.TokenKindRefresh, token)
	if err != nil {
		return bearerClaims{}, false
	}
	return bearerClaims{Claims: *claims, kind: types.TokenKindRefresh}, true
}

// lapsedAccessBearer accepts an expired access token only while it is still
// the stored access record of its user.
func (r *Resolver) lapsedAccessBearer(ctx context.Context, token string) (bearerClaims, bool) {
	claims, err := r.authority.VerifyLapsed(types.TokenKindAccess, token)
	if err != nil {
		return bearerClaims{}, false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		return bearerClaims{}, false
	}
	record, err := r.store.FindByHash(ctx, issuer.Hash(token))
	if err != nil {
		r.logger.Error("session: access lookup failed", err, "user_id", userID)
		return bearerClaims{}, false
	}
	if record == nil ||
		record.UserID != userID ||
		record.Kind != types.TokenKindAccess ||
		record.Token != token {
		return bearerClaims{}, false
	}
	return bearerClaims{Claims: *claims, kind: types.TokenKindAccess}, true
}

// ExtractBearer returns the token from an Authorization header of the form
// "Bearer <token>". Anything else yields an empty string.
func ExtractBearer(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
