// Package issuer mints, persists and verifies the access/refresh token pair.
package issuer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL is the lifetime of access tokens.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the lifetime of refresh tokens.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config wires the issuer. Secrets are required and must differ.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Store         types.CredentialStore
	Clock         types.Clock
	Logger        types.Logger
	Metrics       *telemetry.Metrics
}

// Issuer signs HS256 tokens with a per-kind secret and records each issued
// token in the credential store.
type Issuer struct {
	access     []byte
	refresh    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	iss        string
	store      types.CredentialStore
	clock      types.Clock
	logger     types.Logger
	metrics    *telemetry.Metrics
}

// New validates cfg and returns an Issuer.
func New(cfg Config) (*Issuer, error) {
	access := strings.TrimSpace(cfg.AccessSecret)
	refresh := strings.TrimSpace(cfg.RefreshSecret)
	if access == "" || refresh == "" {
		return nil, types.ErrMissingSecrets
	}
	if access == refresh {
		return nil, types.ErrSharedSecret
	}
	if cfg.Store == nil {
		return nil, types.ErrMissingCredentialStore
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Issuer{
		access:     []byte(cfg.AccessSecret),
		refresh:    []byte(cfg.RefreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		iss:        strings.TrimSpace(cfg.Issuer),
		store:      cfg.Store,
		clock:      clock,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Issue mints an access and a refresh token for user and replaces both
// records. Both tokens are signed before anything is written. Stores that
// implement types.PairStore write the pair atomically; otherwise the refresh
// record is written first, so a failure never leaves a replaced access
// record behind a refresh token the caller never received.
func (i *Issuer) Issue(ctx context.Context, user types.User) (types.TokenPair, error) {
	if user.ID == uuid.Nil {
		return types.TokenPair{}, types.ErrUserIDRequired
	}
	claims := ClaimsFor(user)

	access, err := i.mint(types.TokenKindAccess, claims)
	if err != nil {
		return types.TokenPair{}, err
	}
	refresh, err := i.mint(types.TokenKindRefresh, claims)
	if err != nil {
		return types.TokenPair{}, err
	}

	if pairs, ok := i.store.(types.PairStore); ok {
		if err := pairs.UpsertPair(ctx, access, refresh); err != nil {
			i.logger.Error("issuer: persist token pair failed", err, "user_id", user.ID)
			return types.TokenPair{}, err
		}
		i.metrics.TokenIssued(string(types.TokenKindAccess))
		i.metrics.TokenIssued(string(types.TokenKindRefresh))
	} else {
		for _, record := range []types.TokenRecord{refresh, access} {
			if err := i.persist(ctx, record); err != nil {
				return types.TokenPair{}, err
			}
		}
	}

	return types.TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// IssueAccess mints and upserts a new access token bound to claims, replacing
// the user's previous access record.
func (i *Issuer) IssueAccess(ctx context.Context, claims Claims) (string, time.Time, error) {
	if _, err := claims.UserUUID(); err != nil {
		return "", time.Time{}, err
	}
	record, err := i.mint(types.TokenKindAccess, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := i.persist(ctx, record); err != nil {
		return "", time.Time{}, err
	}
	return record.Token, record.ExpiresAt, nil
}

// Verify checks token against the secret of kind, pinning HS256 and checking
// expiry against the issuer clock. Every failure is ErrUnauthorized.
func (i *Issuer) Verify(kind types.TokenKind, token string) (*Claims, error) {
	secret, err := i.secret(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, types.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if i.iss != "" {
		opts = append(opts, jwt.WithIssuer(i.iss))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, types.ErrUnauthorized
	}
	if _, err := claims.UserUUID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyLapsed checks the signature and issuer of token but accepts it past
// its expiry. It is only used to recognise an expired access bearer whose
// owner may still hold a live refresh token.
func (i *Issuer) VerifyLapsed(kind types.TokenKind, token string) (*Claims, error) {
	secret, err := i.secret(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, types.ErrUnauthorized
	}
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, types.ErrUnauthorized
	}
	if claims.ExpiresAt == nil || (i.iss != "" && claims.Issuer != i.iss) {
		return nil, types.ErrUnauthorized
	}
	if _, err := claims.UserUUID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Hash returns the lowercase hex SHA-256 digest of token.
func (i *Issuer) Hash(token string) string {
	return Hash(token)
}

// Hash returns the lowercase hex SHA-256 digest of token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Now exposes the issuer clock so verification callers share its notion of time.
func (i *Issuer) Now() time.Time {
	return i.clock.Now()
}

// Store returns the credential store records are written to.
func (i *Issuer) Store() types.CredentialStore {
	return i.store
}

// mint signs a token of kind and returns the record that would store it.
func (i *Issuer) mint(kind types.TokenKind, base Claims) (types.TokenRecord, error) {
	token, expiresAt, err := i.sign(kind, base)
	if err != nil {
		return types.TokenRecord{}, err
	}
	userID, _ := base.UserUUID()
	return types.TokenRecord{
		UserID:    userID,
		Kind:      kind,
		Token:     token,
		TokenHash: Hash(token),
		ExpiresAt: expiresAt,
	}, nil
}

func (i *Issuer) persist(ctx context.Context, record types.TokenRecord) error {
	if _, err := i.store.Upsert(ctx, record); err != nil {
		i.logger.Error("issuer: persist token failed", err, "user_id", record.UserID, "kind", record.Kind)
		return err
	}
	i.metrics.TokenIssued(string(record.Kind))
	return nil
}

func (i *Issuer) sign(kind types.TokenKind, base Claims) (string, time.Time, error) {
	secret, err := i.secret(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	now := i.clock.Now()
	ttl := i.accessTTL
	if kind == types.TokenKindRefresh {
		ttl = i.refreshTTL
	}
	expiresAt := now.Add(ttl)

	claims := base
	claims.Issuer = i.iss
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.NotBefore = nil
	claims.ID = uuid.NewString()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate truncates to seconds; report the value actually signed.
	return token, claims.ExpiresAt.Time, nil
}

func (i *Issuer) secret(kind types.TokenKind) ([]byte, error) {
	switch kind {
	case types.TokenKindAccess:
		return i.access, nil
	case types.TokenKindRefresh:
		return i.refresh, nil
	default:
		return nil, errors.Join(types.ErrTokenKindRequired, types.ErrUnauthorized)
	}
}
