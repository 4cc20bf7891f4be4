package types

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenKind discriminates the per-user single record invariant.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether the kind is one of the known token kinds.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// ParseTokenKind normalizes user supplied kind names.
func ParseTokenKind(value string) (TokenKind, bool) {
	kind := TokenKind(strings.ToLower(strings.TrimSpace(value)))
	return kind, kind.Valid()
}

// TokenRecord is the single currently valid token of one kind for one user.
type TokenRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      TokenKind
	Token     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record is past its expiry at the given instant.
func (r TokenRecord) Expired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}

// CredentialStore persists at most one TokenRecord per (user, kind).
//
// Upsert replaces token, hash and expiry for an existing pair and must be
// atomic with respect to concurrent writers. Find and FindByHash report a
// missing record as nil, nil.
type CredentialStore interface {
	Upsert(ctx context.Context, record TokenRecord) (*TokenRecord, error)
	Find(ctx context.Context, userID uuid.UUID, kind TokenKind) (*TokenRecord, error)
	FindByHash(ctx context.Context, tokenHash string) (*TokenRecord, error)
}

// PairStore is implemented by credential stores that can replace a user's
// access and refresh records together. Either both records are written or
// neither is.
type PairStore interface {
	UpsertPair(ctx context.Context, access, refresh TokenRecord) error
}
