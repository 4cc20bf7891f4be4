package types

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the identity record owned by the User Store. Only the fields token
// logic depends on are modeled here.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	Name         string
	PasswordHash string
	AvatarURL    string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy of the user without the password hash so it can be
// handed back to callers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return strings.TrimSpace(u.PasswordHash) != ""
}

// UserPatch carries partial updates applied by UserStore.Update. Nil fields are
// left untouched.
type UserPatch struct {
	Username  *string
	Name      *string
	AvatarURL *string
	Role      *string
}

// IsEmpty reports whether the patch carries no changes.
func (p UserPatch) IsEmpty() bool {
	return p.Username == nil && p.Name == nil && p.AvatarURL == nil && p.Role == nil
}

// Apply copies the populated patch fields onto the user.
func (p UserPatch) Apply(user *User) {
	if user == nil {
		return
	}
	if p.Username != nil {
		user.Username = *p.Username
	}
	if p.Name != nil {
		user.Name = *p.Name
	}
	if p.AvatarURL != nil {
		user.AvatarURL = *p.AvatarURL
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
}

// FindOptions tunes UserStore lookups.
type FindOptions struct {
	WithPasswordHash bool
}

// UserStore looks up, creates and updates user records.
//
// FindByEmailOrID resolves the key against the email column first and, when it
// parses as a UUID, the primary key. Missing users are reported as nil, nil.
type UserStore interface {
	FindByEmailOrID(ctx context.Context, key string, opts FindOptions) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
	Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error)
}

// PasswordVerifier compares a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(ctx context.Context, hash, password string) (bool, error)
}

// PasswordHasher derives a storable hash from a plaintext password.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
}

// ImageFetcher downloads a remote image and persists it, returning the URL the
// stored copy is served from.
type ImageFetcher interface {
	FetchAndStore(ctx context.Context, remoteURL string) (string, error)
}

// IdentityClaim is a decoded federated identity assertion. It is only used to
// look up or create a local user.
type IdentityClaim struct {
	Issuer          string
	Audience        string
	AuthorizedParty string
	Subject         string
	Email           string
	EmailVerified   bool
	Name            string
	GivenName       string
	FamilyName      string
	Picture         string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Username derives the default username from the email local part.
func (c IdentityClaim) Username() string {
	local, _, _ := strings.Cut(strings.TrimSpace(c.Email), "@")
	return local
}

// Identity is the verified request identity attached by the session resolver.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	Username string
	Kind     TokenKind
}

// TokenPair groups freshly issued access and refresh tokens.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResult is returned by sign-in and sign-up flows.
type AuthResult struct {
	User   User
	Tokens TokenPair
}

// AccessGrant is returned by the explicit refresh flow. The refresh token is
// not rotated.
type AccessGrant struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Acknowledgement is returned by sign-out.
type Acknowledgement struct {
	Message string `json:"message"`
}

// ActivityRecord describes an audit entry emitted by credential flows.
type ActivityRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Verb       string
	ObjectType string
	ObjectID   string
	Channel    string
	IP         string
	Data       map[string]any
	OccurredAt time.Time
}

// ActivitySink is the minimal DI contract for emitting activity. Keep it stable
// and limited to Log so downstream modules can swap sinks without breaking
// changes.
type ActivitySink interface {
	Log(context.Context, ActivityRecord) error
}

// AuthEvent is emitted after a credential flow completes.
type AuthEvent struct {
	UserID     uuid.UUID
	Verb       string
	OccurredAt time.Time
}

// Hooks groups optional callbacks invoked after key workflows complete.
type Hooks struct {
	AfterAuth     func(context.Context, AuthEvent)
	AfterActivity func(context.Context, ActivityRecord)
}

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID creation.
type IDGenerator interface {
	UUID() uuid.UUID
}

// Logger captures basic logging hooks used by the service.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Error(msg string, err error, fields ...any)
}

// SystemClock defers to time.Now for production usage.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator produces UUIDv4 identifiers.
type UUIDGenerator struct{}

// UUID returns a randomly generated UUID.
func (UUIDGenerator) UUID() uuid.UUID { return uuid.New() }

// NopLogger discards all log lines.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, error, ...any) {}
