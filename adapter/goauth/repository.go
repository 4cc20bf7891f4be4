package goauth

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-credentials/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Users is the subset of go-auth's auth.Users repository the adapter needs.
type Users interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error)
	Create(ctx context.Context, record *auth.User) (*auth.User, error)
	Update(ctx context.Context, record *auth.User) (*auth.User, error)
}

// UsersAdapter lets hosts that already run go-auth keep its users table as the
// account store for credential flows.
type UsersAdapter struct {
	repo  Users
	clock types.Clock
}

// UsersAdapterOption customizes adapter construction.
type UsersAdapterOption func(*UsersAdapter)

// WithClock overrides the clock used to stamp created and updated rows.
func WithClock(clock types.Clock) UsersAdapterOption {
	return func(adapter *UsersAdapter) {
		if clock != nil {
			adapter.clock = clock
		}
	}
}

// NewUsersAdapter builds a UsersAdapter around repo.
func NewUsersAdapter(repo Users, opts ...UsersAdapterOption) *UsersAdapter {
	adapter := &UsersAdapter{
		repo:  repo,
		clock: types.SystemClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

var _ types.UserStore = (*UsersAdapter)(nil)

// FindByEmailOrID resolves key through go-auth's identifier lookup. Missing
// users are reported as (nil, nil).
func (a *UsersAdapter) FindByEmailOrID(ctx context.Context, key string, opts types.FindOptions) (*types.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	record, err := a.repo.GetByIdentifier(ctx, key)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	user := toDomain(record)
	if user != nil && !opts.WithPasswordHash {
		user.PasswordHash = ""
	}
	return user, nil
}

// Create inserts user as an active go-auth account.
func (a *UsersAdapter) Create(ctx context.Context, user types.User) (*types.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := a.clock.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	record := fromDomain(&user, nil)
	record.Status = auth.UserStatusActive
	created, err := a.repo.Create(ctx, record)
	if err != nil {
		if repository.IsDuplicatedKey(err) {
			return nil, types.ErrDuplicateAccount
		}
		return nil, err
	}
	return toDomain(created), nil
}

// Update applies patch on top of the stored go-auth record.
func (a *UsersAdapter) Update(ctx context.Context, id uuid.UUID, patch types.UserPatch) (*types.User, error) {
	if id == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	record, err := a.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	user := toDomain(record)
	if patch.IsEmpty() {
		return user, nil
	}
	patch.Apply(user)

	next := fromDomain(user, record)
	next.UpdatedAt = timePtr(a.clock.Now())
	updated, err := a.repo.Update(ctx, next)
	if err != nil {
		return nil, err
	}
	return toDomain(updated), nil
}
