package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-credentials/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires dependencies for the Bun-backed user store.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.UserStore.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default user store. WithCache wraps the record
// repository with go-repository-cache so repeated lookups by email or id skip
// the database until the row is written again. Lookups only go through
// GetByID and GetByIdentifier, whose cache keys carry the lookup value.
func NewRepository(cfg RepositoryConfig, opts ...RepositoryOption) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("accounts: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = newRecordRepository(cfg.DB)
	}

	options := applyRepositoryOptions(opts)
	if options.CacheEnabled {
		if _, cached := repo.(*repositorycache.CachedRepository[*Record]); !cached {
			cfgCache := cache.DefaultConfig()
			if options.CacheConfig != nil {
				cfgCache = *options.CacheConfig
			}
			cacheService, err := cache.NewCacheService(cfgCache)
			if err != nil {
				return nil, err
			}
			repo = repositorycache.NewWithIdentifierFields(repo, cacheService, cache.NewDefaultKeySerializer(), identifierField)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}

	return &Repository{
		store: repo,
		clock: clock,
		idGen: idGen,
	}, nil
}

// identifierField is the Record field backing GetByIdentifier.
const identifierField = "Email"

func newRecordRepository(db *bun.DB) repository.Repository[*Record] {
	return repository.NewRepository(db, repository.ModelHandlers[*Record]{
		NewRecord: func() *Record { return &Record{} },
		GetIdentifier: func() string {
			return "email"
		},
		GetIdentifierValue: func(rec *Record) string {
			if rec == nil {
				return ""
			}
			return rec.Email
		},
		GetID: func(rec *Record) uuid.UUID {
			if rec == nil {
				return uuid.Nil
			}
			return rec.ID
		},
		SetID: func(rec *Record, id uuid.UUID) {
			if rec != nil {
				rec.ID = id
			}
		},
	})
}

var _ types.UserStore = (*Repository)(nil)

// FindByEmailOrID resolves a UUID key against the primary key and any other
// key against the email column. The password hash is only returned on request.
func (r *Repository) FindByEmailOrID(ctx context.Context, key string, opts types.FindOptions) (*types.User, error) {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return nil, nil
	}
	rec, err := r.lookup(ctx, normalized)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	user := toDomain(rec)
	if !opts.WithPasswordHash {
		user.PasswordHash = ""
	}
	return user, nil
}

// Create inserts a new user. Emails are unique; collisions surface as
// types.ErrDuplicateAccount.
func (r *Repository) Create(ctx context.Context, user types.User) (*types.User, error) {
	email := normalizeEmail(user.Email)
	if email == "" {
		return nil, errors.New("accounts: email required")
	}
	now := r.clock.Now()
	rec := fromDomain(user)
	rec.Email = email
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if strings.TrimSpace(rec.Role) == "" {
		rec.Role = types.RoleUser
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	created, err := r.store.Create(ctx, rec)
	if err != nil {
		if isDuplicate(err) {
			return nil, types.ErrDuplicateAccount
		}
		return nil, err
	}
	return toDomain(created), nil
}

// Update applies patch to the user identified by id.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch types.UserPatch) (*types.User, error) {
	if id == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec, err := r.store.GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return toDomain(rec), nil
	}
	user := toDomain(rec)
	patch.Apply(user)

	next := fromDomain(*user)
	next.CreatedAt = rec.CreatedAt
	next.UpdatedAt = r.clock.Now()
	updated, err := r.store.Update(ctx, next)
	if err != nil {
		return nil, err
	}
	return toDomain(updated), nil
}

func isDuplicate(err error) bool {
	if repository.IsDuplicatedKey(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// lookup resolves a UUID key against the primary key and anything else
// against the email column.
func (r *Repository) lookup(ctx context.Context, key string) (*Record, error) {
	if id, err := uuid.Parse(key); err == nil {
		return r.store.GetByID(ctx, id.String())
	}
	return r.store.GetByIdentifier(ctx, normalizeEmail(key))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func fromDomain(user types.User) *Record {
	return &Record{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		AvatarURL:    user.AvatarURL,
		Role:         user.Role,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.User {
	if rec == nil {
		return nil
	}
	return &types.User{
		ID:           rec.ID,
		Email:        rec.Email,
		Username:     rec.Username,
		Name:         rec.Name,
		PasswordHash: rec.PasswordHash,
		AvatarURL:    rec.AvatarURL,
		Role:         rec.Role,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}
