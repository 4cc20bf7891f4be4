package tokens

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-credentials/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultMaxRetries = 3

var errPairUsers = errors.New("tokens: pair records belong to different users")

// RepositoryConfig wires the Bun-backed credential store.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
	Logger     types.Logger
	// MaxRetries bounds how many times a conflicting upsert is replayed.
	MaxRetries int
}

// Repository implements types.CredentialStore using Bun.
type Repository struct {
	store      repository.Repository[*Record]
	db         *bun.DB
	clock      types.Clock
	idGen      types.IDGenerator
	logger     types.Logger
	maxRetries int
}

// NewRepository constructs the default credential store.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("tokens: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
			NewRecord: func() *Record { return &Record{} },
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
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	return &Repository{
		store:      repo,
		db:         db,
		clock:      clock,
		idGen:      idGen,
		logger:     logger,
		maxRetries: retries,
	}, nil
}

var (
	_ types.CredentialStore = (*Repository)(nil)
	_ types.PairStore       = (*Repository)(nil)
)

// Upsert replaces the token for the (user, kind) pair in a single
// INSERT ... ON CONFLICT statement. Conflicts raised by racing writers are
// replayed up to MaxRetries times.
func (r *Repository) Upsert(ctx context.Context, record types.TokenRecord) (*types.TokenRecord, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}
	if r == nil || r.db == nil {
		return nil, errors.New("tokens: db required for upserts")
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastErr = r.upsertOnce(ctx, r.db, record)
		if lastErr == nil {
			return r.Find(ctx, record.UserID, record.Kind)
		}
		if !isConflict(lastErr) {
			return nil, lastErr
		}
		r.logger.Debug("tokens: retrying conflicting upsert",
			"user_id", record.UserID,
			"kind", record.Kind,
			"attempt", attempt+1,
		)
	}
	r.logger.Error("tokens: upsert retries exhausted", lastErr,
		"user_id", record.UserID,
		"kind", record.Kind,
	)
	return nil, errors.Join(types.ErrStoreConflict, lastErr)
}

// UpsertPair replaces both records of a user inside one transaction.
func (r *Repository) UpsertPair(ctx context.Context, access, refresh types.TokenRecord) error {
	if access.Kind != types.TokenKindAccess || refresh.Kind != types.TokenKindRefresh {
		return types.ErrTokenKindRequired
	}
	if access.UserID != refresh.UserID {
		return errPairUsers
	}
	for _, record := range []types.TokenRecord{access, refresh} {
		if err := validateRecord(record); err != nil {
			return err
		}
	}
	if r == nil || r.db == nil {
		return errors.New("tokens: db required for upserts")
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := r.upsertOnce(ctx, tx, refresh); err != nil {
				return err
			}
			return r.upsertOnce(ctx, tx, access)
		})
		if lastErr == nil {
			return nil
		}
		if !isConflict(lastErr) {
			return lastErr
		}
		r.logger.Debug("tokens: retrying conflicting pair upsert",
			"user_id", access.UserID,
			"attempt", attempt+1,
		)
	}
	r.logger.Error("tokens: pair upsert retries exhausted", lastErr, "user_id", access.UserID)
	return errors.Join(types.ErrStoreConflict, lastErr)
}

func (r *Repository) upsertOnce(ctx context.Context, db bun.IDB, record types.TokenRecord) error {
	now := r.clock.Now()
	rec := fromDomain(record)
	rec.ID = r.idGen.UUID()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := db.NewInsert().
		Model(rec).
		On("CONFLICT (user_id, kind) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("token_hash = EXCLUDED.token_hash").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// Find returns the stored record for the user and kind.
func (r *Repository) Find(ctx context.Context, userID uuid.UUID, kind types.TokenKind) (*types.TokenRecord, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	if !kind.Valid() {
		return nil, types.ErrTokenKindRequired
	}
	rec, err := r.store.Get(ctx, selectByUserKind(userID, kind))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// FindByHash returns the record whose token hashes to tokenHash.
func (r *Repository) FindByHash(ctx context.Context, tokenHash string) (*types.TokenRecord, error) {
	normalized := strings.TrimSpace(tokenHash)
	if normalized == "" {
		return nil, nil
	}
	rec, err := r.store.Get(ctx, selectByHash(normalized))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// ListByUser returns every record held for the user, ordered by kind.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]types.TokenRecord, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	recs, _, err := r.store.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).OrderExpr("kind ASC")
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.TokenRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *toDomain(rec))
	}
	return out, nil
}

func validateRecord(record types.TokenRecord) error {
	switch {
	case record.UserID == uuid.Nil:
		return types.ErrUserIDRequired
	case !record.Kind.Valid():
		return types.ErrTokenKindRequired
	case strings.TrimSpace(record.Token) == "" || strings.TrimSpace(record.TokenHash) == "":
		return types.ErrTokenRequired
	default:
		return nil
	}
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if repository.IsDuplicatedKey(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "deadlock detected")
}

func selectByUserKind(userID uuid.UUID, kind types.TokenKind) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).Where("kind = ?", string(kind))
	}
}

func selectByHash(tokenHash string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("token_hash = ?", tokenHash)
	}
}

func fromDomain(record types.TokenRecord) *Record {
	return &Record{
		ID:        record.ID,
		UserID:    record.UserID,
		Kind:      string(record.Kind),
		Token:     record.Token,
		TokenHash: record.TokenHash,
		ExpiresAt: record.ExpiresAt.UTC(),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.TokenRecord {
	if rec == nil {
		return nil
	}
	return &types.TokenRecord{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Kind:      types.TokenKind(rec.Kind),
		Token:     rec.Token,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
