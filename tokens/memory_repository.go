package tokens

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

type memoryKey struct {
	userID uuid.UUID
	kind   types.TokenKind
}

// MemoryStore is an in-process CredentialStore. A single mutex serializes
// every upsert so the (user, kind) invariant holds under concurrent callers.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memoryKey]*types.TokenRecord
	byHash  map[string]memoryKey
	clock   types.Clock
	idGen   types.IDGenerator
}

// NewMemoryStore builds an empty in-memory credential store.
func NewMemoryStore(clock types.Clock) *MemoryStore {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &MemoryStore{
		records: make(map[memoryKey]*types.TokenRecord),
		byHash:  make(map[string]memoryKey),
		clock:   clock,
		idGen:   types.UUIDGenerator{},
	}
}

var (
	_ types.CredentialStore = (*MemoryStore)(nil)
	_ types.PairStore       = (*MemoryStore)(nil)
)

// Upsert implements types.CredentialStore.
func (m *MemoryStore) Upsert(ctx context.Context, record types.TokenRecord) (*types.TokenRecord, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hashTaken(record) {
		return nil, types.ErrStoreConflict
	}
	out := *m.put(record, now)
	return &out, nil
}

// UpsertPair implements types.PairStore. Both records are checked before
// either is written.
func (m *MemoryStore) UpsertPair(ctx context.Context, access, refresh types.TokenRecord) error {
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
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if access.TokenHash == refresh.TokenHash || m.hashTaken(access) || m.hashTaken(refresh) {
		return types.ErrStoreConflict
	}
	m.put(refresh, now)
	m.put(access, now)
	return nil
}

// hashTaken reports whether record's hash belongs to another pair.
// Callers hold m.mu.
func (m *MemoryStore) hashTaken(record types.TokenRecord) bool {
	owner, ok := m.byHash[record.TokenHash]
	return ok && owner != memoryKey{userID: record.UserID, kind: record.Kind}
}

// put writes record and reindexes its hash. Callers hold m.mu.
func (m *MemoryStore) put(record types.TokenRecord, now time.Time) *types.TokenRecord {
	key := memoryKey{userID: record.UserID, kind: record.Kind}
	current, ok := m.records[key]
	if ok {
		delete(m.byHash, current.TokenHash)
		current.Token = record.Token
		current.TokenHash = record.TokenHash
		current.ExpiresAt = record.ExpiresAt
		current.UpdatedAt = now
	} else {
		current = &types.TokenRecord{
			ID:        m.idGen.UUID(),
			UserID:    record.UserID,
			Kind:      record.Kind,
			Token:     record.Token,
			TokenHash: record.TokenHash,
			ExpiresAt: record.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.records[key] = current
	}
	m.byHash[current.TokenHash] = key
	return current
}

// Find implements types.CredentialStore.
func (m *MemoryStore) Find(_ context.Context, userID uuid.UUID, kind types.TokenKind) (*types.TokenRecord, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[memoryKey{userID: userID, kind: kind}]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// FindByHash implements types.CredentialStore.
func (m *MemoryStore) FindByHash(_ context.Context, tokenHash string) (*types.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byHash[strings.TrimSpace(tokenHash)]
	if !ok {
		return nil, nil
	}
	out := *m.records[key]
	return &out, nil
}

// ListByUser returns every record held for the user, ordered by kind.
func (m *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]types.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.TokenRecord, 0, 2)
	for _, kind := range []types.TokenKind{types.TokenKindAccess, types.TokenKindRefresh} {
		if rec, ok := m.records[memoryKey{userID: userID, kind: kind}]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}
