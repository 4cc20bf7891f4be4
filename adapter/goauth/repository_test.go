package goauth

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type memoryUsers struct {
	byID map[string]*auth.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]*auth.User{}}
}

var errNotFound = errors.New("sql: no rows in result set")

func (m *memoryUsers) GetByID(_ context.Context, id string) (*auth.User, error) {
	if rec, ok := m.byID[id]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, errNotFound
}

func (m *memoryUsers) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	for _, rec := range m.byID {
		if rec.Email == identifier || rec.Username == identifier || rec.ID.String() == identifier {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, errNotFound
}

func (m *memoryUsers) Create(_ context.Context, record *auth.User) (*auth.User, error) {
	clone := *record
	m.byID[record.ID.String()] = &clone
	return record, nil
}

func (m *memoryUsers) Update(_ context.Context, record *auth.User) (*auth.User, error) {
	clone := *record
	m.byID[record.ID.String()] = &clone
	return record, nil
}

func TestToDomain(t *testing.T) {
	now := time.Now()
	user := &auth.User{
		ID:             uuid.New(),
		Role:           auth.RoleMember,
		Email:          "test@example.com",
		Username:       "tester",
		FirstName:      "Test",
		LastName:       "Er",
		PasswordHash:   "hash",
		ProfilePicture: "https://cdn.example.com/a.jpg",
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}

	result := UserToDomain(user)
	require.Equal(t, user.ID, result.ID)
	require.Equal(t, "Test Er", result.Name)
	require.Equal(t, types.RoleUser, result.Role)
	require.Equal(t, "https://cdn.example.com/a.jpg", result.AvatarURL)
	require.Equal(t, now, result.CreatedAt)

	back := UserFromDomain(result)
	require.Equal(t, auth.RoleMember, back.Role)
	require.Equal(t, "Test", back.FirstName)
	require.Equal(t, "Er", back.LastName)
}

func TestUsersAdapter_CreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	repo := newMemoryUsers()
	adapter := NewUsersAdapter(repo, WithClock(clock))

	created, err := adapter.Create(ctx, types.User{
		Email:        " Jo@Example.com ",
		Name:         "Jo Doe",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	require.Equal(t, "jo@example.com", created.Email)
	require.Equal(t, auth.UserStatusActive, repo.byID[created.ID.String()].Status)

	found, err := adapter.FindByEmailOrID(ctx, "jo@example.com", types.FindOptions{})
	require.NoError(t, err)
	require.Empty(t, found.PasswordHash)

	withHash, err := adapter.FindByEmailOrID(ctx, created.ID.String(), types.FindOptions{WithPasswordHash: true})
	require.NoError(t, err)
	require.Equal(t, "hash", withHash.PasswordHash)

	avatar := "https://cdn.example.com/jo.jpg"
	updated, err := adapter.Update(ctx, created.ID, types.UserPatch{AvatarURL: &avatar})
	require.NoError(t, err)
	require.Equal(t, avatar, updated.AvatarURL)
	require.Equal(t, auth.UserStatusActive, repo.byID[created.ID.String()].Status)
	require.Equal(t, "hash", repo.byID[created.ID.String()].PasswordHash)
}

func TestUsersAdapter_FindPropagatesErrors(t *testing.T) {
	adapter := NewUsersAdapter(newMemoryUsers())

	missing, err := adapter.FindByEmailOrID(context.Background(), "", types.FindOptions{})
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = adapter.Update(context.Background(), uuid.Nil, types.UserPatch{})
	require.ErrorIs(t, err, types.ErrUserIDRequired)
}
