package activity

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRepository_ListPaginatesWithCursor(t *testing.T) {
	ctx := context.Background()
	db := newTestActivityDB(t)
	applyActivityDDL(t, db)

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	store, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Log(ctx, types.ActivityRecord{
			UserID:     userID,
			Verb:       "auth.sign_in",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	first, err := store.List(ctx, Filter{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Records, 2)
	require.NotNil(t, first.NextCursor)
	require.True(t, first.Records[0].OccurredAt.After(first.Records[1].OccurredAt))

	second, err := store.List(ctx, Filter{UserID: userID, Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Records, 2)
	require.True(t, second.Records[0].OccurredAt.Before(first.Records[1].OccurredAt))

	third, err := store.List(ctx, Filter{UserID: userID, Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Records, 1)
	require.Nil(t, third.NextCursor)
}

func TestCursor_EncodeParse(t *testing.T) {
	cursor := Cursor{OccurredAt: time.Date(2026, 2, 1, 9, 30, 0, 123, time.UTC), ID: uuid.New()}

	parsed, err := ParseCursor(cursor.Encode())
	require.NoError(t, err)
	require.True(t, cursor.OccurredAt.Equal(parsed.OccurredAt))
	require.Equal(t, cursor.ID, parsed.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("not base64!")
	require.ErrorIs(t, err, ErrInvalidCursor)
}
