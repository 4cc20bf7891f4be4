package authctx

import (
	"context"
	"testing"

	"github.com/goliatone/go-credentials/pkg/types"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity(t *testing.T) {
	identity := &types.Identity{UserID: uuid.New(), Email: "jane@example.com", Kind: types.TokenKindAccess}
	ctx := WithIdentity(context.Background(), identity)

	resolved, err := ResolveIdentity(ctx)
	require.NoError(t, err)
	require.Equal(t, identity.UserID, resolved.UserID)

	identity.Email = "mutated@example.com"
	resolved, _ = ResolveIdentity(ctx)
	require.Equal(t, "jane@example.com", resolved.Email)
}

func TestResolveIdentity_Missing(t *testing.T) {
	_, err := ResolveIdentity(context.Background())
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	require.Equal(t, textCodeIdentityMissing, rich.TextCode)
}

func TestResolveIdentity_InvalidUser(t *testing.T) {
	ctx := WithIdentity(context.Background(), &types.Identity{Email: "x@example.com"})
	_, err := ResolveIdentity(ctx)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	require.Equal(t, textCodeIdentityInvalid, rich.TextCode)
}

func TestRotatedToken(t *testing.T) {
	_, ok := RotatedTokenFromContext(context.Background())
	require.False(t, ok)

	ctx := WithRotatedToken(context.Background(), "new-access")
	token, ok := RotatedTokenFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "new-access", token)
}
