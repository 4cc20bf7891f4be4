package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

// ProfileQueryInput identifies the profile to load.
type ProfileQueryInput struct {
	Identity *types.Identity
}

// ProfileQuery fetches the sanitized profile of an authenticated identity.
type ProfileQuery struct {
	users types.UserStore
}

// NewProfileQuery constructs the profile query helper.
func NewProfileQuery(users types.UserStore) *ProfileQuery {
	return &ProfileQuery{users: users}
}

var _ gocommand.Querier[ProfileQueryInput, *types.User] = (*ProfileQuery)(nil)

// Query returns the profile without its password hash. A user that no longer
// exists is reported as unauthorized.
func (q *ProfileQuery) Query(ctx context.Context, input ProfileQueryInput) (*types.User, error) {
	if q.users == nil {
		return nil, types.ErrMissingUserStore
	}
	if input.Identity == nil || input.Identity.UserID == uuid.Nil {
		return nil, types.ErrUnauthorized
	}
	user, err := q.users.FindByEmailOrID(ctx, input.Identity.UserID.String(), types.FindOptions{})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, types.ErrUnauthorized
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}
