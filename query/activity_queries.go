package query

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

// ErrMissingActivityReader indicates the feed query has no backing store.
var ErrMissingActivityReader = errors.New("go-credentials: missing activity reader")

// ActivityReader is the read side of the activity repository.
type ActivityReader interface {
	List(ctx context.Context, filter activity.Filter) (activity.Page, error)
}

// ActivityFeedInput requests a page of the caller's own auth activity.
type ActivityFeedInput struct {
	Identity *types.Identity
	Verbs    []string
	Cursor   *activity.Cursor
	Limit    int
}

// ActivityFeedQuery renders the activity feed of an authenticated identity.
type ActivityFeedQuery struct {
	repo ActivityReader
}

// NewActivityFeedQuery constructs the feed query helper.
func NewActivityFeedQuery(repo ActivityReader) *ActivityFeedQuery {
	return &ActivityFeedQuery{repo: repo}
}

var _ gocommand.Querier[ActivityFeedInput, activity.Page] = (*ActivityFeedQuery)(nil)

// Query always scopes the feed to the identity's user.
func (q *ActivityFeedQuery) Query(ctx context.Context, input ActivityFeedInput) (activity.Page, error) {
	if q.repo == nil {
		return activity.Page{}, ErrMissingActivityReader
	}
	if input.Identity == nil || input.Identity.UserID == uuid.Nil {
		return activity.Page{}, types.ErrUnauthorized
	}
	page, err := q.repo.List(ctx, activity.Filter{
		UserID: input.Identity.UserID,
		Verbs:  input.Verbs,
		Cursor: input.Cursor,
		Limit:  input.Limit,
	})
	if err != nil {
		return activity.Page{}, err
	}
	page.Records = activity.SanitizeRecords(nil, page.Records)
	return page, nil
}
