package telemetry

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

// ValidationEvent describes a completed session resolution.
type ValidationEvent struct {
	State    string
	Identity *types.Identity
	Rotated  bool
}

// Listener receives resolver outcomes.
type Listener func(ctx context.Context, event ValidationEvent)

// ListenerOptions customize the validation listener behaviour.
type ListenerOptions struct {
	ActivitySink types.ActivitySink
	Logger       types.Logger
	Metrics      *Metrics
	Clock        types.Clock
}

// NewListener returns a Listener that counts outcomes and emits an
// "auth.rotate" activity whenever the resolver reissued an access token.
func NewListener(opts ListenerOptions) Listener {
	logger := opts.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return func(ctx context.Context, event ValidationEvent) {
		opts.Metrics.Resolved(event.State)
		if !event.Rotated {
			return
		}
		opts.Metrics.Rotated()
		if opts.ActivitySink == nil || event.Identity == nil {
			return
		}
		record := types.ActivityRecord{
			UserID:     event.Identity.UserID,
			Verb:       "auth.rotate",
			ObjectType: "token",
			ObjectID:   userObjectID(event.Identity.UserID),
			Channel:    "auth",
			Data: map[string]any{
				"kind": string(types.TokenKindAccess),
			},
			OccurredAt: clock.Now(),
		}
		if err := opts.ActivitySink.Log(ctx, record); err != nil {
			logger.Error("validation activity sink failed", err)
		}
	}
}

func userObjectID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
