package command

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/issuer"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
)

// TokenIssuer mints and verifies credentials. *issuer.Issuer satisfies it.
type TokenIssuer interface {
	Issue(ctx context.Context, user types.User) (types.TokenPair, error)
	IssueAccess(ctx context.Context, claims issuer.Claims) (string, time.Time, error)
	Verify(kind types.TokenKind, token string) (*issuer.Claims, error)
	Now() time.Time
}

// ClaimDecoder turns a federated credential into an identity claim.
// *federated.Decoder satisfies it.
type ClaimDecoder interface {
	Decode(ctx context.Context, credential string) (types.IdentityClaim, error)
}

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func safeRolePolicy(policy types.RolePolicy) types.RolePolicy {
	if policy != nil {
		return policy
	}
	return types.DefaultRolePolicy
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func logActivity(ctx context.Context, sink types.ActivitySink, record types.ActivityRecord) {
	if sink == nil {
		return
	}
	_ = sink.Log(ctx, record)
}

func emitActivityHook(ctx context.Context, hooks types.Hooks, record types.ActivityRecord) {
	if hooks.AfterActivity == nil {
		return
	}
	hooks.AfterActivity(ctx, record)
}

func emitAuthHook(ctx context.Context, hooks types.Hooks, event types.AuthEvent) {
	if hooks.AfterAuth == nil {
		return
	}
	hooks.AfterAuth(ctx, event)
}

// auditTrail groups the side channels every flow reports to.
type auditTrail struct {
	sink    types.ActivitySink
	hooks   types.Hooks
	clock   types.Clock
	metrics *telemetry.Metrics
}

func (a auditTrail) record(ctx context.Context, user types.User, verb string, ip string, data map[string]any) {
	record := activity.BuildRecord(user.ID, verb, "user", data, activity.WithIP(ip))
	record.OccurredAt = now(a.clock)
	logActivity(ctx, a.sink, record)
	emitActivityHook(ctx, a.hooks, record)
	emitAuthHook(ctx, a.hooks, types.AuthEvent{
		UserID:     user.ID,
		Verb:       verb,
		OccurredAt: record.OccurredAt,
	})
}

func (a auditTrail) outcome(verb string, err error) {
	a.metrics.Operation(verb, err)
}
