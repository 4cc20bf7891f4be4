package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
)

const verbRefresh = "auth.refresh"

// TokenRefreshInput carries the refresh token presented by the client.
type TokenRefreshInput struct {
	RefreshToken string
	IP           string
	Result       *types.AccessGrant
}

// Type implements gocommand.Message.
func (TokenRefreshInput) Type() string {
	return "command.auth.refresh"
}

// Validate implements gocommand.Message.
func (input TokenRefreshInput) Validate() error {
	if strings.TrimSpace(input.RefreshToken) == "" {
		return ErrRefreshTokenRequired
	}
	return nil
}

// TokenRefreshCommandConfig wires dependencies for explicit refresh.
type TokenRefreshCommandConfig struct {
	Issuer   TokenIssuer
	Store    types.CredentialStore
	Clock    types.Clock
	Activity types.ActivitySink
	Hooks    types.Hooks
	Logger   types.Logger
	Metrics  *telemetry.Metrics
}

// TokenRefreshCommand mints a new access token from the user's live refresh
// token. The refresh token itself is not rotated.
type TokenRefreshCommand struct {
	issuer TokenIssuer
	store  types.CredentialStore
	logger types.Logger
	audit  auditTrail
}

// NewTokenRefreshCommand constructs the refresh handler.
func NewTokenRefreshCommand(cfg TokenRefreshCommandConfig) *TokenRefreshCommand {
	return &TokenRefreshCommand{
		issuer: cfg.Issuer,
		store:  cfg.Store,
		logger: safeLogger(cfg.Logger),
		audit: auditTrail{
			sink:    cfg.Activity,
			hooks:   cfg.Hooks,
			clock:   safeClock(cfg.Clock),
			metrics: cfg.Metrics,
		},
	}
}

var _ gocommand.Commander[TokenRefreshInput] = (*TokenRefreshCommand)(nil)

// Execute verifies the refresh token against its secret and the stored
// record, then issues a replacement access token.
func (c *TokenRefreshCommand) Execute(ctx context.Context, input TokenRefreshInput) (err error) {
	defer func() { c.audit.outcome(verbRefresh, err) }()

	if c.issuer == nil {
		return types.ErrMissingIssuer
	}
	if c.store == nil {
		return types.ErrMissingCredentialStore
	}
	if err := input.Validate(); err != nil {
		return err
	}

	token := strings.TrimSpace(input.RefreshToken)
	claims, err := c.issuer.Verify(types.TokenKindRefresh, token)
	if err != nil {
		return types.ErrUnauthorized
	}
	identity, err := claims.Identity(types.TokenKindRefresh)
	if err != nil {
		return types.ErrUnauthorized
	}
	record, err := c.store.Find(ctx, identity.UserID, types.TokenKindRefresh)
	if err != nil {
		return err
	}
	if record == nil || record.Token != token || record.Expired(c.issuer.Now()) {
		c.logger.Debug("credentials: refresh token not live", "user_id", identity.UserID)
		return types.ErrUnauthorized
	}

	access, expiresAt, err := c.issuer.IssueAccess(ctx, *claims)
	if err != nil {
		return err
	}

	c.audit.record(ctx, types.User{ID: identity.UserID, Email: identity.Email}, verbRefresh, input.IP, nil)

	if input.Result != nil {
		*input.Result = types.AccessGrant{AccessToken: access, ExpiresAt: expiresAt}
	}
	return nil
}
