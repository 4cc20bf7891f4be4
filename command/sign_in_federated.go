package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
)

const verbSignInFederated = "auth.sign_in_federated"

// SignInFederatedInput carries a provider credential for an existing account.
type SignInFederatedInput struct {
	Credential string
	Claim      *types.IdentityClaim
	IP         string
	Result     *types.AuthResult
}

// Type implements gocommand.Message.
func (SignInFederatedInput) Type() string {
	return "command.auth.sign_in_federated"
}

// Validate implements gocommand.Message.
func (input SignInFederatedInput) Validate() error {
	return federatedSource{Credential: input.Credential, Claim: input.Claim}.validate()
}

// SignInFederatedCommandConfig wires dependencies for federated sign-in.
type SignInFederatedCommandConfig struct {
	Users            types.UserStore
	Issuer           TokenIssuer
	Decoder          ClaimDecoder
	ImageFetcher     types.ImageFetcher
	ClientID         string
	DefaultAvatarURL string
	Clock            types.Clock
	Activity         types.ActivitySink
	Hooks            types.Hooks
	Logger           types.Logger
	Metrics          *telemetry.Metrics
}

// SignInFederatedCommand signs in a known account from a provider assertion,
// replacing the placeholder avatar with the provider picture when possible.
type SignInFederatedCommand struct {
	users    types.UserStore
	issuer   TokenIssuer
	verifier federatedVerifier
	avatars  avatarProvisioner
	logger   types.Logger
	audit    auditTrail
}

// NewSignInFederatedCommand constructs the federated sign-in handler.
func NewSignInFederatedCommand(cfg SignInFederatedCommandConfig) *SignInFederatedCommand {
	logger := safeLogger(cfg.Logger)
	return &SignInFederatedCommand{
		users:    cfg.Users,
		issuer:   cfg.Issuer,
		verifier: federatedVerifier{decoder: cfg.Decoder, clientID: cfg.ClientID, clock: cfg.Clock},
		avatars: avatarProvisioner{
			fetcher:       cfg.ImageFetcher,
			defaultAvatar: cfg.DefaultAvatarURL,
			logger:        logger,
		},
		logger: logger,
		audit: auditTrail{
			sink:    cfg.Activity,
			hooks:   cfg.Hooks,
			clock:   safeClock(cfg.Clock),
			metrics: cfg.Metrics,
		},
	}
}

var _ gocommand.Commander[SignInFederatedInput] = (*SignInFederatedCommand)(nil)

// Execute checks the audience before any lookup, so a foreign claim is
// rejected the same way whether or not the account exists.
func (c *SignInFederatedCommand) Execute(ctx context.Context, input SignInFederatedInput) (err error) {
	defer func() { c.audit.outcome(verbSignInFederated, err) }()

	if c.users == nil {
		return types.ErrMissingUserStore
	}
	if c.issuer == nil {
		return types.ErrMissingIssuer
	}
	if err := input.Validate(); err != nil {
		return err
	}

	claim, err := c.verifier.resolve(ctx, federatedSource{Credential: input.Credential, Claim: input.Claim})
	if err != nil {
		return err
	}
	user, err := c.users.FindByEmailOrID(ctx, normalizeEmail(claim.Email), types.FindOptions{})
	if err != nil {
		return err
	}
	if user == nil {
		return types.ErrUnauthorized
	}

	if c.avatars.isDefault(user.AvatarURL) {
		user = c.refreshAvatar(ctx, user, claim, input.IP)
	}

	pair, err := c.issuer.Issue(ctx, *user)
	if err != nil {
		return err
	}

	c.audit.record(ctx, *user, verbSignInFederated, input.IP, map[string]any{
		"issuer": claim.Issuer,
	})

	if input.Result != nil {
		*input.Result = types.AuthResult{User: user.Sanitized(), Tokens: pair}
	}
	return nil
}

// refreshAvatar never fails the sign-in: on any error the existing profile is
// returned unchanged.
func (c *SignInFederatedCommand) refreshAvatar(ctx context.Context, user *types.User, claim types.IdentityClaim, ip string) *types.User {
	url, ok := c.avatars.provision(ctx, claim.Picture)
	if !ok {
		if claim.Picture != "" {
			c.audit.record(ctx, *user, verbAvatarFallback, ip, map[string]any{"flow": verbSignInFederated})
		}
		return user
	}
	updated, err := c.users.Update(ctx, user.ID, types.UserPatch{AvatarURL: &url})
	if err != nil || updated == nil {
		c.logger.Error("credentials: avatar update failed", err, "user_id", user.ID)
		return user
	}
	return updated
}
