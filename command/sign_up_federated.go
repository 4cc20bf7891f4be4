package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
	featuregate "github.com/goliatone/go-featuregate/gate"
)

const verbSignUpFederated = "auth.sign_up_federated"

// SignUpFederatedInput carries a provider credential for a new account.
type SignUpFederatedInput struct {
	Credential string
	Claim      *types.IdentityClaim
	IP         string
	Result     *types.AuthResult
}

// Type implements gocommand.Message.
func (SignUpFederatedInput) Type() string {
	return "command.auth.sign_up_federated"
}

// Validate implements gocommand.Message.
func (input SignUpFederatedInput) Validate() error {
	return federatedSource{Credential: input.Credential, Claim: input.Claim}.validate()
}

// SignUpFederatedCommandConfig wires dependencies for federated sign-up.
type SignUpFederatedCommandConfig struct {
	Users            types.UserStore
	Issuer           TokenIssuer
	Decoder          ClaimDecoder
	ImageFetcher     types.ImageFetcher
	ClientID         string
	DefaultAvatarURL string
	RolePolicy       types.RolePolicy
	FeatureGate      featuregate.FeatureGate
	Clock            types.Clock
	Activity         types.ActivitySink
	Hooks            types.Hooks
	Logger           types.Logger
	Metrics          *telemetry.Metrics
}

// SignUpFederatedCommand creates an account from a provider assertion. An
// existing email is always ErrDuplicateAccount; it never falls through to
// sign-in.
type SignUpFederatedCommand struct {
	users       types.UserStore
	issuer      TokenIssuer
	verifier    federatedVerifier
	avatars     avatarProvisioner
	roles       types.RolePolicy
	featureGate featuregate.FeatureGate
	audit       auditTrail
}

// NewSignUpFederatedCommand constructs the federated sign-up handler.
func NewSignUpFederatedCommand(cfg SignUpFederatedCommandConfig) *SignUpFederatedCommand {
	return &SignUpFederatedCommand{
		users:    cfg.Users,
		issuer:   cfg.Issuer,
		verifier: federatedVerifier{decoder: cfg.Decoder, clientID: cfg.ClientID, clock: cfg.Clock},
		avatars: avatarProvisioner{
			fetcher:       cfg.ImageFetcher,
			defaultAvatar: cfg.DefaultAvatarURL,
			logger:        safeLogger(cfg.Logger),
		},
		roles:       safeRolePolicy(cfg.RolePolicy),
		featureGate: cfg.FeatureGate,
		audit: auditTrail{
			sink:    cfg.Activity,
			hooks:   cfg.Hooks,
			clock:   safeClock(cfg.Clock),
			metrics: cfg.Metrics,
		},
	}
}

var _ gocommand.Commander[SignUpFederatedInput] = (*SignUpFederatedCommand)(nil)

// Execute creates the user and issues both tokens.
func (c *SignUpFederatedCommand) Execute(ctx context.Context, input SignUpFederatedInput) (err error) {
	defer func() { c.audit.outcome(verbSignUpFederated, err) }()

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
	enabled, err := featureEnabled(ctx, c.featureGate, FeatureFederatedSignup)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrSignupDisabled
	}

	email := normalizeEmail(claim.Email)
	existing, err := c.users.FindByEmailOrID(ctx, email, types.FindOptions{})
	if err != nil {
		return err
	}
	if existing != nil {
		return types.ErrDuplicateAccount
	}

	avatarURL, fetched := c.avatars.provision(ctx, claim.Picture)
	created, err := c.users.Create(ctx, types.User{
		Email:     email,
		Username:  claim.Username(),
		Name:      claim.Name,
		AvatarURL: avatarURL,
		Role:      c.roles.AssignRole(claim),
	})
	if err != nil {
		return err
	}
	if !fetched && claim.Picture != "" {
		c.audit.record(ctx, *created, verbAvatarFallback, input.IP, map[string]any{"flow": verbSignUpFederated})
	}

	pair, err := c.issuer.Issue(ctx, *created)
	if err != nil {
		return err
	}

	c.audit.record(ctx, *created, verbSignUpFederated, input.IP, map[string]any{
		"issuer": claim.Issuer,
		"role":   created.Role,
	})

	if input.Result != nil {
		*input.Result = types.AuthResult{User: created.Sanitized(), Tokens: pair}
	}
	return nil
}
