package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
	featuregate "github.com/goliatone/go-featuregate/gate"
)

const verbSignUp = "auth.sign_up"

// SignUpInput carries a password registration.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Username string
	IP       string
	Result   *types.AuthResult
}

// Type implements gocommand.Message.
func (SignUpInput) Type() string {
	return "command.auth.sign_up"
}

// Validate implements gocommand.Message.
func (input SignUpInput) Validate() error {
	switch {
	case normalizeEmail(input.Email) == "" || !strings.Contains(input.Email, "@"):
		return ErrEmailRequired
	case input.Password == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// SignUpCommandConfig wires dependencies for password registration.
type SignUpCommandConfig struct {
	Users            types.UserStore
	Issuer           TokenIssuer
	PasswordHasher   types.PasswordHasher
	DefaultAvatarURL string
	RolePolicy       types.RolePolicy
	FeatureGate      featuregate.FeatureGate
	Clock            types.Clock
	Activity         types.ActivitySink
	Hooks            types.Hooks
	Logger           types.Logger
	Metrics          *telemetry.Metrics
}

// SignUpCommand registers a password account and signs it in.
type SignUpCommand struct {
	users         types.UserStore
	issuer        TokenIssuer
	hasher        types.PasswordHasher
	defaultAvatar string
	roles         types.RolePolicy
	featureGate   featuregate.FeatureGate
	audit         auditTrail
}

// NewSignUpCommand constructs the registration handler.
func NewSignUpCommand(cfg SignUpCommandConfig) *SignUpCommand {
	return &SignUpCommand{
		users:         cfg.Users,
		issuer:        cfg.Issuer,
		hasher:        cfg.PasswordHasher,
		defaultAvatar: cfg.DefaultAvatarURL,
		roles:         safeRolePolicy(cfg.RolePolicy),
		featureGate:   cfg.FeatureGate,
		audit: auditTrail{
			sink:    cfg.Activity,
			hooks:   cfg.Hooks,
			clock:   safeClock(cfg.Clock),
			metrics: cfg.Metrics,
		},
	}
}

var _ gocommand.Commander[SignUpInput] = (*SignUpCommand)(nil)

// Execute creates the account with a hashed password and issues both tokens.
func (c *SignUpCommand) Execute(ctx context.Context, input SignUpInput) (err error) {
	defer func() { c.audit.outcome(verbSignUp, err) }()

	switch {
	case c.users == nil:
		return types.ErrMissingUserStore
	case c.issuer == nil:
		return types.ErrMissingIssuer
	case c.hasher == nil:
		return types.ErrMissingPasswordHasher
	}
	if err := input.Validate(); err != nil {
		return err
	}
	enabled, err := featureEnabled(ctx, c.featureGate, FeatureSignup)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrSignupDisabled
	}

	email := normalizeEmail(input.Email)
	existing, err := c.users.FindByEmailOrID(ctx, email, types.FindOptions{})
	if err != nil {
		return err
	}
	if existing != nil {
		return types.ErrDuplicateAccount
	}

	hash, err := c.hasher.Hash(ctx, input.Password)
	if err != nil {
		return err
	}
	claim := types.IdentityClaim{Email: email, Name: strings.TrimSpace(input.Name)}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = claim.Username()
	}
	created, err := c.users.Create(ctx, types.User{
		Email:        email,
		Username:     username,
		Name:         claim.Name,
		PasswordHash: hash,
		AvatarURL:    c.defaultAvatar,
		Role:         c.roles.AssignRole(claim),
	})
	if err != nil {
		return err
	}

	pair, err := c.issuer.Issue(ctx, *created)
	if err != nil {
		return err
	}

	c.audit.record(ctx, *created, verbSignUp, input.IP, map[string]any{
		"role": created.Role,
	})

	if input.Result != nil {
		*input.Result = types.AuthResult{User: created.Sanitized(), Tokens: pair}
	}
	return nil
}
