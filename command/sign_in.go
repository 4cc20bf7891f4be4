package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
)

const verbSignIn = "auth.sign_in"

// SignInInput carries password credentials.
type SignInInput struct {
	Identifier string
	Password   string
	IP         string
	Result     *types.AuthResult
}

// Type implements gocommand.Message.
func (SignInInput) Type() string {
	return "command.auth.sign_in"
}

// Validate implements gocommand.Message.
func (input SignInInput) Validate() error {
	switch {
	case strings.TrimSpace(input.Identifier) == "":
		return ErrIdentifierRequired
	case input.Password == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// SignInCommandConfig wires dependencies for password sign-in.
type SignInCommandConfig struct {
	Users            types.UserStore
	Issuer           TokenIssuer
	PasswordVerifier types.PasswordVerifier
	Clock            types.Clock
	Activity         types.ActivitySink
	Hooks            types.Hooks
	Logger           types.Logger
	Metrics          *telemetry.Metrics
}

// SignInCommand verifies a password and issues a fresh token pair.
type SignInCommand struct {
	check  passwordCheck
	issuer TokenIssuer
	audit  auditTrail
}

// NewSignInCommand constructs the sign-in handler.
func NewSignInCommand(cfg SignInCommandConfig) *SignInCommand {
	logger := safeLogger(cfg.Logger)
	return &SignInCommand{
		check: passwordCheck{
			users:    cfg.Users,
			verifier: cfg.PasswordVerifier,
			logger:   logger,
		},
		issuer: cfg.Issuer,
		audit: auditTrail{
			sink:    cfg.Activity,
			hooks:   cfg.Hooks,
			clock:   safeClock(cfg.Clock),
			metrics: cfg.Metrics,
		},
	}
}

var _ gocommand.Commander[SignInInput] = (*SignInCommand)(nil)

// Execute authenticates the identifier and issues both tokens.
func (c *SignInCommand) Execute(ctx context.Context, input SignInInput) (err error) {
	defer func() { c.audit.outcome(verbSignIn, err) }()

	if c.issuer == nil {
		return types.ErrMissingIssuer
	}
	if err := input.Validate(); err != nil {
		return err
	}

	user, err := c.check.authenticate(ctx, input.Identifier, input.Password)
	if err != nil {
		return err
	}
	pair, err := c.issuer.Issue(ctx, *user)
	if err != nil {
		return err
	}

	c.audit.record(ctx, *user, verbSignIn, input.IP, map[string]any{
		"method": "password",
	})

	if input.Result != nil {
		*input.Result = types.AuthResult{User: user.Sanitized(), Tokens: pair}
	}
	return nil
}
