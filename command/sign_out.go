package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
)

const (
	verbSignOut = "auth.sign_out"

	// SignOutMessage is the acknowledgement returned by a successful sign-out.
	SignOutMessage = "Logged out successfully"
)

// SignOutInput carries the credentials confirming a sign-out.
type SignOutInput struct {
	Identifier string
	Password   string
	IP         string
	Result     *types.Acknowledgement
}

// Type implements gocommand.Message.
func (SignOutInput) Type() string {
	return "command.auth.sign_out"
}

// Validate implements gocommand.Message.
func (input SignOutInput) Validate() error {
	switch {
	case strings.TrimSpace(input.Identifier) == "":
		return ErrIdentifierRequired
	case input.Password == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// SignOutCommandConfig wires dependencies for sign-out.
type SignOutCommandConfig struct {
	Users            types.UserStore
	PasswordVerifier types.PasswordVerifier
	Clock            types.Clock
	Activity         types.ActivitySink
	Hooks            types.Hooks
	Logger           types.Logger
	Metrics          *telemetry.Metrics
}

// SignOutCommand re-checks credentials and acknowledges. Stored tokens are
// left in place and expire on their own.
type SignOutCommand struct {
	check passwordCheck
	audit auditTrail
}

// NewSignOutCommand constructs the sign-out handler.
func NewSignOutCommand(cfg SignOutCommandConfig) *SignOutCommand {
	return &SignOutCommand{
		check: passwordCheck{
			users:    cfg.Users,
			verifier: cfg.PasswordVerifier,
			logger:   safeLogger(cfg.Logger),
		},
		audit: auditTrail{
			sink:    cfg.Activity,
			hooks:   cfg.Hooks,
			clock:   safeClock(cfg.Clock),
			metrics: cfg.Metrics,
		},
	}
}

var _ gocommand.Commander[SignOutInput] = (*SignOutCommand)(nil)

// Execute validates the credentials and returns the acknowledgement.
func (c *SignOutCommand) Execute(ctx context.Context, input SignOutInput) (err error) {
	defer func() { c.audit.outcome(verbSignOut, err) }()

	if err := input.Validate(); err != nil {
		return err
	}
	user, err := c.check.authenticate(ctx, input.Identifier, input.Password)
	if err != nil {
		return err
	}

	c.audit.record(ctx, *user, verbSignOut, input.IP, nil)

	if input.Result != nil {
		*input.Result = types.Acknowledgement{Message: SignOutMessage}
	}
	return nil
}
