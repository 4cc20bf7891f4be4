package service

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/command"
	"github.com/goliatone/go-credentials/federated"
	"github.com/goliatone/go-credentials/issuer"
	"github.com/goliatone/go-credentials/password"
	"github.com/goliatone/go-credentials/pkg/authctx"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-credentials/query"
	"github.com/goliatone/go-credentials/session"
	featuregate "github.com/goliatone/go-featuregate/gate"
)

// Service is the entry point for go-credentials. It wires the stores, token
// issuer, session resolver and the command/query facades supplied by the
// host application.
type Service struct {
	cfg      Config
	issuer   *issuer.Issuer
	resolver *session.Resolver
	commands Commands
	queries  Queries
}

// Commands exposes the service command handlers.
type Commands struct {
	SignIn          *command.SignInCommand
	SignOut         *command.SignOutCommand
	SignInFederated *command.SignInFederatedCommand
	SignUpFederated *command.SignUpFederatedCommand
	SignUp          *command.SignUpCommand
	Refresh         *command.TokenRefreshCommand
}

// Queries exposes read-model helpers.
type Queries struct {
	Profile      *query.ProfileQuery
	ActivityFeed *query.ActivityFeedQuery
}

// TokenConfig carries the signing material and lifetimes of issued tokens.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Config captures all dependencies so callers can provide their own instances
// (bun-backed stores, cached repositories, storage backends, hooks).
type Config struct {
	UserStore        types.UserStore
	CredentialStore  types.CredentialStore
	Tokens           TokenConfig
	ImageFetcher     types.ImageFetcher
	PasswordVerifier types.PasswordVerifier
	PasswordHasher   types.PasswordHasher
	Decoder          command.ClaimDecoder
	ClientID         string
	DefaultAvatarURL string
	RolePolicy       types.RolePolicy
	FeatureGate      featuregate.FeatureGate
	ActivitySink     types.ActivitySink
	ActivityReader   query.ActivityReader
	Hooks            types.Hooks
	Clock            types.Clock
	Logger           types.Logger
	Metrics          *telemetry.Metrics
}

// New constructs a Service from the supplied configuration.
func New(cfg Config) (*Service, error) {
	norm := normalizeConfig(cfg)
	if norm.UserStore == nil {
		return nil, types.ErrMissingUserStore
	}
	if norm.CredentialStore == nil {
		return nil, types.ErrMissingCredentialStore
	}

	iss, err := issuer.New(issuer.Config{
		AccessSecret:  norm.Tokens.AccessSecret,
		RefreshSecret: norm.Tokens.RefreshSecret,
		AccessTTL:     norm.Tokens.AccessTTL,
		RefreshTTL:    norm.Tokens.RefreshTTL,
		Issuer:        norm.Tokens.Issuer,
		Store:         norm.CredentialStore,
		Clock:         norm.Clock,
		Logger:        norm.Logger,
		Metrics:       norm.Metrics,
	})
	if err != nil {
		return nil, err
	}
	resolver, err := session.NewResolver(session.Config{
		Authority: iss,
		Store:     norm.CredentialStore,
		Logger:    norm.Logger,
		Listener: telemetry.NewListener(telemetry.ListenerOptions{
			ActivitySink: norm.ActivitySink,
			Logger:       norm.Logger,
			Metrics:      norm.Metrics,
			Clock:        norm.Clock,
		}),
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      norm,
		issuer:   iss,
		resolver: resolver,
	}
	s.commands = s.buildCommands()
	s.queries = s.buildQueries()
	return s, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	if cfg.PasswordVerifier == nil || cfg.PasswordHasher == nil {
		hasher := password.NewBcrypt(password.DefaultCost)
		if cfg.PasswordVerifier == nil {
			cfg.PasswordVerifier = hasher
		}
		if cfg.PasswordHasher == nil {
			cfg.PasswordHasher = hasher
		}
	}
	if cfg.Decoder == nil {
		cfg.Decoder = federated.NewDecoder(federated.WithDecoderClock(cfg.Clock))
	}
	if cfg.RolePolicy == nil {
		cfg.RolePolicy = types.DefaultRolePolicy
	}
	if cfg.ActivitySink != nil {
		if _, wrapped := cfg.ActivitySink.(*activity.SanitizingSink); !wrapped {
			if cfg.ActivityReader == nil {
				if reader, ok := cfg.ActivitySink.(query.ActivityReader); ok {
					cfg.ActivityReader = reader
				}
			}
			cfg.ActivitySink = &activity.SanitizingSink{Sink: cfg.ActivitySink}
		}
	}
	return cfg
}

func (s *Service) buildCommands() Commands {
	cfg := s.cfg
	return Commands{
		SignIn: command.NewSignInCommand(command.SignInCommandConfig{
			Users:            cfg.UserStore,
			Issuer:           s.issuer,
			PasswordVerifier: cfg.PasswordVerifier,
			Clock:            cfg.Clock,
			Activity:         cfg.ActivitySink,
			Hooks:            cfg.Hooks,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		}),
		SignOut: command.NewSignOutCommand(command.SignOutCommandConfig{
			Users:            cfg.UserStore,
			PasswordVerifier: cfg.PasswordVerifier,
			Clock:            cfg.Clock,
			Activity:         cfg.ActivitySink,
			Hooks:            cfg.Hooks,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		}),
		SignInFederated: command.NewSignInFederatedCommand(command.SignInFederatedCommandConfig{
			Users:            cfg.UserStore,
			Issuer:           s.issuer,
			Decoder:          cfg.Decoder,
			ImageFetcher:     cfg.ImageFetcher,
			ClientID:         cfg.ClientID,
			DefaultAvatarURL: cfg.DefaultAvatarURL,
			Clock:            cfg.Clock,
			Activity:         cfg.ActivitySink,
			Hooks:            cfg.Hooks,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		}),
		SignUpFederated: command.NewSignUpFederatedCommand(command.SignUpFederatedCommandConfig{
			Users:            cfg.UserStore,
			Issuer:           s.issuer,
			Decoder:          cfg.Decoder,
			ImageFetcher:     cfg.ImageFetcher,
			ClientID:         cfg.ClientID,
			DefaultAvatarURL: cfg.DefaultAvatarURL,
			RolePolicy:       cfg.RolePolicy,
			FeatureGate:      cfg.FeatureGate,
			Clock:            cfg.Clock,
			Activity:         cfg.ActivitySink,
			Hooks:            cfg.Hooks,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		}),
		SignUp: command.NewSignUpCommand(command.SignUpCommandConfig{
			Users:            cfg.UserStore,
			Issuer:           s.issuer,
			PasswordHasher:   cfg.PasswordHasher,
			DefaultAvatarURL: cfg.DefaultAvatarURL,
			RolePolicy:       cfg.RolePolicy,
			FeatureGate:      cfg.FeatureGate,
			Clock:            cfg.Clock,
			Activity:         cfg.ActivitySink,
			Hooks:            cfg.Hooks,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		}),
		Refresh: command.NewTokenRefreshCommand(command.TokenRefreshCommandConfig{
			Issuer:   s.issuer,
			Store:    cfg.CredentialStore,
			Clock:    cfg.Clock,
			Activity: cfg.ActivitySink,
			Hooks:    cfg.Hooks,
			Logger:   cfg.Logger,
			Metrics:  cfg.Metrics,
		}),
	}
}

func (s *Service) buildQueries() Queries {
	return Queries{
		Profile:      query.NewProfileQuery(s.cfg.UserStore),
		ActivityFeed: query.NewActivityFeedQuery(s.cfg.ActivityReader),
	}
}

// Commands returns the command facade.
func (s *Service) Commands() Commands {
	return s.commands
}

// Queries returns the query facade.
func (s *Service) Queries() Queries {
	return s.queries
}

// Issuer exposes the token issuer.
func (s *Service) Issuer() *issuer.Issuer {
	return s.issuer
}

// Resolver exposes the session resolver.
func (s *Service) Resolver() *session.Resolver {
	return s.resolver
}

// SignIn authenticates a password account. Credential failures are always
// types.ErrUnauthorized.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (types.AuthResult, error) {
	var result types.AuthResult
	err := s.commands.SignIn.Execute(ctx, command.SignInInput{
		Identifier: identifier,
		Password:   password,
		IP:         authctx.ClientIPFromContext(ctx),
		Result:     &result,
	})
	return result, boundary(err)
}

// SignOut re-checks the credentials and acknowledges. Stored tokens are not
// revoked.
func (s *Service) SignOut(ctx context.Context, identifier, password string) (types.Acknowledgement, error) {
	var ack types.Acknowledgement
	err := s.commands.SignOut.Execute(ctx, command.SignOutInput{
		Identifier: identifier,
		Password:   password,
		IP:         authctx.ClientIPFromContext(ctx),
		Result:     &ack,
	})
	return ack, boundary(err)
}

// SignInFederated signs in an existing account from a provider credential.
func (s *Service) SignInFederated(ctx context.Context, credential string) (types.AuthResult, error) {
	var result types.AuthResult
	err := s.commands.SignInFederated.Execute(ctx, command.SignInFederatedInput{
		Credential: credential,
		IP:         authctx.ClientIPFromContext(ctx),
		Result:     &result,
	})
	return result, boundary(err)
}

// SignUpFederated creates an account from a provider credential.
func (s *Service) SignUpFederated(ctx context.Context, credential string) (types.AuthResult, error) {
	var result types.AuthResult
	err := s.commands.SignUpFederated.Execute(ctx, command.SignUpFederatedInput{
		Credential: credential,
		IP:         authctx.ClientIPFromContext(ctx),
		Result:     &result,
	})
	return result, boundary(err)
}

// SignUpRequest is the password registration payload.
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
	Username string
}

// SignUp registers a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (types.AuthResult, error) {
	var result types.AuthResult
	err := s.commands.SignUp.Execute(ctx, command.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Username: req.Username,
		IP:       authctx.ClientIPFromContext(ctx),
		Result:   &result,
	})
	return result, boundary(err)
}

// Refresh mints a new access token from a live refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (types.AccessGrant, error) {
	var grant types.AccessGrant
	err := s.commands.Refresh.Execute(ctx, command.TokenRefreshInput{
		RefreshToken: refreshToken,
		IP:           authctx.ClientIPFromContext(ctx),
		Result:       &grant,
	})
	return grant, boundary(err)
}

// Authenticate resolves a bearer token for a route.
func (s *Service) Authenticate(ctx context.Context, token string, public bool) (session.Result, error) {
	return s.resolver.Authenticate(ctx, token, public)
}

// Profile loads the sanitized profile of identity.
func (s *Service) Profile(ctx context.Context, identity *types.Identity) (*types.User, error) {
	return s.queries.Profile.Query(ctx, query.ProfileQueryInput{Identity: identity})
}

// ActivityFeed returns the identity's own auth activity.
func (s *Service) ActivityFeed(ctx context.Context, input query.ActivityFeedInput) (activity.Page, error) {
	return s.queries.ActivityFeed.Query(ctx, input)
}

// Ready reports whether the service has the required dependencies wired in.
func (s *Service) Ready() bool {
	return s != nil &&
		s.cfg.UserStore != nil &&
		s.cfg.CredentialStore != nil &&
		s.issuer != nil &&
		s.resolver != nil
}

// HealthCheck surfaces missing configuration to transports.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Ready() {
		return types.ErrServiceNotReady
	}
	return nil
}

// boundary hides which credential check failed.
func boundary(err error) error {
	if errors.Is(err, types.ErrInvalidCredentials) {
		return types.ErrUnauthorized
	}
	return err
}

var _ session.Authenticator = (*Service)(nil)
