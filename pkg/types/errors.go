package types

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthorized        = "UNAUTHORIZED"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeDuplicateAccount    = "DUPLICATE_ACCOUNT"
	TextCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	TextCodeStoreConflict       = "STORE_CONFLICT"
	TextCodeSignupDisabled      = "SIGNUP_DISABLED"
)

var (
	// ErrUnauthorized covers every credential, signature, audience or lookup
	// mismatch. It never says which check failed.
	ErrUnauthorized = goerrors.New("go-credentials: unauthorized", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeUnauthorized)
	// ErrInvalidCredentials signals a password mismatch inside the command
	// layer. Transports only ever see ErrUnauthorized.
	ErrInvalidCredentials = goerrors.New("go-credentials: invalid credentials", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeInvalidCredentials)
	// ErrDuplicateAccount is returned when a sign-up collides with an existing email.
	ErrDuplicateAccount = goerrors.New("go-credentials: account already exists", goerrors.CategoryValidation).
				WithCode(http.StatusNotAcceptable).
				WithTextCode(TextCodeDuplicateAccount)
	// ErrUpstreamUnavailable marks avatar fetch failures. Credential flows
	// recover from it locally.
	ErrUpstreamUnavailable = goerrors.New("go-credentials: upstream unavailable", goerrors.CategoryInternal).
				WithCode(http.StatusServiceUnavailable).
				WithTextCode(TextCodeUpstreamUnavailable)
	// ErrStoreConflict marks an upsert race. Stores retry it before giving up.
	ErrStoreConflict = goerrors.New("go-credentials: credential store conflict", goerrors.CategoryInternal).
				WithCode(http.StatusConflict).
				WithTextCode(TextCodeStoreConflict)
	// ErrSignupDisabled indicates self-registration is disabled via feature gate.
	ErrSignupDisabled = goerrors.New("go-credentials: signup disabled", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeSignupDisabled)
)

var (
	// ErrUserIDRequired indicates a user identifier was omitted.
	ErrUserIDRequired = errors.New("go-credentials: user id required")
	// ErrTokenKindRequired indicates a token record lacks a valid kind.
	ErrTokenKindRequired = errors.New("go-credentials: token kind required")
	// ErrTokenRequired indicates a token record lacks the token value.
	ErrTokenRequired = errors.New("go-credentials: token required")
	// ErrServiceNotReady indicates the service has not been properly configured.
	ErrServiceNotReady = errors.New("go-credentials: service not ready")
	// ErrMissingUserStore occurs when no user store was supplied.
	ErrMissingUserStore = errors.New("go-credentials: missing user store")
	// ErrMissingCredentialStore occurs when no credential store was supplied.
	ErrMissingCredentialStore = errors.New("go-credentials: missing credential store")
	// ErrMissingIssuer occurs when commands lack a token issuer.
	ErrMissingIssuer = errors.New("go-credentials: missing token issuer")
	// ErrMissingPasswordVerifier occurs when password flows lack a verifier.
	ErrMissingPasswordVerifier = errors.New("go-credentials: missing password verifier")
	// ErrMissingPasswordHasher occurs when registration lacks a hasher.
	ErrMissingPasswordHasher = errors.New("go-credentials: missing password hasher")
	// ErrMissingSecrets occurs when the issuer is built without both signing secrets.
	ErrMissingSecrets = errors.New("go-credentials: access and refresh secrets required")
	// ErrSharedSecret occurs when access and refresh secrets are identical.
	ErrSharedSecret = errors.New("go-credentials: access and refresh secrets must differ")
)

// IsUnauthorized reports whether err should be surfaced as an authorization failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidCredentials)
}
