package command

import (
	"errors"

	"github.com/goliatone/go-credentials/pkg/types"
)

var (
	// ErrIdentifierRequired indicates the sign-in identifier was missing.
	ErrIdentifierRequired = errors.New("go-credentials: identifier required")
	// ErrPasswordRequired indicates the password was missing.
	ErrPasswordRequired = errors.New("go-credentials: password required")
	// ErrEmailRequired indicates a registration omitted the email address.
	ErrEmailRequired = errors.New("go-credentials: email required")
	// ErrCredentialRequired indicates a federated flow received neither a
	// credential nor a decoded claim.
	ErrCredentialRequired = errors.New("go-credentials: federated credential required")
	// ErrRefreshTokenRequired indicates the refresh token was missing.
	ErrRefreshTokenRequired = errors.New("go-credentials: refresh token required")
	// ErrMissingDecoder indicates a raw credential arrived without a decoder.
	ErrMissingDecoder = errors.New("go-credentials: missing federated decoder")
	// ErrMissingClientID indicates federated flows lack the expected audience.
	ErrMissingClientID = errors.New("go-credentials: missing federated client id")
	// ErrUserIDRequired occurs when queries omit the user.
	ErrUserIDRequired = types.ErrUserIDRequired
	// ErrSignupDisabled indicates self-registration is disabled via feature gate.
	ErrSignupDisabled = types.ErrSignupDisabled
)
