package command

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/types"
)

// passwordCheck resolves identifier to a user and verifies password. Every
// failure other than a store error is types.ErrInvalidCredentials; the reason
// is only logged.
type passwordCheck struct {
	users    types.UserStore
	verifier types.PasswordVerifier
	logger   types.Logger
}

func (p passwordCheck) authenticate(ctx context.Context, identifier, password string) (*types.User, error) {
	if p.users == nil {
		return nil, types.ErrMissingUserStore
	}
	if p.verifier == nil {
		return nil, types.ErrMissingPasswordVerifier
	}
	user, err := p.users.FindByEmailOrID(ctx, identifier, types.FindOptions{WithPasswordHash: true})
	if err != nil {
		return nil, err
	}
	if user == nil {
		p.logger.Debug("credentials: unknown identifier")
		return nil, types.ErrInvalidCredentials
	}
	if !user.HasPassword() {
		p.logger.Debug("credentials: account has no password", "user_id", user.ID)
		return nil, types.ErrInvalidCredentials
	}
	ok, err := p.verifier.Verify(ctx, user.PasswordHash, password)
	if err != nil {
		p.logger.Error("credentials: password verification failed", err, "user_id", user.ID)
		return nil, types.ErrInvalidCredentials
	}
	if !ok {
		p.logger.Debug("credentials: password mismatch", "user_id", user.ID)
		return nil, types.ErrInvalidCredentials
	}
	return user, nil
}
