package command

import (
	"context"
	"strings"

	"github.com/goliatone/go-credentials/federated"
	"github.com/goliatone/go-credentials/pkg/types"
)

const verbAvatarFallback = "auth.avatar_fallback"

// federatedSource is shared by the federated inputs: either a raw provider
// credential or an already decoded claim.
type federatedSource struct {
	Credential string
	Claim      *types.IdentityClaim
}

func (s federatedSource) validate() error {
	if strings.TrimSpace(s.Credential) == "" && s.Claim == nil {
		return ErrCredentialRequired
	}
	return nil
}

// federatedVerifier decodes the source and enforces audience and expiry.
type federatedVerifier struct {
	decoder  ClaimDecoder
	clientID string
	clock    types.Clock
}

func (v federatedVerifier) resolve(ctx context.Context, src federatedSource) (types.IdentityClaim, error) {
	if strings.TrimSpace(v.clientID) == "" {
		return types.IdentityClaim{}, ErrMissingClientID
	}
	var claim types.IdentityClaim
	switch {
	case src.Claim != nil:
		claim = *src.Claim
	case v.decoder == nil:
		return types.IdentityClaim{}, ErrMissingDecoder
	default:
		decoded, err := v.decoder.Decode(ctx, src.Credential)
		if err != nil {
			return types.IdentityClaim{}, err
		}
		claim = decoded
	}
	if err := federated.ValidateAudience(claim, v.clientID); err != nil {
		return types.IdentityClaim{}, err
	}
	if err := federated.ValidateExpiry(claim, safeClock(v.clock).Now()); err != nil {
		return types.IdentityClaim{}, err
	}
	if normalizeEmail(claim.Email) == "" {
		return types.IdentityClaim{}, types.ErrUnauthorized
	}
	return claim, nil
}

// avatarProvisioner copies a provider picture into local storage. Failures
// are reported through ok=false so callers can fall back.
type avatarProvisioner struct {
	fetcher       types.ImageFetcher
	defaultAvatar string
	logger        types.Logger
}

func (a avatarProvisioner) provision(ctx context.Context, picture string) (string, bool) {
	picture = strings.TrimSpace(picture)
	if a.fetcher == nil || picture == "" {
		return a.defaultAvatar, false
	}
	url, err := a.fetcher.FetchAndStore(ctx, picture)
	if err != nil {
		a.logger.Error("credentials: avatar fetch failed, using default", err)
		return a.defaultAvatar, false
	}
	return url, true
}

func (a avatarProvisioner) isDefault(current string) bool {
	return strings.TrimSpace(a.defaultAvatar) != "" && current == a.defaultAvatar
}
