// Package federated decodes third-party identity assertions (Google ID
// tokens) into types.IdentityClaim values and checks their audience.
package federated

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-credentials/pkg/types"
)

// Decoder reads identity claims out of a federated credential. Without a key
// function the signature is not checked and the audience check in the
// credential service is the trust boundary, matching how the credential is
// obtained from the provider SDK on the client. Expiry is always enforced.
type Decoder struct {
	clock   types.Clock
	keyfunc jwt.Keyfunc
	methods []string
}

// DecoderOption customizes a Decoder.
type DecoderOption func(*Decoder)

// WithDecoderClock sets the clock expiry is checked against.
func WithDecoderClock(clock types.Clock) DecoderOption {
	return func(d *Decoder) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithKeyfunc makes the Decoder verify signatures with keyfunc, restricted
// to methods (RS256 when empty). Hosts plug in the provider's published keys.
func WithKeyfunc(keyfunc jwt.Keyfunc, methods ...string) DecoderOption {
	return func(d *Decoder) {
		d.keyfunc = keyfunc
		if len(methods) > 0 {
			d.methods = methods
		}
	}
}

// NewDecoder returns a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		clock:   types.SystemClock{},
		methods: []string{jwt.SigningMethodRS256.Alg()},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

type googleClaims struct {
	Email           string       `json:"email"`
	EmailVerified   flexibleBool `json:"email_verified"`
	Name            string       `json:"name"`
	GivenName       string       `json:"given_name"`
	FamilyName      string       `json:"family_name"`
	Picture         string       `json:"picture"`
	AuthorizedParty string       `json:"azp"`
	jwt.RegisteredClaims
}

// Decode parses credential, verifying the signature only when a key function
// is configured. Malformed, badly signed or expired input, a missing exp, or
// a claim without an email is ErrUnauthorized.
func (d *Decoder) Decode(ctx context.Context, credential string) (types.IdentityClaim, error) {
	if err := ctx.Err(); err != nil {
		return types.IdentityClaim{}, err
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return types.IdentityClaim{}, types.ErrUnauthorized
	}
	claims, err := d.parse(credential)
	if err != nil {
		return types.IdentityClaim{}, types.ErrUnauthorized
	}
	if strings.TrimSpace(claims.Email) == "" || claims.ExpiresAt == nil {
		return types.IdentityClaim{}, types.ErrUnauthorized
	}

	out := types.IdentityClaim{
		Issuer:          claims.Issuer,
		AuthorizedParty: claims.AuthorizedParty,
		Subject:         claims.Subject,
		Email:           strings.TrimSpace(claims.Email),
		EmailVerified:   bool(claims.EmailVerified),
		Name:            claims.Name,
		GivenName:       claims.GivenName,
		FamilyName:      claims.FamilyName,
		Picture:         claims.Picture,
	}
	if len(claims.Audience) > 0 {
		out.Audience = claims.Audience[0]
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	out.ExpiresAt = claims.ExpiresAt.Time
	if err := ValidateExpiry(out, d.now()); err != nil {
		return types.IdentityClaim{}, err
	}
	return out, nil
}

func (d *Decoder) parse(credential string) (*googleClaims, error) {
	claims := &googleClaims{}
	if d.keyfunc == nil {
		_, _, err := jwt.NewParser().ParseUnverified(credential, claims)
		return claims, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(d.methods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.now),
	)
	if _, err := parser.ParseWithClaims(credential, claims, d.keyfunc); err != nil {
		return nil, err
	}
	return claims, nil
}

func (d *Decoder) now() time.Time {
	if d.clock == nil {
		return time.Now()
	}
	return d.clock.Now()
}

// ValidateExpiry rejects claims whose expiry is at or before now. A zero
// expiry is only accepted on claims the host decoded itself.
func ValidateExpiry(claim types.IdentityClaim, now time.Time) error {
	if !claim.ExpiresAt.IsZero() && !now.Before(claim.ExpiresAt) {
		return types.ErrUnauthorized
	}
	return nil
}

// ValidateAudience rejects claims minted for a different client.
func ValidateAudience(claim types.IdentityClaim, clientID string) error {
	expected := strings.TrimSpace(clientID)
	if expected == "" || claim.Audience != expected {
		return types.ErrUnauthorized
	}
	return nil
}

// flexibleBool accepts both JSON booleans and the "true"/"false" strings some
// providers emit.
type flexibleBool bool

func (b *flexibleBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexibleBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = flexibleBool(strings.EqualFold(s, "true"))
	return nil
}
