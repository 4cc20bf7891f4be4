package issuer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

// Claims is the signed payload shared by access and refresh tokens. Subject
// carries the email; the user id travels in its own claim.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	jwt.RegisteredClaims
}

// ClaimsFor builds the claim set for user.
func ClaimsFor(user types.User) Claims {
	return Claims{
		Username: user.Username,
		UserID:   user.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.Email,
		},
	}
}

// UserUUID parses the userId claim.
func (c *Claims) UserUUID() (uuid.UUID, error) {
	if c == nil {
		return uuid.Nil, types.ErrUnauthorized
	}
	id, err := uuid.Parse(c.UserID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, types.ErrUnauthorized
	}
	return id, nil
}

// Identity converts verified claims into the request identity.
func (c *Claims) Identity(kind types.TokenKind) (*types.Identity, error) {
	id, err := c.UserUUID()
	if err != nil {
		return nil, err
	}
	return &types.Identity{
		UserID:   id,
		Email:    c.Subject,
		Username: c.Username,
		Kind:     kind,
	}, nil
}
