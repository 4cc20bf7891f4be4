// Package password provides the bcrypt-backed verify/hash capability used by
// password sign-in and registration.
package password

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-credentials/pkg/types"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches the cost used when accounts are registered with a password.
const DefaultCost = 10

// ErrEmptyPassword is returned when hashing a blank password.
var ErrEmptyPassword = errors.New("password: empty password")

// Bcrypt implements types.PasswordVerifier and types.PasswordHasher.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a bcrypt capability with the given cost. Out of range
// values fall back to DefaultCost.
func NewBcrypt(cost int) Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return Bcrypt{Cost: cost}
}

var (
	_ types.PasswordVerifier = Bcrypt{}
	_ types.PasswordHasher   = Bcrypt{}
)

// Verify reports whether password matches hash. A mismatch is not an error;
// malformed hashes are.
func (b Bcrypt) Verify(ctx context.Context, hash, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if strings.TrimSpace(hash) == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Hash derives a bcrypt hash for password.
func (b Bcrypt) Hash(ctx context.Context, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if password == "" {
		return "", ErrEmptyPassword
	}
	cost := b.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
