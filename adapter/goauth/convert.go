package goauth

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-credentials/pkg/types"
)

// UserFromDomain converts a credentials user into the upstream go-auth model.
func UserFromDomain(user *types.User) *auth.User {
	return fromDomain(user, nil)
}

// UserToDomain converts the go-auth user model into a credentials user.
func UserToDomain(user *auth.User) *types.User {
	return toDomain(user)
}

func toDomain(user *auth.User) *types.User {
	if user == nil {
		return nil
	}
	out := &types.User{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Name:         joinName(user.FirstName, user.LastName),
		PasswordHash: user.PasswordHash,
		AvatarURL:    user.ProfilePicture,
		Role:         roleToDomain(user.Role),
	}
	if user.CreatedAt != nil {
		out.CreatedAt = *user.CreatedAt
	}
	if user.UpdatedAt != nil {
		out.UpdatedAt = *user.UpdatedAt
	}
	return out
}

// fromDomain maps user onto base when given so go-auth columns the
// credentials model does not carry survive an update.
func fromDomain(user *types.User, base *auth.User) *auth.User {
	if user == nil {
		return nil
	}
	out := &auth.User{}
	if base != nil {
		clone := *base
		out = &clone
	}
	first, last := splitName(user.Name)
	out.ID = user.ID
	out.Email = user.Email
	out.Username = user.Username
	out.FirstName = first
	out.LastName = last
	out.PasswordHash = user.PasswordHash
	out.ProfilePicture = user.AvatarURL
	out.Role = roleFromDomain(user.Role)
	if !user.CreatedAt.IsZero() {
		created := user.CreatedAt
		out.CreatedAt = &created
	}
	if !user.UpdatedAt.IsZero() {
		updated := user.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}

func roleToDomain(role auth.UserRole) string {
	switch role {
	case auth.RoleAdmin:
		return types.RoleAdmin
	case auth.RoleMember, "":
		return types.RoleUser
	default:
		return types.NormalizeRole(string(role))
	}
}

func roleFromDomain(role string) auth.UserRole {
	switch types.NormalizeRole(role) {
	case types.RoleAdmin:
		return auth.RoleAdmin
	case types.RoleUser, "":
		return auth.RoleMember
	default:
		return auth.UserRole(types.NormalizeRole(role))
	}
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
