package types

import "strings"

const (
	// RoleUser is the default tier for self-registered accounts.
	RoleUser = "user"
	// RoleEditor can manage content but not accounts.
	RoleEditor = "editor"
	// RoleAdmin represents site-wide administrators.
	RoleAdmin = "admin"
)

// RolePolicy decides the role assigned to an account created from a federated
// identity claim.
type RolePolicy func(IdentityClaim) string

// DefaultRolePolicy assigns every new account the non-administrative user role.
func DefaultRolePolicy(IdentityClaim) string {
	return RoleUser
}

// DomainRolePolicy grants role to verified emails under domain and falls back
// to RoleUser for everyone else. Administrative roles are never granted.
func DomainRolePolicy(domain, role string) RolePolicy {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
	role = NormalizeRole(role)
	return func(claim IdentityClaim) string {
		if domain == "" || role == "" || IsAdministrative(role) || !claim.EmailVerified {
			return RoleUser
		}
		_, host, ok := strings.Cut(strings.ToLower(strings.TrimSpace(claim.Email)), "@")
		if !ok || host != domain {
			return RoleUser
		}
		return role
	}
}

// AssignRole runs the policy and guards against empty results.
func (p RolePolicy) AssignRole(claim IdentityClaim) string {
	if p == nil {
		return RoleUser
	}
	role := NormalizeRole(p(claim))
	if role == "" {
		return RoleUser
	}
	return role
}

// IsAdministrative reports whether role grants administrative access.
func IsAdministrative(role string) bool {
	return NormalizeRole(role) == RoleAdmin
}

// NormalizeRole normalizes the role for comparisons.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
