package types

import "testing"

func TestDefaultRolePolicyNeverAdministrative(t *testing.T) {
	claims := []IdentityClaim{
		{Email: "someone@example.com"},
		{Email: "admin@example.com", EmailVerified: true},
		{},
	}
	for _, claim := range claims {
		role := RolePolicy(DefaultRolePolicy).AssignRole(claim)
		if role != RoleUser {
			t.Fatalf("expected %q, got %q", RoleUser, role)
		}
		if IsAdministrative(role) {
			t.Fatalf("default policy granted administrative role for %q", claim.Email)
		}
	}
}

func TestDomainRolePolicy(t *testing.T) {
	policy := DomainRolePolicy("@Example.com", "Editor")

	if role := policy.AssignRole(IdentityClaim{Email: "ana@example.com", EmailVerified: true}); role != RoleEditor {
		t.Fatalf("expected editor for verified domain email, got %q", role)
	}
	if role := policy.AssignRole(IdentityClaim{Email: "ana@example.com"}); role != RoleUser {
		t.Fatalf("expected user for unverified email, got %q", role)
	}
	if role := policy.AssignRole(IdentityClaim{Email: "ana@other.com", EmailVerified: true}); role != RoleUser {
		t.Fatalf("expected user for foreign domain, got %q", role)
	}
}

func TestDomainRolePolicyRefusesAdmin(t *testing.T) {
	policy := DomainRolePolicy("example.com", RoleAdmin)
	if role := policy.AssignRole(IdentityClaim{Email: "root@example.com", EmailVerified: true}); role != RoleUser {
		t.Fatalf("expected admin grant to be refused, got %q", role)
	}
}

func TestNilRolePolicyFallsBack(t *testing.T) {
	var policy RolePolicy
	if role := policy.AssignRole(IdentityClaim{}); role != RoleUser {
		t.Fatalf("expected user, got %q", role)
	}
	empty := RolePolicy(func(IdentityClaim) string { return "  " })
	if role := empty.AssignRole(IdentityClaim{}); role != RoleUser {
		t.Fatalf("expected user for blank policy result, got %q", role)
	}
}

func TestIdentityClaimUsername(t *testing.T) {
	claim := IdentityClaim{Email: "jane.doe@example.com"}
	if got := claim.Username(); got != "jane.doe" {
		t.Fatalf("expected jane.doe, got %q", got)
	}
}

func TestUserSanitized(t *testing.T) {
	user := User{Email: "a@example.com", PasswordHash: "hash"}
	clean := user.Sanitized()
	if clean.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped")
	}
	if user.PasswordHash != "hash" {
		t.Fatalf("expected original user to be untouched")
	}
}
