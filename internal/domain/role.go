package domain

import (
	"fmt"
	"strings"
)

// Role is the caller-declared persona that selects a prompt template.
type Role int

const (
	RoleLawyer Role = iota
	RoleStudent
	RoleEnterprise
	RoleBanker

	roleCount
)

var roleNames = [roleCount]string{
	RoleLawyer:     "lawyer",
	RoleStudent:    "student",
	RoleEnterprise: "enterprise",
	RoleBanker:     "banker",
}

// RoleCount is the size of the closed role set.
const RoleCount = int(roleCount)

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	return r >= 0 && r < roleCount
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range roleNames {
		if n == name {
			return Role(i), nil
		}
	}
	return 0, &PipelineError{
		Kind:    KindUnknownRole,
		Message: fmt.Sprintf("unknown role: %q", s),
	}
}

// AllRoles returns every role in declaration order.
func AllRoles() []Role {
	roles := make([]Role, 0, roleCount)
	for r := Role(0); r < roleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}
