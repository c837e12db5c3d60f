package enums

import "fmt"

// MemberRole represents a team-level permissions role.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
	MemberRoleViewer MemberRole = "viewer"
)

// validMemberRoles is ordered from least to most privileged.
var validMemberRoles = []MemberRole{
	MemberRoleViewer,
	MemberRoleMember,
	MemberRoleAdmin,
	MemberRoleOwner,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	return m.Rank() >= 0
}

// Rank returns the position of the role in the privilege order, or -1.
func (m MemberRole) Rank() int {
	for i, candidate := range validMemberRoles {
		if candidate == m {
			return i
		}
	}
	return -1
}

// MemberRoles returns every role from least to most privileged.
func MemberRoles() []MemberRole {
	out := make([]MemberRole, len(validMemberRoles))
	copy(out, validMemberRoles)
	return out
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
