package enums

import "fmt"

// SharePermission is the capability level granted by a review invite.
type SharePermission string

const (
	SharePermissionView    SharePermission = "view"
	SharePermissionComment SharePermission = "comment"
	SharePermissionApprove SharePermission = "approve"
)

var validSharePermissions = []SharePermission{
	SharePermissionView,
	SharePermissionComment,
	SharePermissionApprove,
}

func (p SharePermission) String() string {
	return string(p)
}

func (p SharePermission) IsValid() bool {
	for _, candidate := range validSharePermissions {
		if candidate == p {
			return true
		}
	}
	return false
}

// SharePermissions lists the levels from narrowest to widest.
func SharePermissions() []SharePermission {
	out := make([]SharePermission, len(validSharePermissions))
	copy(out, validSharePermissions)
	return out
}

func ParseSharePermission(value string) (SharePermission, error) {
	for _, candidate := range validSharePermissions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid share permission %q", value)
}
