package enums

import "fmt"

// ApprovalStatus is the state of a single approval step.
type ApprovalStatus string

const (
	ApprovalStatusPending          ApprovalStatus = "pending"
	ApprovalStatusApproved         ApprovalStatus = "approved"
	ApprovalStatusRejected         ApprovalStatus = "rejected"
	ApprovalStatusChangesRequested ApprovalStatus = "changes_requested"
)

var validApprovalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusApproved,
	ApprovalStatusRejected,
	ApprovalStatusChangesRequested,
}

func (s ApprovalStatus) String() string {
	return string(s)
}

func (s ApprovalStatus) IsValid() bool {
	for _, candidate := range validApprovalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a step in this status needs a reset before it can be decided again.
func (s ApprovalStatus) IsTerminal() bool {
	return s.IsValid() && s != ApprovalStatusPending
}

func ParseApprovalStatus(value string) (ApprovalStatus, error) {
	for _, candidate := range validApprovalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid approval status %q", value)
}

// ApprovalState is the derived, never stored, approval state of an asset.
type ApprovalState string

const (
	ApprovalStateNone       ApprovalState = "none"
	ApprovalStateInProgress ApprovalState = "in_progress"
	ApprovalStateApproved   ApprovalState = "approved"
	ApprovalStateBlocked    ApprovalState = "blocked"
)
