package approvals

import (
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// DeriveState folds an asset's steps into its overall approval state. A single
// blocking step outweighs any number of approvals; sequence plays no part.
func DeriveState(steps []models.ApprovalStep) enums.ApprovalState {
	if len(steps) == 0 {
		return enums.ApprovalStateNone
	}
	approved := 0
	for _, step := range steps {
		switch step.Status {
		case enums.ApprovalStatusRejected, enums.ApprovalStatusChangesRequested:
			return enums.ApprovalStateBlocked
		case enums.ApprovalStatusApproved:
			approved++
		}
	}
	if approved == len(steps) {
		return enums.ApprovalStateApproved
	}
	return enums.ApprovalStateInProgress
}
