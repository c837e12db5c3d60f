package approvals

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

func steps(statuses ...enums.ApprovalStatus) []models.ApprovalStep {
	out := make([]models.ApprovalStep, len(statuses))
	for i, s := range statuses {
		out[i] = models.ApprovalStep{Sequence: i + 1, Status: s}
	}
	return out
}

func TestDeriveState(t *testing.T) {
	cases := []struct {
		name  string
		steps []models.ApprovalStep
		want  enums.ApprovalState
	}{
		{"no steps", nil, enums.ApprovalStateNone},
		{"all pending", steps(enums.ApprovalStatusPending, enums.ApprovalStatusPending), enums.ApprovalStateInProgress},
		{"partly approved", steps(enums.ApprovalStatusApproved, enums.ApprovalStatusPending), enums.ApprovalStateInProgress},
		{"all approved", steps(enums.ApprovalStatusApproved, enums.ApprovalStatusApproved), enums.ApprovalStateApproved},
		{"rejected later step", steps(enums.ApprovalStatusApproved, enums.ApprovalStatusPending, enums.ApprovalStatusRejected), enums.ApprovalStateBlocked},
		{"changes requested", steps(enums.ApprovalStatusChangesRequested, enums.ApprovalStatusApproved), enums.ApprovalStateBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveState(tc.steps))
		})
	}
}
