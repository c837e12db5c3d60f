package teams

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// TeamWithRole is a team as seen by one of its members.
type TeamWithRole struct {
	TeamID   uuid.UUID        `json:"teamId"`
	TeamName string           `json:"teamName"`
	Role     enums.MemberRole `json:"role"`
	JoinedAt time.Time        `json:"joinedAt"`
}

// Member is one row of a team roster.
type Member struct {
	UserID   uuid.UUID        `json:"userId"`
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	Role     enums.MemberRole `json:"role"`
	JoinedAt time.Time        `json:"joinedAt"`
}

type teamWithRoleRow struct {
	TeamID   uuid.UUID
	TeamName string
	Role     enums.MemberRole
	JoinedAt time.Time
}

type memberRow struct {
	UserID   uuid.UUID
	Email    string
	Name     string
	Role     enums.MemberRole
	JoinedAt time.Time
}

func teamRowsToDTO(rows []teamWithRoleRow) []TeamWithRole {
	out := make([]TeamWithRole, 0, len(rows))
	for _, row := range rows {
		out = append(out, TeamWithRole(row))
	}
	return out
}

func memberRowsToDTO(rows []memberRow) []Member {
	out := make([]Member, 0, len(rows))
	for _, row := range rows {
		out = append(out, Member(row))
	}
	return out
}
