package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// ReviewEvent is the notification-relevant core shared by every review event.
// AffectedUserIDs are resolved by the emitting service inside its transaction.
type ReviewEvent struct {
	ProjectID       uuid.UUID   `json:"projectId"`
	AssetID         *uuid.UUID  `json:"assetId,omitempty"`
	ActorID         *uuid.UUID  `json:"actorId,omitempty"`
	ActorLabel      string      `json:"actorLabel,omitempty"`
	Title           string      `json:"title"`
	Message         string      `json:"message"`
	AffectedUserIDs []uuid.UUID `json:"affectedUserIds"`
}

// Review exposes the shared core so consumers can fan out without a type switch.
func (e ReviewEvent) Review() ReviewEvent { return e }

// Notifiable is implemented by every payload in this package.
type Notifiable interface {
	Review() ReviewEvent
}

// CommentAddedEvent fires when a user or guest comments on an asset.
type CommentAddedEvent struct {
	ReviewEvent
	CommentID uuid.UUID  `json:"commentId"`
	VersionID *uuid.UUID `json:"versionId,omitempty"`
}

// CommentResolvedEvent notifies the comment author.
type CommentResolvedEvent struct {
	ReviewEvent
	CommentID uuid.UUID `json:"commentId"`
}

// VersionUploadedEvent fires after a new version is appended to an asset.
type VersionUploadedEvent struct {
	ReviewEvent
	VersionID     uuid.UUID `json:"versionId"`
	VersionNumber int       `json:"versionNumber"`
}

// ApprovalRequestedEvent targets the step assignee.
type ApprovalRequestedEvent struct {
	ReviewEvent
	StepID        uuid.UUID  `json:"stepId"`
	AssigneeID    *uuid.UUID `json:"assigneeId,omitempty"`
	AssigneeEmail *string    `json:"assigneeEmail,omitempty"`
}

// ApprovalDecidedEvent goes to the project owner and asset watchers.
type ApprovalDecidedEvent struct {
	ReviewEvent
	StepID uuid.UUID            `json:"stepId"`
	Status enums.ApprovalStatus `json:"status"`
	State  enums.ApprovalState  `json:"state"`
}

// ShareViewedEvent tells the invite creator a guest opened the link.
type ShareViewedEvent struct {
	ReviewEvent
	InviteID  uuid.UUID `json:"inviteId"`
	ViewCount int64     `json:"viewCount"`
}

// MemberAddedEvent greets a user added to a team.
type MemberAddedEvent struct {
	ReviewEvent
	TeamID uuid.UUID        `json:"teamId"`
	UserID uuid.UUID        `json:"userId"`
	Role   enums.MemberRole `json:"role"`
}
