package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateAsset        OutboxAggregateType = "asset"
	AggregateComment      OutboxAggregateType = "comment"
	AggregateApprovalStep OutboxAggregateType = "approval_step"
	AggregateReviewInvite OutboxAggregateType = "review_invite"
	AggregateTeam         OutboxAggregateType = "team"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAsset,
	AggregateComment,
	AggregateApprovalStep,
	AggregateReviewInvite,
	AggregateTeam,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCommentAdded      OutboxEventType = "comment_added"
	EventCommentResolved   OutboxEventType = "comment_resolved"
	EventVersionUploaded   OutboxEventType = "version_uploaded"
	EventApprovalRequested OutboxEventType = "approval_requested"
	EventApprovalDecided   OutboxEventType = "approval_decided"
	EventShareViewed       OutboxEventType = "share_viewed"
	EventMemberAdded       OutboxEventType = "member_added"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCommentAdded,
	EventCommentResolved,
	EventVersionUploaded,
	EventApprovalRequested,
	EventApprovalDecided,
	EventShareViewed,
	EventMemberAdded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// NotificationType returns the notification type fanned out for this event.
func (e OutboxEventType) NotificationType() NotificationType {
	return NotificationType(e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
