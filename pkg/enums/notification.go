package enums

import "fmt"

// NotificationType names the domain event a notification was produced for.
type NotificationType string

const (
	NotificationTypeCommentAdded      NotificationType = "comment_added"
	NotificationTypeCommentResolved   NotificationType = "comment_resolved"
	NotificationTypeVersionUploaded   NotificationType = "version_uploaded"
	NotificationTypeApprovalRequested NotificationType = "approval_requested"
	NotificationTypeApprovalDecided   NotificationType = "approval_decided"
	NotificationTypeShareViewed       NotificationType = "share_viewed"
	NotificationTypeMemberAdded       NotificationType = "member_added"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeCommentAdded,
	NotificationTypeCommentResolved,
	NotificationTypeVersionUploaded,
	NotificationTypeApprovalRequested,
	NotificationTypeApprovalDecided,
	NotificationTypeShareViewed,
	NotificationTypeMemberAdded,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// NotificationTypes returns every known notification type.
func NotificationTypes() []NotificationType {
	out := make([]NotificationType, len(validNotificationTypes))
	copy(out, validNotificationTypes)
	return out
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationFrequency controls when email for a notification goes out.
type NotificationFrequency string

const (
	NotificationFrequencyImmediate NotificationFrequency = "immediate"
	NotificationFrequencyDigest    NotificationFrequency = "digest"
)

func (f NotificationFrequency) IsValid() bool {
	return f == NotificationFrequencyImmediate || f == NotificationFrequencyDigest
}

func ParseNotificationFrequency(value string) (NotificationFrequency, error) {
	f := NotificationFrequency(value)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid notification frequency %q", value)
	}
	return f, nil
}
