package enums

import "fmt"

type CommentStatus string

const (
	CommentStatusOpen     CommentStatus = "open"
	CommentStatusResolved CommentStatus = "resolved"
)

var validCommentStatuses = []CommentStatus{
	CommentStatusOpen,
	CommentStatusResolved,
}

func (s CommentStatus) IsValid() bool {
	for _, candidate := range validCommentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseCommentStatus(value string) (CommentStatus, error) {
	for _, candidate := range validCommentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid comment status %q", value)
}
