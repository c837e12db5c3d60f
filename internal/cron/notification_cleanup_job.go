package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

const notificationRetentionDays = 30

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository notificationsCleanupRepo
	Retention  int
}

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob prunes read notifications past the retention window.
// Unread rows are never touched.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("notification cleanup: logger required")
	case params.Repository == nil:
		return nil, errors.New("notification cleanup: repository required")
	}
	return newPruneJob("notification-cleanup", params.Logger, params.Retention, notificationRetentionDays,
		params.Repository.DeleteReadBefore), nil
}
