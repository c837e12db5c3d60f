// Package notifications delivers review events to users and serves their inbox.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/pagination"
)

// Service defines inbox and preference operations for the calling user.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params ListParams) (pagination.Page[models.Notification], error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error)
	UpdatePreference(ctx context.Context, userID uuid.UUID, input PreferenceInput) (*models.NotificationPreference, error)
}

// ListParams configures pagination for notifications.
type ListParams struct {
	pagination.Params
	UnreadOnly bool
}

// PreferenceInput changes one event type; nil fields keep their current value.
type PreferenceInput struct {
	EventType    enums.NotificationType
	InAppEnabled *bool
	EmailEnabled *bool
	Frequency    *enums.NotificationFrequency
}

type service struct {
	repo *Repository
	tx   txRunner
	now  func() time.Time
}

// NewService wires notifications dependencies.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tx runner required")
	}
	return &service{repo: repo, tx: tx, now: db.UTCNow}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params ListParams) (pagination.Page[models.Notification], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Notification]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, userID, params.UnreadOnly, params.Params)
	if err != nil {
		return pagination.Page[models.Notification]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return pagination.Finish(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	}), nil
}

// MarkRead decrements the unread counter only when this call flipped the row.
func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	var flipped bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		now := s.now()
		var err error
		flipped, err = r.MarkRead(ctx, userID, notificationID, now)
		if err != nil || !flipped {
			return err
		}
		return r.DecrementUnread(ctx, userID, 1, now)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if flipped {
		return nil
	}
	found, err := s.repo.Exists(ctx, userID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		now := s.now()
		var err error
		count, err = r.MarkAllRead(ctx, userID, now)
		if err != nil {
			return err
		}
		return r.DecrementUnread(ctx, userID, count, now)
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unread count")
	}
	return count, nil
}

// GetPreferences returns one entry per notification type, filling gaps with
// the defaults the dispatcher applies.
func (s *service) GetPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error) {
	stored, err := s.repo.Preferences(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load preferences")
	}
	byType := make(map[enums.NotificationType]models.NotificationPreference, len(stored))
	for _, pref := range stored {
		byType[pref.EventType] = pref
	}
	out := make([]models.NotificationPreference, 0, len(enums.NotificationTypes()))
	for _, t := range enums.NotificationTypes() {
		if pref, ok := byType[t]; ok {
			out = append(out, pref)
			continue
		}
		out = append(out, *DefaultPreference(userID, t))
	}
	return out, nil
}

func (s *service) UpdatePreference(ctx context.Context, userID uuid.UUID, input PreferenceInput) (*models.NotificationPreference, error) {
	if !input.EventType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event type %q", input.EventType))
	}
	if input.Frequency != nil && !input.Frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "frequency must be immediate or digest")
	}

	var pref *models.NotificationPreference
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		current, err := r.Preference(ctx, userID, input.EventType)
		switch {
		case err == nil:
			pref = current
		case isNotFound(err):
			pref = DefaultPreference(userID, input.EventType)
		default:
			return err
		}
		if input.InAppEnabled != nil {
			pref.InAppEnabled = *input.InAppEnabled
		}
		if input.EmailEnabled != nil {
			pref.EmailEnabled = *input.EmailEnabled
		}
		if input.Frequency != nil {
			pref.Frequency = *input.Frequency
		}
		pref.UpdatedAt = s.now()
		return r.UpsertPreference(ctx, pref)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update preference")
	}
	return pref, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
