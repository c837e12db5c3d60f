package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/pagination"
)

// Repository persists in-app notifications, unread counters and preferences.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.DB(ctx).Create(notification).Error
}

// IncrementUnread upserts the counter row and adds one.
func (r *Repository) IncrementUnread(ctx context.Context, userID uuid.UUID, now time.Time) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"unread_count": gorm.Expr("notification_counters.unread_count + 1"),
			"updated_at":   now,
		}),
	}).Create(&models.NotificationCounter{UserID: userID, UnreadCount: 1, UpdatedAt: now}).Error
}

// DecrementUnread subtracts n without going below zero.
func (r *Repository) DecrementUnread(ctx context.Context, userID uuid.UUID, n int64, now time.Time) error {
	if n <= 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.NotificationCounter{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"unread_count": gorm.Expr("CASE WHEN unread_count >= ? THEN unread_count - ? ELSE 0 END", n, n),
			"updated_at":   now,
		}).Error
}

func (r *Repository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var counter models.NotificationCounter
	err := r.DB(ctx).Where("user_id = ?", userID).Limit(1).Find(&counter).Error
	return counter.UnreadCount, err
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, params pagination.Params) ([]models.Notification, error) {
	q := r.DB(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	q, err := pagination.ApplyDesc(q, params)
	if err != nil {
		return nil, err
	}
	var rows []models.Notification
	return rows, q.Find(&rows).Error
}

// MarkRead flips one row. The bool reports whether this call flipped it.
func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID, now time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read = ?", id, userID, false).
		Updates(map[string]any{"read": true, "read_at": now})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) Exists(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Notification{}).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]any{"read": true, "read_at": now})
	return res.RowsAffected, res.Error
}

func (r *Repository) Preference(ctx context.Context, userID uuid.UUID, eventType enums.NotificationType) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := r.DB(ctx).Where("user_id = ? AND event_type = ?", userID, eventType).First(&pref).Error
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *Repository) Preferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error) {
	var rows []models.NotificationPreference
	err := r.DB(ctx).Where("user_id = ?", userID).Order("event_type ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"in_app_enabled", "email_enabled", "frequency", "updated_at"}),
	}).Create(pref).Error
}

func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Select("id", "email", "name").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// PendingDigest is one user's batch of notifications awaiting the digest email.
type PendingDigest struct {
	UserID uuid.UUID
	Items  []models.Notification
}

// PendingDigests groups digest_pending rows by user, oldest first.
func (r *Repository) PendingDigests(ctx context.Context, limit int) ([]PendingDigest, error) {
	var rows []models.Notification
	err := r.DB(ctx).
		Where("digest_pending = ?", true).
		Order("user_id ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	var out []PendingDigest
	for _, row := range rows {
		if len(out) == 0 || out[len(out)-1].UserID != row.UserID {
			out = append(out, PendingDigest{UserID: row.UserID})
		}
		out[len(out)-1].Items = append(out[len(out)-1].Items, row)
	}
	return out, nil
}

func (r *Repository) ClearDigest(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).
		UpdateColumn("digest_pending", false).Error
}

// DeleteReadBefore removes read notifications older than cutoff.
func (r *Repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
