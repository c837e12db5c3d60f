package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Notification stores in-app notification payloads for a single user.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index:idx_notifications_user_created" json:"userId"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	Title         string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message       string                 `gorm:"column:message;type:text;not null" json:"message"`
	ProjectID     *uuid.UUID             `gorm:"column:project_id;type:uuid" json:"projectId"`
	AssetID       *uuid.UUID             `gorm:"column:asset_id;type:uuid" json:"assetId"`
	ActorID       *uuid.UUID             `gorm:"column:actor_id;type:uuid" json:"actorId"`
	Read          bool                   `gorm:"column:read;not null;default:false" json:"read"`
	ReadAt        *time.Time             `gorm:"column:read_at" json:"readAt"`
	DigestPending bool                   `gorm:"column:digest_pending;not null;default:false;index" json:"digestPending"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime;index:idx_notifications_user_created" json:"createdAt"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	assignID(&n.ID)
	return nil
}

// NotificationPreference is one user's settings for one event type. A missing
// row means everything enabled, delivered immediately.
type NotificationPreference struct {
	UserID       uuid.UUID                   `gorm:"column:user_id;type:uuid;primaryKey" json:"userId"`
	EventType    enums.NotificationType      `gorm:"column:event_type;type:text;primaryKey" json:"eventType"`
	InAppEnabled bool                        `gorm:"column:in_app_enabled;not null" json:"inAppEnabled"`
	EmailEnabled bool                        `gorm:"column:email_enabled;not null" json:"emailEnabled"`
	Frequency    enums.NotificationFrequency `gorm:"column:frequency;type:text;not null" json:"frequency"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// NotificationCounter caches a user's unread count. It is only changed with
// atomic increments and decrements.
type NotificationCounter struct {
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"userId"`
	UnreadCount int64     `gorm:"column:unread_count;not null;default:0" json:"unreadCount"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
