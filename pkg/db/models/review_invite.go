package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// ReviewInvite is a guest share link. Token is the only credential.
type ReviewInvite struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AssetID          uuid.UUID             `gorm:"column:asset_id;type:uuid;not null;index" json:"assetId"`
	Token            string                `gorm:"column:token;type:text;not null;uniqueIndex" json:"token"`
	Permission       enums.SharePermission `gorm:"column:permission;type:text;not null" json:"permission"`
	ExpiresAt        *time.Time            `gorm:"column:expires_at" json:"expiresAt"`
	RevokedAt        *time.Time            `gorm:"column:revoked_at" json:"revokedAt"`
	WatermarkEnabled bool                  `gorm:"column:watermark_enabled;not null;default:false" json:"watermarkEnabled"`
	WatermarkText    *string               `gorm:"column:watermark_text;type:text" json:"watermarkText"`
	ViewCount        int64                 `gorm:"column:view_count;not null;default:0" json:"viewCount"`
	LastViewedAt     *time.Time            `gorm:"column:last_viewed_at" json:"lastViewedAt"`
	ReviewerEmail    *string               `gorm:"column:reviewer_email;type:text" json:"reviewerEmail"`
	CreatedBy        uuid.UUID             `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (i *ReviewInvite) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// ExpiredAt reports whether the invite is inert at the given instant.
func (i *ReviewInvite) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// ReviewView is one analytics row for a guest visit.
type ReviewView struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InviteID        uuid.UUID                   `gorm:"column:invite_id;type:uuid;not null;index" json:"inviteId"`
	DurationSeconds int                         `gorm:"column:duration_seconds;not null;default:0" json:"durationSeconds"`
	Actions         datatypes.JSONSlice[string] `gorm:"column:actions" json:"actions"`
	ViewerIPHash    *string                     `gorm:"column:viewer_ip_hash;type:text" json:"viewerIpHash"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (v *ReviewView) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
