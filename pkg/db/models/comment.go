package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Comment belongs to an asset rather than a version so it stays visible
// across uploads. VersionID only records where it was written.
type Comment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AssetID         uuid.UUID           `gorm:"column:asset_id;type:uuid;not null;index:idx_comments_asset_created" json:"assetId"`
	VersionID       *uuid.UUID          `gorm:"column:version_id;type:uuid" json:"versionId"`
	AuthorID        *uuid.UUID          `gorm:"column:author_id;type:uuid" json:"authorId"`
	GuestName       *string             `gorm:"column:guest_name;type:text" json:"guestName"`
	GuestEmail      *string             `gorm:"column:guest_email;type:text" json:"guestEmail"`
	Body            string              `gorm:"column:body;type:text;not null" json:"body"`
	TimecodeSeconds *float64            `gorm:"column:timecode_seconds" json:"timecodeSeconds"`
	Status          enums.CommentStatus `gorm:"column:status;type:text;not null;default:'open'" json:"status"`
	ResolvedBy      *uuid.UUID          `gorm:"column:resolved_by;type:uuid" json:"resolvedBy"`
	ResolvedAt      *time.Time          `gorm:"column:resolved_at" json:"resolvedAt"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_comments_asset_created" json:"createdAt"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Reactions   []CommentReaction   `gorm:"foreignKey:CommentID" json:"reactions"`
	Attachments []CommentAttachment `gorm:"foreignKey:CommentID" json:"attachments"`
}

func (c *Comment) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CommentReaction is unique per (comment, reactor, emoji). ReactorKey is a
// user id or a guest descriptor.
type CommentReaction struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CommentID  uuid.UUID `gorm:"column:comment_id;type:uuid;not null;uniqueIndex:idx_comment_reactions_key" json:"commentId"`
	ReactorKey string    `gorm:"column:reactor_key;type:text;not null;uniqueIndex:idx_comment_reactions_key" json:"reactorKey"`
	Emoji      string    `gorm:"column:emoji;type:text;not null;uniqueIndex:idx_comment_reactions_key" json:"emoji"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (r *CommentReaction) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

type CommentAttachment struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CommentID   uuid.UUID `gorm:"column:comment_id;type:uuid;not null;index" json:"commentId"`
	FileName    string    `gorm:"column:file_name;type:text;not null" json:"fileName"`
	ContentType string    `gorm:"column:content_type;type:text;not null" json:"contentType"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null" json:"sizeBytes"`
	FileURL     string    `gorm:"column:file_url;type:text;not null" json:"fileUrl"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (a *CommentAttachment) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
