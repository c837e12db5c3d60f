package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Point is one coordinate pair, normalized to the media frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Annotation is a drawn shape pinned to one version.
type Annotation struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VersionID       uuid.UUID                  `gorm:"column:version_id;type:uuid;not null;index" json:"versionId"`
	CommentID       *uuid.UUID                 `gorm:"column:comment_id;type:uuid;index" json:"commentId"`
	Shape           enums.AnnotationShape      `gorm:"column:shape;type:text;not null" json:"shape"`
	Points          datatypes.JSONSlice[Point] `gorm:"column:points;not null" json:"points"`
	Radius          *float64                   `gorm:"column:radius" json:"radius"`
	StrokeWidth     float64                    `gorm:"column:stroke_width;not null;default:2" json:"strokeWidth"`
	Color           string                     `gorm:"column:color;type:text;not null;default:'#ff3b30'" json:"color"`
	Opacity         float64                    `gorm:"column:opacity;not null;default:1" json:"opacity"`
	TimecodeSeconds *float64                   `gorm:"column:timecode_seconds" json:"timecodeSeconds"`
	Page            *int                       `gorm:"column:page" json:"page"`
	CreatedBy       *uuid.UUID                 `gorm:"column:created_by;type:uuid" json:"createdBy"`
	GuestName       *string                    `gorm:"column:guest_name;type:text" json:"guestName"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (a *Annotation) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
