package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityLogEntry is an append-only audit record.
type ActivityLogEntry struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ActorID    *uuid.UUID     `gorm:"column:actor_id;type:uuid" json:"actorId"`
	ActorLabel string         `gorm:"column:actor_label;type:text;not null" json:"actorLabel"`
	Action     string         `gorm:"column:action;type:text;not null" json:"action"`
	ProjectID  uuid.UUID      `gorm:"column:project_id;type:uuid;not null;index:idx_activity_project_created" json:"projectId"`
	AssetID    *uuid.UUID     `gorm:"column:asset_id;type:uuid" json:"assetId"`
	Details    datatypes.JSON `gorm:"column:details" json:"details"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_activity_project_created" json:"createdAt"`
}

func (ActivityLogEntry) TableName() string { return "activity_log" }

func (e *ActivityLogEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
