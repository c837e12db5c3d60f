package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// ApprovalStep is one gate of an asset's approval chain. Sequence orders the
// chain for display only.
type ApprovalStep struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AssetID       uuid.UUID            `gorm:"column:asset_id;type:uuid;not null;index" json:"assetId"`
	Sequence      int                  `gorm:"column:sequence;not null" json:"sequence"`
	RoleLabel     string               `gorm:"column:role_label;type:text;not null" json:"roleLabel"`
	AssigneeID    *uuid.UUID           `gorm:"column:assignee_id;type:uuid" json:"assigneeId"`
	AssigneeEmail *string              `gorm:"column:assignee_email;type:text" json:"assigneeEmail"`
	Status        enums.ApprovalStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	DecidedBy     *string              `gorm:"column:decided_by;type:text" json:"decidedBy"`
	DecidedAt     *time.Time           `gorm:"column:decided_at" json:"decidedAt"`
	DecisionNote  *string              `gorm:"column:decision_note;type:text" json:"decisionNote"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (s *ApprovalStep) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
