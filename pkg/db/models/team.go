package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Team is the unit roles are granted on.
type Team struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:text;not null" json:"name"`
	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (t *Team) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// TeamMembership links a user with a team. One row per (team, user).
type TeamMembership struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TeamID          uuid.UUID        `gorm:"column:team_id;type:uuid;not null;uniqueIndex:idx_team_memberships_team_user" json:"teamId"`
	UserID          uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_team_memberships_team_user;index" json:"userId"`
	Role            enums.MemberRole `gorm:"column:role;type:text;not null" json:"role"`
	InvitedByUserID *uuid.UUID       `gorm:"column:invited_by_user_id;type:uuid" json:"invitedByUserId"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (m *TeamMembership) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}
