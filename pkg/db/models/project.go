package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project groups assets under a team and has exactly one owning user.
type Project struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TeamID      uuid.UUID `gorm:"column:team_id;type:uuid;not null;index" json:"teamId"`
	OwnerID     uuid.UUID `gorm:"column:owner_id;type:uuid;not null" json:"ownerId"`
	Name        string    `gorm:"column:name;type:text;not null" json:"name"`
	Description *string   `gorm:"column:description;type:text" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (p *Project) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
