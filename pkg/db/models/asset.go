package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Asset is a reviewable piece of media. FileURL mirrors the file of the
// highest-numbered version; VersionCounter only ever grows.
type Asset struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID      uuid.UUID       `gorm:"column:project_id;type:uuid;not null;index" json:"projectId"`
	Title          string          `gorm:"column:title;type:text;not null" json:"title"`
	MediaType      enums.MediaType `gorm:"column:media_type;type:text;not null" json:"mediaType"`
	FileURL        string          `gorm:"column:file_url;type:text;not null;default:''" json:"fileUrl"`
	VersionCounter int             `gorm:"column:version_counter;not null;default:0" json:"versionCounter"`
	CreatedBy      uuid.UUID       `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (a *Asset) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

// AssetVersion is an immutable snapshot of an asset's media.
type AssetVersion struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AssetID       uuid.UUID `gorm:"column:asset_id;type:uuid;not null;uniqueIndex:idx_asset_versions_number" json:"assetId"`
	VersionNumber int       `gorm:"column:version_number;not null;uniqueIndex:idx_asset_versions_number" json:"versionNumber"`
	FileURL       string    `gorm:"column:file_url;type:text;not null" json:"fileUrl"`
	SizeBytes     *int64    `gorm:"column:size_bytes" json:"sizeBytes"`
	Notes         *string   `gorm:"column:notes;type:text" json:"notes"`
	UploadedBy    uuid.UUID `gorm:"column:uploaded_by;type:uuid;not null" json:"uploadedBy"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (v *AssetVersion) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}

// AssetWatcher subscribes a user to an asset's notifications.
type AssetWatcher struct {
	AssetID   uuid.UUID `gorm:"column:asset_id;type:uuid;primaryKey" json:"assetId"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"userId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
