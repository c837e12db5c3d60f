package versions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// LockAsset reads the asset with FOR UPDATE. SQLite drops the locking clause
// and relies on its single writer instead.
func (r *Repository) LockAsset(ctx context.Context, assetID uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&asset, "id = ?", assetID).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) MaxVersionNumber(ctx context.Context, assetID uuid.UUID) (int, error) {
	var max int
	err := r.DB(ctx).
		Model(&models.AssetVersion{}).
		Where("asset_id = ?", assetID).
		Select("COALESCE(MAX(version_number), 0)").
		Row().
		Scan(&max)
	return max, err
}

func (r *Repository) Insert(ctx context.Context, version *models.AssetVersion) error {
	return r.DB(ctx).Create(version).Error
}

// SetAssetPointer moves the asset's file_url and counter in one statement.
func (r *Repository) SetAssetPointer(ctx context.Context, assetID uuid.UUID, fileURL string, counter int, now time.Time) error {
	return r.DB(ctx).
		Model(&models.Asset{}).
		Where("id = ?", assetID).
		UpdateColumns(map[string]any{
			"file_url":        fileURL,
			"version_counter": counter,
			"updated_at":      now,
		}).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AssetVersion, error) {
	var v models.AssetVersion
	if err := r.DB(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByAsset returns versions newest first.
func (r *Repository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]models.AssetVersion, error) {
	var out []models.AssetVersion
	err := r.DB(ctx).
		Where("asset_id = ?", assetID).
		Order("version_number DESC").
		Find(&out).Error
	return out, err
}

func (r *Repository) Latest(ctx context.Context, assetID uuid.UUID) (*models.AssetVersion, error) {
	var v models.AssetVersion
	err := r.DB(ctx).
		Where("asset_id = ?", assetID).
		Order("version_number DESC").
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) Count(ctx context.Context, assetID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.AssetVersion{}).Where("asset_id = ?", assetID).Count(&n).Error
	return n, err
}

// Delete removes a version and its annotations. Comments written against it
// stay on the asset and lose the version hint.
func (r *Repository) Delete(ctx context.Context, versionID uuid.UUID) error {
	db := r.DB(ctx)
	if err := db.Where("version_id = ?", versionID).Delete(&models.Annotation{}).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Comment{}).Where("version_id = ?", versionID).UpdateColumn("version_id", nil).Error; err != nil {
		return err
	}
	return db.Where("id = ?", versionID).Delete(&models.AssetVersion{}).Error
}

func (r *Repository) AnnotationsFor(ctx context.Context, versionID uuid.UUID) ([]models.Annotation, error) {
	out := []models.Annotation{}
	err := r.DB(ctx).
		Where("version_id = ?", versionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}
