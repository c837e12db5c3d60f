package assets

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/pagination"
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

func (r *Repository) Create(ctx context.Context, asset *models.Asset) error {
	return r.DB(ctx).Create(asset).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	if err := r.DB(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListByProject returns one cursor page, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID, params pagination.Params) ([]models.Asset, error) {
	q, err := pagination.ApplyDesc(r.DB(ctx).Where("project_id = ?", projectID), params)
	if err != nil {
		return nil, err
	}
	var rows []models.Asset
	return rows, q.Find(&rows).Error
}

func (r *Repository) ApprovalSteps(ctx context.Context, assetID uuid.UUID) ([]models.ApprovalStep, error) {
	var steps []models.ApprovalStep
	err := r.DB(ctx).Where("asset_id = ?", assetID).Order("sequence ASC").Find(&steps).Error
	return steps, err
}

func (r *Repository) LatestVersion(ctx context.Context, assetID uuid.UUID) (*models.AssetVersion, error) {
	var version models.AssetVersion
	err := r.DB(ctx).
		Where("asset_id = ?", assetID).
		Order("version_number DESC").
		First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *Repository) IsWatching(ctx context.Context, assetID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.AssetWatcher{}).
		Where("asset_id = ? AND user_id = ?", assetID, userID).
		Count(&count).Error
	return count > 0, err
}
