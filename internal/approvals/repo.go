package approvals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
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

func (r *Repository) FindAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	if err := r.DB(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.TeamMembership{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Select("id", "email", "name").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) NextSequence(ctx context.Context, assetID uuid.UUID) (int, error) {
	var highest int
	err := r.DB(ctx).Model(&models.ApprovalStep{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("asset_id = ?", assetID).
		Row().Scan(&highest)
	return highest + 1, err
}

func (r *Repository) Create(ctx context.Context, step *models.ApprovalStep) error {
	return r.DB(ctx).Create(step).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ApprovalStep, error) {
	var step models.ApprovalStep
	if err := r.DB(ctx).First(&step, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *Repository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]models.ApprovalStep, error) {
	out := []models.ApprovalStep{}
	err := r.DB(ctx).
		Where("asset_id = ?", assetID).
		Order("sequence ASC").
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// Decide moves a pending step to status. It reports false when the step was
// no longer pending, which is how concurrent deciders are told apart.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status enums.ApprovalStatus, decidedBy string, note *string, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.ApprovalStep{}).
		Where("id = ? AND status = ?", id, enums.ApprovalStatusPending).
		Updates(map[string]any{
			"status":        status,
			"decided_by":    decidedBy,
			"decided_at":    at,
			"decision_note": note,
			"updated_at":    at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) Reset(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.ApprovalStep{}).
		Where("id = ? AND status <> ?", id, enums.ApprovalStatusPending).
		Updates(map[string]any{
			"status":        enums.ApprovalStatusPending,
			"decided_by":    nil,
			"decided_at":    nil,
			"decision_note": nil,
			"updated_at":    at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.ApprovalStep{}).Error
}
