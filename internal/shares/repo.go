package shares

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

const recentViewLimit = 20

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

func (r *Repository) Create(ctx context.Context, invite *models.ReviewInvite) error {
	return r.DB(ctx).Create(invite).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReviewInvite, error) {
	var invite models.ReviewInvite
	if err := r.DB(ctx).First(&invite, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *Repository) FindByToken(ctx context.Context, token string) (*models.ReviewInvite, error) {
	var invite models.ReviewInvite
	if err := r.DB(ctx).Where("token = ?", token).First(&invite).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *Repository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]models.ReviewInvite, error) {
	out := []models.ReviewInvite{}
	err := r.DB(ctx).
		Where("asset_id = ?", assetID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// Revoke pushes expires_at into the past. Already revoked rows are left alone.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.ReviewInvite{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{
			"expires_at": at.Add(-time.Second),
			"revoked_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) InsertView(ctx context.Context, view *models.ReviewView) error {
	return r.DB(ctx).Create(view).Error
}

// BumpViews increments the counter in SQL and returns the new total.
func (r *Repository) BumpViews(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	err := r.DB(ctx).Model(&models.ReviewInvite{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"view_count":     gorm.Expr("view_count + 1"),
			"last_viewed_at": at,
		}).Error
	if err != nil {
		return 0, err
	}
	var count int64
	err = r.DB(ctx).Model(&models.ReviewInvite{}).
		Select("view_count").
		Where("id = ?", id).
		Row().Scan(&count)
	return count, err
}

// ViewTotals aggregates the analytics rows of one invite.
type ViewTotals struct {
	Views           int64
	DurationSeconds int64
	UniqueViewers   int64
}

func (r *Repository) Totals(ctx context.Context, inviteID uuid.UUID) (ViewTotals, error) {
	var totals ViewTotals
	err := r.DB(ctx).Model(&models.ReviewView{}).
		Select("COUNT(*), COALESCE(SUM(duration_seconds), 0), COUNT(DISTINCT viewer_ip_hash)").
		Where("invite_id = ?", inviteID).
		Row().Scan(&totals.Views, &totals.DurationSeconds, &totals.UniqueViewers)
	return totals, err
}

func (r *Repository) RecentViews(ctx context.Context, inviteID uuid.UUID) ([]models.ReviewView, error) {
	out := []models.ReviewView{}
	err := r.DB(ctx).
		Where("invite_id = ?", inviteID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(recentViewLimit).
		Find(&out).Error
	return out, err
}
