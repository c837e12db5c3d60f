package annotations

import (
	"context"

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

func (r *Repository) FindAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	if err := r.DB(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) FindVersion(ctx context.Context, id uuid.UUID) (*models.AssetVersion, error) {
	var v models.AssetVersion
	if err := r.DB(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.DB(ctx).Omit(clause.Associations).Create(comment).Error
}

func (r *Repository) FindComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var c models.Comment
	if err := r.DB(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) UpdateComment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Comment{}).Where("id = ?", id).Updates(updates).Error
}

// ListForAsset returns the whole thread oldest first, with reactions and
// attachments also oldest first.
func (r *Repository) ListForAsset(ctx context.Context, assetID uuid.UUID) ([]models.Comment, error) {
	out := []models.Comment{}
	err := r.DB(ctx).
		Preload("Reactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("asset_id = ?", assetID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// AddReaction is idempotent on (comment, reactor, emoji).
func (r *Repository) AddReaction(ctx context.Context, reaction *models.CommentReaction) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "comment_id"}, {Name: "reactor_key"}, {Name: "emoji"}},
			DoNothing: true,
		}).
		Create(reaction)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) RemoveReaction(ctx context.Context, commentID uuid.UUID, reactorKey, emoji string) (bool, error) {
	res := r.DB(ctx).
		Where("comment_id = ? AND reactor_key = ? AND emoji = ?", commentID, reactorKey, emoji).
		Delete(&models.CommentReaction{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) CreateAttachment(ctx context.Context, attachment *models.CommentAttachment) error {
	return r.DB(ctx).Create(attachment).Error
}

func (r *Repository) CreateAnnotation(ctx context.Context, annotation *models.Annotation) error {
	return r.DB(ctx).Create(annotation).Error
}

func (r *Repository) FindAnnotation(ctx context.Context, id uuid.UUID) (*models.Annotation, error) {
	var a models.Annotation
	if err := r.DB(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAnnotationPoints reports gorm.ErrRecordNotFound when the row is gone.
func (r *Repository) UpdateAnnotationPoints(ctx context.Context, annotation *models.Annotation) error {
	res := r.DB(ctx).Model(annotation).Select("points", "updated_at").Updates(annotation)
	if res.Error == nil && res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return res.Error
}

func (r *Repository) DeleteAnnotation(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Annotation{}).Error
}

func (r *Repository) ListAnnotations(ctx context.Context, versionID uuid.UUID) ([]models.Annotation, error) {
	out := []models.Annotation{}
	err := r.DB(ctx).
		Where("version_id = ?", versionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}
