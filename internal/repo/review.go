package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

// TouchProject bumps projects.updated_at after any child mutation.
func TouchProject(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, now time.Time) error {
	return tx.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", projectID).
		UpdateColumn("updated_at", now).Error
}

// Watch subscribes userID to assetID. Watching twice is a no-op.
func Watch(ctx context.Context, tx *gorm.DB, assetID, userID uuid.UUID) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.AssetWatcher{AssetID: assetID, UserID: userID}).Error
}

func Unwatch(ctx context.Context, tx *gorm.DB, assetID, userID uuid.UUID) error {
	return tx.WithContext(ctx).
		Where("asset_id = ? AND user_id = ?", assetID, userID).
		Delete(&models.AssetWatcher{}).Error
}

// AudienceFor returns the project owner followed by the asset's watchers,
// without duplicates. Callers hand it to the notification fan-out.
func AudienceFor(ctx context.Context, tx *gorm.DB, projectID, assetID uuid.UUID) ([]uuid.UUID, error) {
	var owner models.Project
	if err := tx.WithContext(ctx).Select("id", "owner_id").First(&owner, "id = ?", projectID).Error; err != nil {
		return nil, err
	}
	var watchers []uuid.UUID
	if assetID != uuid.Nil {
		if err := tx.WithContext(ctx).
			Model(&models.AssetWatcher{}).
			Where("asset_id = ?", assetID).
			Order("created_at ASC").
			Pluck("user_id", &watchers).Error; err != nil {
			return nil, err
		}
	}
	return Dedupe(append([]uuid.UUID{owner.OwnerID}, watchers...)), nil
}

// Dedupe drops nil and repeated ids, keeping first-seen order.
func Dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// PurgeComments hard deletes the given comments along with their reactions,
// attachments and linked annotations.
func PurgeComments(ctx context.Context, tx *gorm.DB, commentIDs []uuid.UUID) error {
	if len(commentIDs) == 0 {
		return nil
	}
	db := tx.WithContext(ctx)
	if err := db.Where("comment_id IN ?", commentIDs).Delete(&models.CommentReaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("comment_id IN ?", commentIDs).Delete(&models.CommentAttachment{}).Error; err != nil {
		return err
	}
	if err := db.Where("comment_id IN ?", commentIDs).Delete(&models.Annotation{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", commentIDs).Delete(&models.Comment{}).Error
}

// PurgeAsset removes an asset and everything hanging off it. Activity and
// delivered notifications are history and stay.
func PurgeAsset(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error {
	db := tx.WithContext(ctx)

	var commentIDs []uuid.UUID
	if err := db.Model(&models.Comment{}).Where("asset_id = ?", assetID).Pluck("id", &commentIDs).Error; err != nil {
		return err
	}
	if err := PurgeComments(ctx, tx, commentIDs); err != nil {
		return err
	}

	versions := db.Model(&models.AssetVersion{}).Select("id").Where("asset_id = ?", assetID)
	if err := db.Where("version_id IN (?)", versions).Delete(&models.Annotation{}).Error; err != nil {
		return err
	}
	if err := db.Where("asset_id = ?", assetID).Delete(&models.AssetVersion{}).Error; err != nil {
		return err
	}

	invites := db.Model(&models.ReviewInvite{}).Select("id").Where("asset_id = ?", assetID)
	if err := db.Where("invite_id IN (?)", invites).Delete(&models.ReviewView{}).Error; err != nil {
		return err
	}
	for _, model := range []any{&models.ReviewInvite{}, &models.ApprovalStep{}, &models.AssetWatcher{}} {
		if err := db.Where("asset_id = ?", assetID).Delete(model).Error; err != nil {
			return err
		}
	}
	return db.Where("id = ?", assetID).Delete(&models.Asset{}).Error
}
