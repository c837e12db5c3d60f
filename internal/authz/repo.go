package authz

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

// Repository performs the live lookups authorization depends on. Nothing here
// is cached; every call reads current state.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMembership, error) {
	var m models.TeamMembership
	if err := r.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := r.db.WithContext(ctx).Select("id", "team_id", "owner_id").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) FindAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var a models.Asset
	if err := r.db.WithContext(ctx).Select("id", "project_id").First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) FindInviteByToken(ctx context.Context, token string) (*models.ReviewInvite, error) {
	var invite models.ReviewInvite
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&invite).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}
