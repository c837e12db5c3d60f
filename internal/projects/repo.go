package projects

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

func (r *Repository) Create(ctx context.Context, project *models.Project) error {
	return r.DB(ctx).Create(project).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.DB(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// ListByTeam returns the team's projects, most recently active first.
func (r *Repository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Project, error) {
	var out []models.Project
	err := r.DB(ctx).
		Where("team_id = ?", teamID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) AssetIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).Model(&models.Asset{}).Where("project_id = ?", projectID).Pluck("id", &ids).Error
	return ids, err
}

// Delete removes the project row along with its activity trail.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.DB(ctx).Where("project_id = ?", id).Delete(&models.ActivityLogEntry{}).Error; err != nil {
		return err
	}
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Project{}).Error
}
