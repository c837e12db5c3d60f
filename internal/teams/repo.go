package teams

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Repository exposes team and membership persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) CreateTeam(ctx context.Context, team *models.Team) error {
	return r.DB(ctx).Create(team).Error
}

func (r *Repository) FindTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	var team models.Team
	if err := r.DB(ctx).First(&team, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// ListUserTeams returns the teams a user belongs to along with their role.
func (r *Repository) ListUserTeams(ctx context.Context, userID uuid.UUID) ([]TeamWithRole, error) {
	var rows []teamWithRoleRow
	err := r.DB(ctx).
		Model(&models.TeamMembership{}).
		Select("teams.id AS team_id, teams.name AS team_name, team_memberships.role AS role, team_memberships.created_at AS joined_at").
		Joins("JOIN teams ON teams.id = team_memberships.team_id").
		Where("team_memberships.user_id = ?", userID).
		Order("teams.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return teamRowsToDTO(rows), nil
}

// ListMembers returns every member of a team with their user profile.
func (r *Repository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	var rows []memberRow
	err := r.DB(ctx).
		Model(&models.TeamMembership{}).
		Select("team_memberships.user_id AS user_id, users.email AS email, users.name AS name, team_memberships.role AS role, team_memberships.created_at AS joined_at").
		Joins("JOIN users ON users.id = team_memberships.user_id").
		Where("team_memberships.team_id = ?", teamID).
		Order("team_memberships.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return memberRowsToDTO(rows), nil
}

// GetMembership retrieves a membership by team and user.
func (r *Repository) GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMembership, error) {
	var membership models.TeamMembership
	err := r.DB(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// UpsertMembership inserts the membership or overwrites the role of the
// existing (team, user) row. Last write wins.
func (r *Repository) UpsertMembership(ctx context.Context, membership *models.TeamMembership) error {
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "invited_by_user_id", "updated_at"}),
		}).
		Create(membership).Error
}

func (r *Repository) DeleteMembership(ctx context.Context, teamID, userID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&models.TeamMembership{})
	return res.RowsAffected, res.Error
}

func (r *Repository) CountOwners(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.TeamMembership{}).
		Where("team_id = ? AND role = ?", teamID, enums.MemberRoleOwner).
		Count(&count).Error
	return count, err
}
