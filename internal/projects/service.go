// Package projects groups assets under a team.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

const maxNameLength = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type Service interface {
	Create(ctx context.Context, p authz.Principal, teamID uuid.UUID, input CreateInput) (*models.Project, error)
	List(ctx context.Context, p authz.Principal, teamID uuid.UUID) ([]models.Project, error)
	Get(ctx context.Context, p authz.Principal, projectID uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, p authz.Principal, projectID uuid.UUID, input UpdateInput) (*models.Project, error)
	Delete(ctx context.Context, p authz.Principal, projectID uuid.UUID) error
}

type CreateInput struct {
	Name        string
	Description *string
}

// UpdateInput carries optional changes; nil fields are left alone.
type UpdateInput struct {
	Name        *string
	Description *string
}

type service struct {
	repo  *Repository
	tx    txRunner
	authz authorizer
}

func NewService(repo *Repository, tx txRunner, authz authorizer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("projects repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	return &service{repo: repo, tx: tx, authz: authz}, nil
}

func (s *service) Create(ctx context.Context, p authz.Principal, teamID uuid.UUID, input CreateInput) (*models.Project, error) {
	name, err := validName(input.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.Require(ctx, p, authz.TeamRef(teamID), permissions.ProjectCreate); err != nil {
		return nil, err
	}

	project := &models.Project{
		TeamID:      teamID,
		OwnerID:     p.UserID,
		Name:        name,
		Description: trimmed(input.Description),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, project); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionProjectCreated,
			ProjectID: project.ID,
			Details:   map[string]any{"name": project.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *service) List(ctx context.Context, p authz.Principal, teamID uuid.UUID) ([]models.Project, error) {
	if _, err := s.authz.Require(ctx, p, authz.TeamRef(teamID), permissions.ProjectView); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list projects")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, p authz.Principal, projectID uuid.UUID) (*models.Project, error) {
	if _, err := s.authz.Require(ctx, p, authz.ProjectRef(projectID), permissions.ProjectView); err != nil {
		return nil, err
	}
	return s.load(ctx, s.repo, projectID)
}

func (s *service) Update(ctx context.Context, p authz.Principal, projectID uuid.UUID, input UpdateInput) (*models.Project, error) {
	if _, err := s.authz.Require(ctx, p, authz.ProjectRef(projectID), permissions.ProjectUpdate); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if input.Name != nil {
		name, err := validName(*input.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = trimmed(input.Description)
	}
	if len(updates) == 0 {
		return s.load(ctx, s.repo, projectID)
	}

	var project *models.Project
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, projectID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionProjectUpdated,
			ProjectID: projectID,
			Details:   updates,
		}); err != nil {
			return err
		}
		var err error
		project, err = s.load(ctx, repo, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Delete removes the project and every asset in it.
func (s *service) Delete(ctx context.Context, p authz.Principal, projectID uuid.UUID) error {
	if _, err := s.authz.Require(ctx, p, authz.ProjectRef(projectID), permissions.ProjectDelete); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		assetIDs, err := r.AssetIDs(ctx, projectID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list project assets")
		}
		for _, id := range assetIDs {
			if err := repo.PurgeAsset(ctx, tx, id); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete asset")
			}
		}
		if err := r.Delete(ctx, projectID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete project")
		}
		return nil
	})
}

func (s *service) load(ctx context.Context, r *Repository, id uuid.UUID) (*models.Project, error) {
	project, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	return project, nil
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(name) > maxNameLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is too long")
	}
	return name, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
