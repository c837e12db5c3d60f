// Package teams manages teams and the role each member holds in them.
package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/users"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type userLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service exposes team creation and roster management.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, name string) (*models.Team, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]TeamWithRole, error)
	ListMembers(ctx context.Context, p authz.Principal, teamID uuid.UUID) ([]Member, error)
	SetMember(ctx context.Context, p authz.Principal, teamID uuid.UUID, input SetMemberInput) (*models.TeamMembership, error)
	RemoveMember(ctx context.Context, p authz.Principal, teamID, userID uuid.UUID) error
}

// SetMemberInput adds a user (by email) or changes their role.
type SetMemberInput struct {
	Email string
	Role  enums.MemberRole
}

type ServiceParams struct {
	Repo   *Repository
	Users  userLookup
	Tx     txRunner
	Authz  authorizer
	Outbox outbox.Emitter
}

type service struct {
	repo   *Repository
	users  userLookup
	tx     txRunner
	authz  authorizer
	outbox outbox.Emitter
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("teams repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:   params.Repo,
		users:  params.Users,
		tx:     params.Tx,
		authz:  params.Authz,
		outbox: params.Outbox,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, name string) (*models.Team, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "team name is required")
	}

	team := &models.Team{Name: name, CreatedBy: userID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTeam(ctx, team); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create team")
		}
		owner := &models.TeamMembership{TeamID: team.ID, UserID: userID, Role: enums.MemberRoleOwner}
		if err := repo.UpsertMembership(ctx, owner); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create owner membership")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]TeamWithRole, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, err := s.repo.ListUserTeams(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list teams")
	}
	return rows, nil
}

func (s *service) ListMembers(ctx context.Context, p authz.Principal, teamID uuid.UUID) ([]Member, error) {
	if _, err := s.authz.Require(ctx, p, authz.TeamRef(teamID), permissions.TeamView); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMembers(ctx, teamID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return rows, nil
}

// SetMember grants role to the user registered under input.Email. The actor
// cannot grant, or take away, more than they hold themselves.
func (s *service) SetMember(ctx context.Context, p authz.Principal, teamID uuid.UUID, input SetMemberInput) (*models.TeamMembership, error) {
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	email := users.NormalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	decision, err := s.authz.Require(ctx, p, authz.TeamRef(teamID), permissions.TeamManageMembers)
	if err != nil {
		return nil, err
	}
	if !permissions.IsAtLeast(decision.Role, input.Role) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot grant a role above your own")
	}

	target, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	inviter := p.UserID
	membership := &models.TeamMembership{
		TeamID:          teamID,
		UserID:          target.ID,
		Role:            input.Role,
		InvitedByUserID: &inviter,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetMembership(ctx, teamID, target.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup membership")
		}
		if existing != nil {
			if !permissions.IsAtLeast(decision.Role, existing.Role) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "cannot change the role of a more privileged member")
			}
			if existing.Role == enums.MemberRoleOwner && input.Role != enums.MemberRoleOwner {
				if err := ensureAnotherOwner(ctx, repo, teamID); err != nil {
					return err
				}
			}
		}
		if err := repo.UpsertMembership(ctx, membership); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save membership")
		}
		if existing != nil {
			return nil
		}

		team, err := repo.FindTeam(ctx, teamID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load team")
		}
		actor := p.UserID
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberAdded,
			AggregateType: enums.AggregateTeam,
			AggregateID:   teamID,
			Actor:         &outbox.ActorRef{UserID: &actor, Label: p.Label()},
			Data: payloads.MemberAddedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ActorID:         &actor,
					ActorLabel:      p.Label(),
					Title:           "Added to " + team.Name,
					Message:         fmt.Sprintf("You were added to %s as %s.", team.Name, input.Role),
					AffectedUserIDs: []uuid.UUID{target.ID},
				},
				TeamID: teamID,
				UserID: target.ID,
				Role:   input.Role,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.GetMembership(ctx, teamID, target.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload membership")
	}
	return stored, nil
}

// RemoveMember drops userID from the team. Members may always leave on their
// own; removing someone else needs team.manage_members and at least their role.
func (s *service) RemoveMember(ctx context.Context, p authz.Principal, teamID, userID uuid.UUID) error {
	self := p.IsUser() && p.UserID == userID
	action := permissions.TeamManageMembers
	if self {
		action = permissions.TeamView
	}
	decision, err := s.authz.Require(ctx, p, authz.TeamRef(teamID), action)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetMembership(ctx, teamID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup membership")
		}
		if !self && !permissions.IsAtLeast(decision.Role, existing.Role) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cannot remove a more privileged member")
		}
		if existing.Role == enums.MemberRoleOwner {
			if err := ensureAnotherOwner(ctx, repo, teamID); err != nil {
				return err
			}
		}
		if _, err := repo.DeleteMembership(ctx, teamID, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete membership")
		}
		return nil
	})
}

func ensureAnotherOwner(ctx context.Context, repo *Repository, teamID uuid.UUID) error {
	owners, err := repo.CountOwners(ctx, teamID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count owners")
	}
	if owners <= 1 {
		return pkgerrors.New(pkgerrors.CodeConflict, "a team must keep at least one owner")
	}
	return nil
}
