// Package authz answers "may this principal perform this action on this
// resource" for both team members and share-token guests.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

type store interface {
	FindMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMembership, error)
	FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	FindAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	FindInviteByToken(ctx context.Context, token string) (*models.ReviewInvite, error)
}

// Authorizer is the contract domain services depend on.
type Authorizer interface {
	Authorize(ctx context.Context, p Principal, ref Ref, action permissions.Action) Decision
}

type Service struct {
	store store
	now   func() time.Time
}

func NewService(s store) (*Service, error) {
	if s == nil {
		return nil, fmt.Errorf("authz store required")
	}
	return &Service{store: s, now: time.Now}, nil
}

// Authorize evaluates a single request. Results are never cached because
// roles and tokens can change between requests.
func (s *Service) Authorize(ctx context.Context, p Principal, ref Ref, action permissions.Action) Decision {
	switch {
	case p.IsUser():
		return s.authorizeUser(ctx, p.UserID, ref, action)
	case p.IsGuest():
		return s.authorizeGuest(ctx, p.ShareToken, ref, action)
	default:
		return deny(ReasonUnauthenticated)
	}
}

// Require is Authorize returning the mapped error on denial.
func (s *Service) Require(ctx context.Context, p Principal, ref Ref, action permissions.Action) (Decision, error) {
	d := s.Authorize(ctx, p, ref, action)
	return d, d.Err()
}

func (s *Service) authorizeUser(ctx context.Context, userID uuid.UUID, ref Ref, action permissions.Action) Decision {
	scope, denial, ok := s.resolveChain(ctx, ref)
	if !ok {
		return denial
	}
	if scope.TeamID == uuid.Nil {
		return deny(ReasonOutOfScope)
	}

	membership, err := s.store.FindMembership(ctx, scope.TeamID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deny(ReasonNotMember)
		}
		return lookupFailed(err)
	}
	if !permissions.Allows(membership.Role, action) {
		d := deny(ReasonInsufficientRole)
		d.Role = membership.Role
		return d
	}

	scope.Allowed = true
	scope.Role = membership.Role
	return scope
}

func (s *Service) authorizeGuest(ctx context.Context, token string, ref Ref, action permissions.Action) Decision {
	invite, err := s.store.FindInviteByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deny(ReasonInvalidToken)
		}
		return lookupFailed(err)
	}
	if invite.ExpiredAt(s.now()) {
		return deny(ReasonExpired)
	}

	if ref.AssetID != uuid.Nil && ref.AssetID != invite.AssetID {
		return deny(ReasonOutOfScope)
	}
	scopeRef := ref
	scopeRef.AssetID = invite.AssetID
	scope, denial, ok := s.resolveChain(ctx, scopeRef)
	if !ok {
		return denial
	}

	if !permissions.AllowsAsGuest(invite.Permission, action) {
		d := deny(ReasonInsufficientPermission)
		d.Permission = invite.Permission
		return d
	}

	scope.Allowed = true
	scope.Permission = invite.Permission
	scope.Invite = &InviteGrant{ID: invite.ID, AssetID: invite.AssetID, Permission: invite.Permission}
	return scope
}

// resolveChain walks asset -> project -> team and checks every id the caller
// supplied belongs to the same chain.
func (s *Service) resolveChain(ctx context.Context, ref Ref) (Decision, Decision, bool) {
	if ref.empty() {
		return Decision{}, deny(ReasonOutOfScope), false
	}
	scope := Decision{TeamID: ref.TeamID, ProjectID: ref.ProjectID, AssetID: ref.AssetID}

	if ref.AssetID != uuid.Nil {
		asset, err := s.store.FindAsset(ctx, ref.AssetID)
		if err != nil {
			return Decision{}, notFoundOrFailed(err), false
		}
		if scope.ProjectID != uuid.Nil && scope.ProjectID != asset.ProjectID {
			return Decision{}, deny(ReasonOutOfScope), false
		}
		scope.ProjectID = asset.ProjectID
	}

	if scope.ProjectID != uuid.Nil {
		project, err := s.store.FindProject(ctx, scope.ProjectID)
		if err != nil {
			return Decision{}, notFoundOrFailed(err), false
		}
		if scope.TeamID != uuid.Nil && scope.TeamID != project.TeamID {
			return Decision{}, deny(ReasonOutOfScope), false
		}
		scope.TeamID = project.TeamID
	}

	return scope, Decision{}, true
}

func notFoundOrFailed(err error) Decision {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return deny(ReasonResourceNotFound)
	}
	return lookupFailed(err)
}
