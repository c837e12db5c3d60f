// Package activity appends and lists the per-project audit trail. Entries are
// written inside the same transaction as the mutation they describe.
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/pagination"
)

// Action names what happened.
type Action string

const (
	ActionAssetCreated        Action = "asset.created"
	ActionAssetDeleted        Action = "asset.deleted"
	ActionVersionUploaded     Action = "version.uploaded"
	ActionVersionDeleted      Action = "version.deleted"
	ActionCommentAdded        Action = "comment.added"
	ActionCommentResolved     Action = "comment.resolved"
	ActionCommentReopened     Action = "comment.reopened"
	ActionCommentDeleted      Action = "comment.deleted"
	ActionAnnotationAdded     Action = "annotation.added"
	ActionAnnotationDeleted   Action = "annotation.deleted"
	ActionApprovalStepAdded   Action = "approval.step_added"
	ActionApprovalDecided     Action = "approval.decided"
	ActionApprovalReset       Action = "approval.reset"
	ActionApprovalNotified    Action = "approval.notified"
	ActionApprovalStepDeleted Action = "approval.step_deleted"
	ActionShareIssued         Action = "share.issued"
	ActionShareRevoked        Action = "share.revoked"
	ActionShareViewed         Action = "share.viewed"
	ActionProjectCreated      Action = "project.created"
	ActionProjectUpdated      Action = "project.updated"
	ActionSummaryGenerated    Action = "summary.generated"
)

// Entry is one audit record before it is persisted.
type Entry struct {
	Actor     authz.Principal
	Action    Action
	ProjectID uuid.UUID
	AssetID   *uuid.UUID
	Details   map[string]any
}

// Append writes entry with the caller's transaction.
func Append(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if entry.ProjectID == uuid.Nil {
		return fmt.Errorf("activity entry requires a project")
	}
	row := models.ActivityLogEntry{
		ActorLabel: entry.Actor.Label(),
		Action:     string(entry.Action),
		ProjectID:  entry.ProjectID,
		AssetID:    entry.AssetID,
	}
	if entry.Actor.IsUser() {
		id := entry.Actor.UserID
		row.ActorID = &id
	}
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode activity details: %w", err)
		}
		row.Details = datatypes.JSON(raw)
	}
	return tx.WithContext(ctx).Create(&row).Error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

// Service lists a project's activity feed.
type Service interface {
	List(ctx context.Context, p authz.Principal, projectID uuid.UUID, params pagination.Params) (pagination.Page[models.ActivityLogEntry], error)
}

type service struct {
	db    *gorm.DB
	authz authorizer
}

func NewService(db *gorm.DB, authz authorizer) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "activity database required")
	}
	if authz == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "authorizer required")
	}
	return &service{db: db, authz: authz}, nil
}

func (s *service) List(ctx context.Context, p authz.Principal, projectID uuid.UUID, params pagination.Params) (pagination.Page[models.ActivityLogEntry], error) {
	if _, err := s.authz.Require(ctx, p, authz.ProjectRef(projectID), permissions.ActivityView); err != nil {
		return pagination.Page[models.ActivityLogEntry]{}, err
	}
	query, err := pagination.ApplyDesc(s.db.WithContext(ctx).Where("project_id = ?", projectID), params)
	if err != nil {
		return pagination.Page[models.ActivityLogEntry]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.ActivityLogEntry
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.ActivityLogEntry]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity")
	}
	return pagination.Finish(rows, params.Limit, func(e models.ActivityLogEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	}), nil
}
