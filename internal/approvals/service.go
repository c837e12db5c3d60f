// Package approvals runs the per-asset sign-off chain. Every step moves from
// pending to a terminal status on its own; steps may be decided in any order.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
)

const (
	maxRoleLabelLength = 120
	maxNoteLength      = 4000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type Service interface {
	AddStep(ctx context.Context, p authz.Principal, input AddStepInput) (*models.ApprovalStep, error)
	ListSteps(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.ApprovalStep, error)
	Decide(ctx context.Context, p authz.Principal, input DecideInput) (*models.ApprovalStep, error)
	Reset(ctx context.Context, p authz.Principal, stepID uuid.UUID) (*models.ApprovalStep, error)
	Notify(ctx context.Context, p authz.Principal, stepID uuid.UUID) error
	DeleteStep(ctx context.Context, p authz.Principal, stepID uuid.UUID) error
	State(ctx context.Context, p authz.Principal, assetID uuid.UUID) (enums.ApprovalState, error)
}

// AddStepInput needs at least one of AssigneeID or AssigneeEmail; the email
// form covers approvers outside the team.
type AddStepInput struct {
	AssetID       uuid.UUID
	RoleLabel     string
	AssigneeID    *uuid.UUID
	AssigneeEmail *string
}

type DecideInput struct {
	StepID uuid.UUID
	Status enums.ApprovalStatus
	Note   *string
}

type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Authz     authorizer
	Outbox    outbox.Emitter
	Mailer    sendgrid.Sender
	Metrics   *metrics.ReviewMetrics
	Logger    *logger.Logger
	PublicURL string
}

type service struct {
	repo      *Repository
	tx        txRunner
	authz     authorizer
	outbox    outbox.Emitter
	mailer    sendgrid.Sender
	metrics   *metrics.ReviewMetrics
	logg      *logger.Logger
	publicURL string
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("approvals repository required")
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
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		authz:     params.Authz,
		outbox:    params.Outbox,
		mailer:    params.Mailer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		now:       db.UTCNow,
	}, nil
}

func (s *service) AddStep(ctx context.Context, p authz.Principal, input AddStepInput) (*models.ApprovalStep, error) {
	label := strings.TrimSpace(input.RoleLabel)
	if label == "" || len(label) > maxRoleLabelLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role label is required and must be short")
	}
	var email *string
	if input.AssigneeEmail != nil && strings.TrimSpace(*input.AssigneeEmail) != "" {
		addr, err := mail.ParseAddress(strings.TrimSpace(*input.AssigneeEmail))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignee email is invalid")
		}
		normalized := strings.ToLower(addr.Address)
		email = &normalized
	}
	if input.AssigneeID == nil && email == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "an assignee user or email is required")
	}

	decision, err := s.authz.Require(ctx, p, authz.AssetRef(input.AssetID), permissions.ApprovalManage)
	if err != nil {
		return nil, err
	}
	if input.AssigneeID != nil {
		member, err := s.repo.IsMember(ctx, decision.TeamID, *input.AssigneeID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check assignee")
		}
		if !member {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignee is not a member of this team")
		}
	}

	step := &models.ApprovalStep{
		AssetID:       input.AssetID,
		RoleLabel:     label,
		AssigneeID:    input.AssigneeID,
		AssigneeEmail: email,
		Status:        enums.ApprovalStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		asset, err := r.FindAsset(ctx, input.AssetID)
		if err != nil {
			return mapNotFound(err, "asset not found", "load asset")
		}
		step.Sequence, err = r.NextSequence(ctx, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute sequence")
		}
		if err := r.Create(ctx, step); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create approval step")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionApprovalStepAdded,
			ProjectID: decision.ProjectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"stepId": step.ID, "roleLabel": label, "sequence": step.Sequence},
		}); err != nil {
			return err
		}
		if step.AssigneeID == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventApprovalRequested,
			AggregateType: enums.AggregateApprovalStep,
			AggregateID:   step.ID,
			Actor:         actorRef(p),
			Data: payloads.ApprovalRequestedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ProjectID:       decision.ProjectID,
					AssetID:         &asset.ID,
					ActorID:         actorID(p),
					ActorLabel:      p.Label(),
					Title:           fmt.Sprintf("Approval requested: %s", asset.Title),
					Message:         fmt.Sprintf("You were added as the %s approver for %s.", label, asset.Title),
					AffectedUserIDs: []uuid.UUID{*step.AssigneeID},
				},
				StepID:        step.ID,
				AssigneeID:    step.AssigneeID,
				AssigneeEmail: step.AssigneeEmail,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

func (s *service) ListSteps(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.ApprovalStep, error) {
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.AssetView); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approval steps")
	}
	return rows, nil
}

// Decide records a terminal status on a pending step. The assignee may always
// decide their own step; anyone else needs approval.decide, which for guests
// comes from an approve-level link on the same asset.
func (s *service) Decide(ctx context.Context, p authz.Principal, input DecideInput) (*models.ApprovalStep, error) {
	if !input.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved, rejected or changes_requested")
	}
	var note *string
	if input.Note != nil {
		trimmed := strings.TrimSpace(*input.Note)
		if len(trimmed) > maxNoteLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision note is too long")
		}
		if trimmed != "" {
			note = &trimmed
		}
	}
	step, err := s.load(ctx, input.StepID)
	if err != nil {
		return nil, err
	}
	decision, err := s.authorizeDecider(ctx, p, step)
	if err != nil {
		return nil, err
	}

	var state enums.ApprovalState
	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		moved, err := r.Decide(ctx, step.ID, input.Status, p.Label(), note, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide approval step")
		}
		if !moved {
			if _, err := r.FindByID(ctx, step.ID); err != nil {
				return mapNotFound(err, "approval step not found", "reload approval step")
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "approval step was already decided; reset it first")
		}
		siblings, err := r.ListByAsset(ctx, step.AssetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval chain")
		}
		state = DeriveState(siblings)
		asset, err := r.FindAsset(ctx, step.AssetID)
		if err != nil {
			return mapNotFound(err, "asset not found", "load asset")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionApprovalDecided,
			ProjectID: decision.ProjectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"stepId": step.ID, "status": input.Status, "state": state},
		}); err != nil {
			return err
		}
		audience, err := repo.AudienceFor(ctx, tx, decision.ProjectID, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve audience")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventApprovalDecided,
			AggregateType: enums.AggregateApprovalStep,
			AggregateID:   step.ID,
			Actor:         actorRef(p),
			Data: payloads.ApprovalDecidedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ProjectID:       decision.ProjectID,
					AssetID:         &asset.ID,
					ActorID:         actorID(p),
					ActorLabel:      p.Label(),
					Title:           fmt.Sprintf("%s: %s", step.RoleLabel, statusText(input.Status)),
					Message:         fmt.Sprintf("%s is now %s.", asset.Title, strings.ReplaceAll(string(state), "_", " ")),
					AffectedUserIDs: audience,
				},
				StepID: step.ID,
				Status: input.Status,
				State:  state,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ApprovalDecided(string(input.Status))
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"step_id":  step.ID.String(),
			"asset_id": step.AssetID.String(),
			"status":   string(input.Status),
			"state":    string(state),
		}), "approval step decided")
	}
	label := p.Label()
	step.Status = input.Status
	step.DecidedBy = &label
	step.DecidedAt = &now
	step.DecisionNote = note
	step.UpdatedAt = now
	return step, nil
}

func (s *service) authorizeDecider(ctx context.Context, p authz.Principal, step *models.ApprovalStep) (authz.Decision, error) {
	ref := authz.AssetRef(step.AssetID)
	if p.IsUser() && step.AssigneeID != nil && *step.AssigneeID == p.UserID {
		return s.authz.Require(ctx, p, ref, permissions.AssetView)
	}
	return s.authz.Require(ctx, p, ref, permissions.ApprovalDecide)
}

// Reset returns a decided step to pending. Resetting a pending step is a no-op.
func (s *service) Reset(ctx context.Context, p authz.Principal, stepID uuid.UUID) (*models.ApprovalStep, error) {
	step, err := s.load(ctx, stepID)
	if err != nil {
		return nil, err
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(step.AssetID), permissions.ApprovalManage)
	if err != nil {
		return nil, err
	}
	if step.Status == enums.ApprovalStatusPending {
		return step, nil
	}

	now := s.now()
	previous := step.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).Reset(ctx, step.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset approval step")
		}
		if !moved {
			return nil
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionApprovalReset,
			ProjectID: decision.ProjectID,
			AssetID:   &step.AssetID,
			Details:   map[string]any{"stepId": step.ID, "previousStatus": previous},
		})
	})
	if err != nil {
		return nil, err
	}
	step.Status = enums.ApprovalStatusPending
	step.DecidedBy = nil
	step.DecidedAt = nil
	step.DecisionNote = nil
	step.UpdatedAt = now
	return step, nil
}

// Notify emails the assignee a nudge. Every call sends and logs again.
func (s *service) Notify(ctx context.Context, p authz.Principal, stepID uuid.UUID) error {
	step, err := s.load(ctx, stepID)
	if err != nil {
		return err
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(step.AssetID), permissions.ApprovalNotify)
	if err != nil {
		return err
	}
	asset, err := s.repo.FindAsset(ctx, step.AssetID)
	if err != nil {
		return mapNotFound(err, "asset not found", "load asset")
	}

	to, name, err := s.recipient(ctx, step)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your approval is needed: %s", asset.Title)
	if err := s.mailer.Send(ctx, to, subject, s.nudgeBody(name, step, asset)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "send approval reminder")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionApprovalNotified,
			ProjectID: decision.ProjectID,
			AssetID:   &step.AssetID,
			Details:   map[string]any{"stepId": step.ID, "recipient": to},
		})
	})
}

func (s *service) recipient(ctx context.Context, step *models.ApprovalStep) (string, string, error) {
	if step.AssigneeID != nil {
		user, err := s.repo.FindUser(ctx, *step.AssigneeID)
		if err == nil {
			return user.Email, user.Name, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignee")
		}
	}
	if step.AssigneeEmail != nil {
		return *step.AssigneeEmail, "", nil
	}
	return "", "", pkgerrors.New(pkgerrors.CodeValidation, "approval step has no reachable assignee")
}

func (s *service) nudgeBody(name string, step *models.ApprovalStep, asset *models.Asset) string {
	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", html.EscapeString(name))
	}
	link := fmt.Sprintf("%s/assets/%s", s.publicURL, asset.ID)
	return fmt.Sprintf(
		"<p>%s</p><p>%s is waiting on your <strong>%s</strong> approval.</p><p><a href=\"%s\">Open the review</a></p>",
		greeting, html.EscapeString(asset.Title), html.EscapeString(step.RoleLabel), link,
	)
}

func (s *service) DeleteStep(ctx context.Context, p authz.Principal, stepID uuid.UUID) error {
	step, err := s.load(ctx, stepID)
	if err != nil {
		return err
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(step.AssetID), permissions.ApprovalManage)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Delete(ctx, step.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete approval step")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionApprovalStepDeleted,
			ProjectID: decision.ProjectID,
			AssetID:   &step.AssetID,
			Details:   map[string]any{"stepId": step.ID, "roleLabel": step.RoleLabel},
		})
	})
}

func (s *service) State(ctx context.Context, p authz.Principal, assetID uuid.UUID) (enums.ApprovalState, error) {
	steps, err := s.ListSteps(ctx, p, assetID)
	if err != nil {
		return "", err
	}
	return DeriveState(steps), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.ApprovalStep, error) {
	step, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "approval step not found", "load approval step")
	}
	return step, nil
}

func statusText(status enums.ApprovalStatus) string {
	switch status {
	case enums.ApprovalStatusApproved:
		return "approved"
	case enums.ApprovalStatusRejected:
		return "rejected"
	case enums.ApprovalStatusChangesRequested:
		return "changes requested"
	default:
		return string(status)
	}
}

func actorID(p authz.Principal) *uuid.UUID {
	if !p.IsUser() {
		return nil
	}
	id := p.UserID
	return &id
}

func actorRef(p authz.Principal) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actorID(p), Label: p.Label()}
}

func mapNotFound(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
