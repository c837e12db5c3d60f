// Package annotations owns the review thread of an asset: comments, their
// reactions and attachments, and the shapes drawn on individual versions.
package annotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/realtime"
	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reviewhub-backend/pkg/storage/gcs"
)

const (
	maxBodyLength      = 10000
	maxGuestNameLength = 120
	maxEmojiBytes      = 32
	defaultGuestName   = "Guest"
)

// Realtime message types published on the asset's comments channel.
const (
	MessageCommentCreated    = "comment.created"
	MessageCommentUpdated    = "comment.updated"
	MessageCommentDeleted    = "comment.deleted"
	MessageReactionAdded     = "reaction.added"
	MessageReactionRemoved   = "reaction.removed"
	MessageAttachmentAdded   = "attachment.added"
	MessageAnnotationCreated = "annotation.created"
	MessageAnnotationUpdated = "annotation.updated"
	MessageAnnotationDeleted = "annotation.deleted"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type Service interface {
	AddComment(ctx context.Context, p authz.Principal, input AddCommentInput) (*models.Comment, error)
	ResolveComment(ctx context.Context, p authz.Principal, commentID uuid.UUID) (*models.Comment, error)
	ReopenComment(ctx context.Context, p authz.Principal, commentID uuid.UUID) (*models.Comment, error)
	DeleteComment(ctx context.Context, p authz.Principal, commentID uuid.UUID) error
	ListComments(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.Comment, error)

	AddReaction(ctx context.Context, p authz.Principal, commentID uuid.UUID, emoji string) (*models.CommentReaction, error)
	RemoveReaction(ctx context.Context, p authz.Principal, commentID uuid.UUID, emoji string) error
	AddAttachment(ctx context.Context, p authz.Principal, input AddAttachmentInput) (*models.CommentAttachment, error)

	AddAnnotation(ctx context.Context, p authz.Principal, input AddAnnotationInput) (*models.Annotation, error)
	UpdateAnnotationPosition(ctx context.Context, p authz.Principal, annotationID uuid.UUID, points []models.Point) (*models.Annotation, error)
	DeleteAnnotation(ctx context.Context, p authz.Principal, annotationID uuid.UUID) error
	ListAnnotations(ctx context.Context, p authz.Principal, versionID uuid.UUID) ([]models.Annotation, error)
}

type AddCommentInput struct {
	AssetID         uuid.UUID
	VersionID       *uuid.UUID
	Body            string
	TimecodeSeconds *float64
}

type AddAttachmentInput struct {
	CommentID   uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
}

type ServiceParams struct {
	Repo               *Repository
	Tx                 txRunner
	Authz              authorizer
	Outbox             outbox.Emitter
	Storage            gcs.Uploader
	Realtime           realtime.Publisher
	Metrics            *metrics.ReviewMetrics
	Logger             *logger.Logger
	MaxAttachmentBytes int64
}

type service struct {
	repo               *Repository
	tx                 txRunner
	authz              authorizer
	outbox             outbox.Emitter
	storage            gcs.Uploader
	realtime           realtime.Publisher
	metrics            *metrics.ReviewMetrics
	logg               *logger.Logger
	maxAttachmentBytes int64
	now                func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("annotations repository required")
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
	if params.Storage == nil {
		return nil, fmt.Errorf("storage uploader required")
	}
	if params.MaxAttachmentBytes <= 0 {
		return nil, fmt.Errorf("max attachment bytes must be positive")
	}
	pub := params.Realtime
	if pub == nil {
		pub = realtime.Noop{}
	}
	return &service{
		repo:               params.Repo,
		tx:                 params.Tx,
		authz:              params.Authz,
		outbox:             params.Outbox,
		storage:            params.Storage,
		realtime:           pub,
		metrics:            params.Metrics,
		logg:               params.Logger,
		maxAttachmentBytes: params.MaxAttachmentBytes,
		now:                db.UTCNow,
	}, nil
}

func (s *service) AddComment(ctx context.Context, p authz.Principal, input AddCommentInput) (*models.Comment, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body is required")
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body is too long")
	}
	if input.TimecodeSeconds != nil && *input.TimecodeSeconds < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "timecode must not be negative")
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(input.AssetID), permissions.CommentCreate)
	if err != nil {
		return nil, err
	}
	if input.VersionID != nil {
		if err := s.ensureVersionOf(ctx, *input.VersionID, input.AssetID); err != nil {
			return nil, err
		}
	}

	comment := &models.Comment{
		AssetID:         input.AssetID,
		VersionID:       input.VersionID,
		Body:            body,
		TimecodeSeconds: input.TimecodeSeconds,
		Status:          enums.CommentStatusOpen,
	}
	if p.IsUser() {
		authorID := p.UserID
		comment.AuthorID = &authorID
	} else {
		name, email := guestIdentity(p)
		comment.GuestName = &name
		if email != "" {
			comment.GuestEmail = &email
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		asset, err := r.FindAsset(ctx, input.AssetID)
		if err != nil {
			return mapNotFound(err, "asset not found", "load asset")
		}
		if err := r.CreateComment(ctx, comment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create comment")
		}
		if p.IsUser() {
			if err := repo.Watch(ctx, tx, asset.ID, p.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "watch asset")
			}
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionCommentAdded,
			ProjectID: decision.ProjectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"commentId": comment.ID},
		}); err != nil {
			return err
		}
		audience, err := repo.AudienceFor(ctx, tx, decision.ProjectID, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve audience")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommentAdded,
			AggregateType: enums.AggregateComment,
			AggregateID:   comment.ID,
			Actor:         actorRef(p),
			Data: payloads.CommentAddedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ProjectID:       decision.ProjectID,
					AssetID:         &asset.ID,
					ActorID:         comment.AuthorID,
					ActorLabel:      p.Label(),
					Title:           fmt.Sprintf("New comment on %s", asset.Title),
					Message:         excerpt(body),
					AffectedUserIDs: audience,
				},
				CommentID: comment.ID,
				VersionID: comment.VersionID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CommentCreated(string(p.Kind))
	comment.Reactions = []models.CommentReaction{}
	comment.Attachments = []models.CommentAttachment{}
	s.publish(ctx, input.AssetID, MessageCommentCreated, comment)
	return comment, nil
}

func (s *service) ResolveComment(ctx context.Context, p authz.Principal, commentID uuid.UUID) (*models.Comment, error) {
	comment, decision, err := s.loadComment(ctx, p, commentID, permissions.CommentResolve)
	if err != nil {
		return nil, err
	}
	if comment.Status == enums.CommentStatusResolved {
		return comment, nil
	}

	now := s.now()
	resolver := p.UserID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateComment(ctx, comment.ID, map[string]any{
			"status":      enums.CommentStatusResolved,
			"resolved_by": resolver,
			"resolved_at": now,
			"updated_at":  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve comment")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionCommentResolved,
			ProjectID: decision.ProjectID,
			AssetID:   &comment.AssetID,
			Details:   map[string]any{"commentId": comment.ID},
		}); err != nil {
			return err
		}
		if comment.AuthorID == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommentResolved,
			AggregateType: enums.AggregateComment,
			AggregateID:   comment.ID,
			Actor:         actorRef(p),
			Data: payloads.CommentResolvedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ProjectID:       decision.ProjectID,
					AssetID:         &comment.AssetID,
					ActorID:         &resolver,
					ActorLabel:      p.Label(),
					Title:           "Your comment was resolved",
					Message:         excerpt(comment.Body),
					AffectedUserIDs: []uuid.UUID{*comment.AuthorID},
				},
				CommentID: comment.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	comment.Status = enums.CommentStatusResolved
	comment.ResolvedBy = &resolver
	comment.ResolvedAt = &now
	comment.UpdatedAt = now
	s.publish(ctx, comment.AssetID, MessageCommentUpdated, comment)
	return comment, nil
}

func (s *service) ReopenComment(ctx context.Context, p authz.Principal, commentID uuid.UUID) (*models.Comment, error) {
	comment, decision, err := s.loadComment(ctx, p, commentID, permissions.CommentResolve)
	if err != nil {
		return nil, err
	}
	if comment.Status == enums.CommentStatusOpen {
		return comment, nil
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateComment(ctx, comment.ID, map[string]any{
			"status":      enums.CommentStatusOpen,
			"resolved_by": nil,
			"resolved_at": nil,
			"updated_at":  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen comment")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionCommentReopened,
			ProjectID: decision.ProjectID,
			AssetID:   &comment.AssetID,
			Details:   map[string]any{"commentId": comment.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	comment.Status = enums.CommentStatusOpen
	comment.ResolvedBy = nil
	comment.ResolvedAt = nil
	comment.UpdatedAt = now
	s.publish(ctx, comment.AssetID, MessageCommentUpdated, comment)
	return comment, nil
}

// DeleteComment is allowed to the author, or to anyone holding comment.delete.
func (s *service) DeleteComment(ctx context.Context, p authz.Principal, commentID uuid.UUID) error {
	comment, err := s.findComment(ctx, commentID)
	if err != nil {
		return err
	}
	decision, err := s.requireOwnOrAny(ctx, p, comment.AssetID, comment.AuthorID, permissions.CommentCreate, permissions.CommentDelete)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := repo.PurgeComments(ctx, tx, []uuid.UUID{comment.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete comment")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionCommentDeleted,
			ProjectID: decision.ProjectID,
			AssetID:   &comment.AssetID,
			Details:   map[string]any{"commentId": comment.ID},
		})
	})
	if err != nil {
		return err
	}
	s.publish(ctx, comment.AssetID, MessageCommentDeleted, map[string]any{"id": comment.ID})
	return nil
}

func (s *service) ListComments(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.Comment, error) {
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.AssetView); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForAsset(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list comments")
	}
	return rows, nil
}

func (s *service) AddReaction(ctx context.Context, p authz.Principal, commentID uuid.UUID, emoji string) (*models.CommentReaction, error) {
	emoji, err := normalizeEmoji(emoji)
	if err != nil {
		return nil, err
	}
	comment, decision, err := s.loadComment(ctx, p, commentID, permissions.CommentReact)
	if err != nil {
		return nil, err
	}

	reaction := &models.CommentReaction{
		CommentID:  comment.ID,
		ReactorKey: reactorKey(p, decision),
		Emoji:      emoji,
	}
	created, err := s.repo.AddReaction(ctx, reaction)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add reaction")
	}
	if created {
		s.publish(ctx, comment.AssetID, MessageReactionAdded, reaction)
	}
	return reaction, nil
}

// RemoveReaction succeeds whether or not the reaction existed.
func (s *service) RemoveReaction(ctx context.Context, p authz.Principal, commentID uuid.UUID, emoji string) error {
	emoji, err := normalizeEmoji(emoji)
	if err != nil {
		return err
	}
	comment, decision, err := s.loadComment(ctx, p, commentID, permissions.CommentReact)
	if err != nil {
		return err
	}
	key := reactorKey(p, decision)
	removed, err := s.repo.RemoveReaction(ctx, comment.ID, key, emoji)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove reaction")
	}
	if removed {
		s.publish(ctx, comment.AssetID, MessageReactionRemoved, map[string]any{
			"commentId":  comment.ID,
			"reactorKey": key,
			"emoji":      emoji,
		})
	}
	return nil
}

// AddAttachment checks the size cap before anything reaches storage.
func (s *service) AddAttachment(ctx context.Context, p authz.Principal, input AddAttachmentInput) (*models.CommentAttachment, error) {
	if int64(len(input.Data)) > s.maxAttachmentBytes {
		return nil, pkgerrors.New(pkgerrors.CodePayloadTooLarge, "attachment exceeds the size limit")
	}
	if len(input.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "attachment is empty")
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}
	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	comment, _, err := s.loadComment(ctx, p, input.CommentID, permissions.CommentCreate)
	if err != nil {
		return nil, err
	}

	url, err := s.storage.Put(ctx, gcs.ObjectPath("comments", comment.ID, "attachments", fileName), input.Data, contentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "store attachment")
	}
	attachment := &models.CommentAttachment{
		CommentID:   comment.ID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(input.Data)),
		FileURL:     url,
	}
	if err := s.repo.CreateAttachment(ctx, attachment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create attachment")
	}
	s.publish(ctx, comment.AssetID, MessageAttachmentAdded, attachment)
	return attachment, nil
}

func (s *service) findComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	comment, err := s.repo.FindComment(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "comment not found", "load comment")
	}
	return comment, nil
}

func (s *service) loadComment(ctx context.Context, p authz.Principal, id uuid.UUID, action permissions.Action) (*models.Comment, authz.Decision, error) {
	comment, err := s.findComment(ctx, id)
	if err != nil {
		return nil, authz.Decision{}, err
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(comment.AssetID), action)
	if err != nil {
		return nil, authz.Decision{}, err
	}
	return comment, decision, nil
}

// requireOwnOrAny lets the owner of a record act with ownAction while
// everyone else needs anyAction.
func (s *service) requireOwnOrAny(ctx context.Context, p authz.Principal, assetID uuid.UUID, ownerID *uuid.UUID, ownAction, anyAction permissions.Action) (authz.Decision, error) {
	action := anyAction
	if p.IsUser() && ownerID != nil && *ownerID == p.UserID {
		action = ownAction
	}
	return s.authz.Require(ctx, p, authz.AssetRef(assetID), action)
}

func (s *service) ensureVersionOf(ctx context.Context, versionID, assetID uuid.UUID) error {
	version, err := s.repo.FindVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "version does not exist")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load version")
	}
	if version.AssetID != assetID {
		return pkgerrors.New(pkgerrors.CodeValidation, "version belongs to a different asset")
	}
	return nil
}

func (s *service) publish(ctx context.Context, assetID uuid.UUID, msgType string, data any) {
	realtime.PublishAfterCommit(ctx, s.realtime, s.logg, realtime.CommentsChannel(assetID), realtime.Message{
		Type: msgType,
		Data: data,
		At:   s.now(),
	})
}

func guestIdentity(p authz.Principal) (string, string) {
	name := strings.TrimSpace(p.GuestName)
	if utf8.RuneCountInString(name) > maxGuestNameLength {
		name = string([]rune(name)[:maxGuestNameLength])
	}
	if name == "" {
		name = defaultGuestName
	}
	return name, strings.ToLower(strings.TrimSpace(p.GuestEmail))
}

// reactorKey identifies who reacted. Guests are keyed by invite plus the
// identity they supplied so two reviewers on one link stay distinct.
func reactorKey(p authz.Principal, decision authz.Decision) string {
	if p.IsUser() {
		return p.UserID.String()
	}
	inviteID := uuid.Nil
	if decision.Invite != nil {
		inviteID = decision.Invite.ID
	}
	name, email := guestIdentity(p)
	who := email
	if who == "" {
		who = name
	}
	return "guest:" + inviteID.String() + ":" + who
}

func normalizeEmoji(raw string) (string, error) {
	emoji := strings.TrimSpace(raw)
	if emoji == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "emoji is required")
	}
	if len(emoji) > maxEmojiBytes || strings.IndexFunc(emoji, unicode.IsSpace) >= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "emoji is invalid")
	}
	return emoji, nil
}

func actorRef(p authz.Principal) *outbox.ActorRef {
	ref := &outbox.ActorRef{Label: p.Label()}
	if p.IsUser() {
		id := p.UserID
		ref.UserID = &id
	}
	return ref
}

func excerpt(body string) string {
	const limit = 140
	if utf8.RuneCountInString(body) <= limit {
		return body
	}
	return string([]rune(body)[:limit-1]) + "…"
}

func mapNotFound(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
