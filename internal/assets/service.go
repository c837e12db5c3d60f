// Package assets owns the reviewable media inside a project. Version history
// lives in the versions package; an asset only mirrors the newest file.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/approvals"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/internal/versions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/pagination"
)

const maxTitleLength = 300

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type versionUploader interface {
	UploadVersion(ctx context.Context, input versions.UploadVersionInput) (*models.AssetVersion, error)
}

type Service interface {
	Create(ctx context.Context, p authz.Principal, projectID uuid.UUID, input CreateInput) (*Detail, error)
	Get(ctx context.Context, p authz.Principal, assetID uuid.UUID) (*Detail, error)
	List(ctx context.Context, p authz.Principal, projectID uuid.UUID, params pagination.Params) (pagination.Page[models.Asset], error)
	Delete(ctx context.Context, p authz.Principal, assetID uuid.UUID) error
	Watch(ctx context.Context, p authz.Principal, assetID uuid.UUID) error
	Unwatch(ctx context.Context, p authz.Principal, assetID uuid.UUID) error
}

// CreateInput creates an asset; File optionally becomes version 1.
type CreateInput struct {
	Title     string
	MediaType enums.MediaType
	File      *FileInput
}

type FileInput struct {
	FileName    string
	ContentType string
	Data        []byte
	Notes       *string
}

// Detail is an asset with its derived review state.
type Detail struct {
	models.Asset
	ApprovalState enums.ApprovalState  `json:"approvalState"`
	LatestVersion *models.AssetVersion `json:"latestVersion,omitempty"`
	Watching      bool                 `json:"watching"`
}

type ServiceParams struct {
	Repo     *Repository
	Tx       txRunner
	Authz    authorizer
	Versions versionUploader
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	tx       txRunner
	authz    authorizer
	versions versionUploader
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("assets repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Versions == nil {
		return nil, fmt.Errorf("version uploader required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		authz:    params.Authz,
		versions: params.Versions,
		logg:     params.Logger,
		now:      db.UTCNow,
	}, nil
}

// Create inserts the asset, makes the creator a watcher and, when a file is
// supplied, uploads it as version 1. A failed first upload removes the asset
// again so callers never see a half-created row.
func (s *service) Create(ctx context.Context, p authz.Principal, projectID uuid.UUID, input CreateInput) (*Detail, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(title) > maxTitleLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is too long")
	}
	if !input.MediaType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported media type")
	}
	if !p.IsUser() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "guests cannot create assets")
	}
	if _, err := s.authz.Require(ctx, p, authz.ProjectRef(projectID), permissions.AssetUpload); err != nil {
		return nil, err
	}

	asset := &models.Asset{
		ProjectID: projectID,
		Title:     title,
		MediaType: input.MediaType,
		CreatedBy: p.UserID,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, asset); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create asset")
		}
		if err := repo.Watch(ctx, tx, asset.ID, p.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "watch asset")
		}
		if err := repo.TouchProject(ctx, tx, projectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionAssetCreated,
			ProjectID: projectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"title": asset.Title, "mediaType": asset.MediaType},
		})
	})
	if err != nil {
		return nil, err
	}

	detail := &Detail{Asset: *asset, ApprovalState: enums.ApprovalStateNone, Watching: true}
	if input.File == nil {
		return detail, nil
	}
	version, err := s.versions.UploadVersion(ctx, versions.UploadVersionInput{
		AssetID:     asset.ID,
		FileName:    input.File.FileName,
		ContentType: input.File.ContentType,
		Data:        input.File.Data,
		Notes:       input.File.Notes,
		UploadedBy:  p.UserID,
	})
	if err != nil {
		s.discard(ctx, asset.ID)
		return nil, err
	}
	detail.FileURL = version.FileURL
	detail.VersionCounter = version.VersionNumber
	detail.LatestVersion = version
	return detail, nil
}

func (s *service) discard(ctx context.Context, assetID uuid.UUID) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.PurgeAsset(ctx, tx, assetID)
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{"asset_id": assetID.String()}), "discard asset after failed upload", err)
	}
}

func (s *service) Get(ctx context.Context, p authz.Principal, assetID uuid.UUID) (*Detail, error) {
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.AssetView); err != nil {
		return nil, err
	}
	asset, err := s.repo.FindByID(ctx, assetID)
	if err != nil {
		return nil, mapNotFound(err, "asset not found", "load asset")
	}
	steps, err := s.repo.ApprovalSteps(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval steps")
	}
	detail := &Detail{Asset: *asset, ApprovalState: approvals.DeriveState(steps)}

	latest, err := s.repo.LatestVersion(ctx, assetID)
	switch {
	case err == nil:
		detail.LatestVersion = latest
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest version")
	}
	if p.IsUser() {
		watching, err := s.repo.IsWatching(ctx, assetID, p.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load watch state")
		}
		detail.Watching = watching
	}
	return detail, nil
}

func (s *service) List(ctx context.Context, p authz.Principal, projectID uuid.UUID, params pagination.Params) (pagination.Page[models.Asset], error) {
	if _, err := s.authz.Require(ctx, p, authz.ProjectRef(projectID), permissions.AssetView); err != nil {
		return pagination.Page[models.Asset]{}, err
	}
	rows, err := s.repo.ListByProject(ctx, projectID, params)
	if err != nil {
		if _, cerr := pagination.ParseCursor(params.Cursor); cerr != nil {
			return pagination.Page[models.Asset]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, cerr, "invalid cursor")
		}
		return pagination.Page[models.Asset]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assets")
	}
	return pagination.Finish(rows, params.Limit, func(a models.Asset) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	}), nil
}

// Delete removes the asset with its versions, comments, annotations,
// approvals and links. The activity row outlives it.
func (s *service) Delete(ctx context.Context, p authz.Principal, assetID uuid.UUID) error {
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.AssetDelete)
	if err != nil {
		return err
	}
	asset, err := s.repo.FindByID(ctx, assetID)
	if err != nil {
		return mapNotFound(err, "asset not found", "load asset")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := repo.PurgeAsset(ctx, tx, assetID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete asset")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionAssetDeleted,
			ProjectID: decision.ProjectID,
			Details:   map[string]any{"assetId": assetID, "title": asset.Title},
		})
	})
}

func (s *service) Watch(ctx context.Context, p authz.Principal, assetID uuid.UUID) error {
	if err := s.requireWatcher(ctx, p, assetID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := repo.Watch(ctx, tx, assetID, p.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "watch asset")
		}
		return nil
	})
}

func (s *service) Unwatch(ctx context.Context, p authz.Principal, assetID uuid.UUID) error {
	if err := s.requireWatcher(ctx, p, assetID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := repo.Unwatch(ctx, tx, assetID, p.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unwatch asset")
		}
		return nil
	})
}

func (s *service) requireWatcher(ctx context.Context, p authz.Principal, assetID uuid.UUID) error {
	if !p.IsUser() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "guests cannot watch assets")
	}
	_, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.AssetView)
	return err
}

func mapNotFound(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
