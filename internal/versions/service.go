// Package versions keeps each asset's strictly increasing list of versions
// and the asset's pointer to its newest file.
package versions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
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
	"github.com/angelmondragon/reviewhub-backend/pkg/storage/gcs"
)

const (
	versionNumberIndex = "idx_asset_versions_number"
	maxNotesLength     = 4000
	numberingAttempts  = 2
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

// Service is the version ledger.
type Service interface {
	CreateVersion(ctx context.Context, input CreateVersionInput) (*models.AssetVersion, error)
	UploadVersion(ctx context.Context, input UploadVersionInput) (*models.AssetVersion, error)
	ListVersions(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.AssetVersion, error)
	GetVersion(ctx context.Context, p authz.Principal, versionID uuid.UUID) (*models.AssetVersion, error)
	CompareVersions(ctx context.Context, p authz.Principal, idA, idB uuid.UUID) (*Comparison, error)
	DeleteVersion(ctx context.Context, p authz.Principal, versionID uuid.UUID) error
}

// CreateVersionInput registers an already stored file as the next version.
type CreateVersionInput struct {
	AssetID    uuid.UUID
	FileURL    string
	SizeBytes  *int64
	Notes      *string
	UploadedBy uuid.UUID
}

// UploadVersionInput stores bytes first and then registers them.
type UploadVersionInput struct {
	AssetID     uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
	Notes       *string
	UploadedBy  uuid.UUID
}

// VersionWithAnnotations is one side of a comparison.
type VersionWithAnnotations struct {
	Version     models.AssetVersion `json:"version"`
	Annotations []models.Annotation `json:"annotations"`
}

type Comparison struct {
	A VersionWithAnnotations `json:"a"`
	B VersionWithAnnotations `json:"b"`
}

type ServiceParams struct {
	Repo           *Repository
	Tx             txRunner
	Authz          authorizer
	Outbox         outbox.Emitter
	Storage        gcs.Uploader
	Metrics        *metrics.ReviewMetrics
	Logger         *logger.Logger
	MaxUploadBytes int64
}

type service struct {
	repo           *Repository
	tx             txRunner
	authz          authorizer
	outbox         outbox.Emitter
	storage        gcs.Uploader
	metrics        *metrics.ReviewMetrics
	logg           *logger.Logger
	maxUploadBytes int64
	locks          *assetLocks
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("versions repository required")
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
	if params.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive")
	}
	return &service{
		repo:           params.Repo,
		tx:             params.Tx,
		authz:          params.Authz,
		outbox:         params.Outbox,
		storage:        params.Storage,
		metrics:        params.Metrics,
		logg:           params.Logger,
		maxUploadBytes: params.MaxUploadBytes,
		locks:          newAssetLocks(),
		now:            db.UTCNow,
	}, nil
}

func (s *service) CreateVersion(ctx context.Context, input CreateVersionInput) (*models.AssetVersion, error) {
	input.FileURL = strings.TrimSpace(input.FileURL)
	if input.FileURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file url is required")
	}
	if err := validateNotes(input.Notes); err != nil {
		return nil, err
	}
	if input.SizeBytes != nil && *input.SizeBytes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size must not be negative")
	}
	p := authz.User(input.UploadedBy)
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(input.AssetID), permissions.VersionCreate)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, p, decision.ProjectID, input)
}

func (s *service) UploadVersion(ctx context.Context, input UploadVersionInput) (*models.AssetVersion, error) {
	if len(input.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if int64(len(input.Data)) > s.maxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodePayloadTooLarge, "file exceeds the upload limit")
	}
	if err := validateNotes(input.Notes); err != nil {
		return nil, err
	}
	p := authz.User(input.UploadedBy)
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(input.AssetID), permissions.VersionCreate)
	if err != nil {
		return nil, err
	}

	objectPath := gcs.ObjectPath("assets", input.AssetID, "versions", input.FileName)
	url, err := s.storage.Put(ctx, objectPath, input.Data, input.ContentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "store version file")
	}
	size := int64(len(input.Data))
	return s.create(ctx, p, decision.ProjectID, CreateVersionInput{
		AssetID:    input.AssetID,
		FileURL:    url,
		SizeBytes:  &size,
		Notes:      input.Notes,
		UploadedBy: input.UploadedBy,
	})
}

// create assigns max(counter, highest existing)+1 under the asset lock. A
// unique violation means another process won the number; it is retried once
// with a fresh read before surfacing as a conflict.
func (s *service) create(ctx context.Context, p authz.Principal, projectID uuid.UUID, input CreateVersionInput) (*models.AssetVersion, error) {
	unlock := s.locks.Lock(input.AssetID)
	defer unlock()

	var version *models.AssetVersion
	err := s.retryNumbering(func() error {
		var err error
		version, err = s.appendVersion(ctx, p, projectID, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.VersionCreated()
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"asset_id":       input.AssetID.String(),
			"version_id":     version.ID.String(),
			"version_number": version.VersionNumber,
		}), "version created")
	}
	return version, nil
}

func (s *service) retryNumbering(fn func() error) error {
	var err error
	for attempt := 0; attempt < numberingAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, versionNumberIndex) {
			return err
		}
		s.metrics.VersionRetried()
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "version number already taken, retry the upload")
}

func (s *service) appendVersion(ctx context.Context, p authz.Principal, projectID uuid.UUID, input CreateVersionInput) (*models.AssetVersion, error) {
	var version *models.AssetVersion
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		asset, err := r.LockAsset(ctx, input.AssetID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "asset not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock asset")
		}
		highest, err := r.MaxVersionNumber(ctx, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read version numbers")
		}
		next := max(asset.VersionCounter, highest) + 1

		version = &models.AssetVersion{
			AssetID:       asset.ID,
			VersionNumber: next,
			FileURL:       input.FileURL,
			SizeBytes:     input.SizeBytes,
			Notes:         input.Notes,
			UploadedBy:    input.UploadedBy,
		}
		if err := r.Insert(ctx, version); err != nil {
			// returned bare so retryNumbering can recognize the violation
			return err
		}
		now := s.now()
		if err := r.SetAssetPointer(ctx, asset.ID, version.FileURL, next, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update asset pointer")
		}
		if err := repo.Watch(ctx, tx, asset.ID, input.UploadedBy); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "watch asset")
		}
		if err := repo.TouchProject(ctx, tx, projectID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionVersionUploaded,
			ProjectID: projectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"versionId": version.ID, "versionNumber": next},
		}); err != nil {
			return err
		}
		audience, err := repo.AudienceFor(ctx, tx, projectID, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve audience")
		}
		actorID := input.UploadedBy
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVersionUploaded,
			AggregateType: enums.AggregateAsset,
			AggregateID:   asset.ID,
			Actor:         &outbox.ActorRef{UserID: &actorID, Label: p.Label()},
			Data: payloads.VersionUploadedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ProjectID:       projectID,
					AssetID:         &asset.ID,
					ActorID:         &actorID,
					ActorLabel:      p.Label(),
					Title:           fmt.Sprintf("New version of %s", asset.Title),
					Message:         fmt.Sprintf("Version %d of %s is ready for review.", next, asset.Title),
					AffectedUserIDs: audience,
				},
				VersionID:     version.ID,
				VersionNumber: next,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (s *service) ListVersions(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.AssetVersion, error) {
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.AssetView); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list versions")
	}
	return rows, nil
}

func (s *service) GetVersion(ctx context.Context, p authz.Principal, versionID uuid.UUID) (*models.AssetVersion, error) {
	version, err := s.load(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(version.AssetID), permissions.AssetView); err != nil {
		return nil, err
	}
	return version, nil
}

// CompareVersions loads two versions of the same asset side by side. The
// second version is only looked up once the caller may view the first one's
// asset, and one from another asset reads as not found.
func (s *service) CompareVersions(ctx context.Context, p authz.Principal, idA, idB uuid.UUID) (*Comparison, error) {
	a, err := s.load(ctx, idA)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(a.AssetID), permissions.AssetView); err != nil {
		return nil, err
	}
	b, err := s.load(ctx, idB)
	if err != nil {
		return nil, err
	}
	if b.AssetID != a.AssetID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "version not found")
	}

	out := &Comparison{A: VersionWithAnnotations{Version: *a}, B: VersionWithAnnotations{Version: *b}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.AnnotationsFor(gctx, a.ID)
		out.A.Annotations = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.AnnotationsFor(gctx, b.ID)
		out.B.Annotations = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load annotations")
	}
	return out, nil
}

// DeleteVersion removes a version unless it is the asset's last one. The
// counter is left alone so numbers are never handed out twice.
func (s *service) DeleteVersion(ctx context.Context, p authz.Principal, versionID uuid.UUID) error {
	version, err := s.load(ctx, versionID)
	if err != nil {
		return err
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(version.AssetID), permissions.VersionDelete)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(version.AssetID)
	defer unlock()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		asset, err := r.LockAsset(ctx, version.AssetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock asset")
		}
		count, err := r.Count(ctx, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count versions")
		}
		if count <= 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "cannot delete the only version of an asset")
		}
		if err := r.Delete(ctx, version.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete version")
		}
		latest, err := r.Latest(ctx, asset.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest version")
		}
		now := s.now()
		if err := r.SetAssetPointer(ctx, asset.ID, latest.FileURL, asset.VersionCounter, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update asset pointer")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionVersionDeleted,
			ProjectID: decision.ProjectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"versionId": version.ID, "versionNumber": version.VersionNumber},
		})
	})
}

func (s *service) load(ctx context.Context, versionID uuid.UUID) (*models.AssetVersion, error) {
	version, err := s.repo.FindByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "version not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load version")
	}
	return version, nil
}

func validateNotes(notes *string) error {
	if notes != nil && len(*notes) > maxNotesLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "notes are too long")
	}
	return nil
}
