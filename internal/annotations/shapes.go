package annotations

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

const (
	defaultStrokeWidth = 2.0
	maxStrokeWidth     = 50.0
	defaultColor       = "#ff3b30"
	maxFreehandPoints  = 2000
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

type AddAnnotationInput struct {
	VersionID       uuid.UUID
	CommentID       *uuid.UUID
	Shape           enums.AnnotationShape
	Points          []models.Point
	Radius          *float64
	StrokeWidth     *float64
	Color           *string
	Opacity         *float64
	TimecodeSeconds *float64
	Page            *int
}

func (s *service) AddAnnotation(ctx context.Context, p authz.Principal, input AddAnnotationInput) (*models.Annotation, error) {
	annotation, err := buildAnnotation(input)
	if err != nil {
		return nil, err
	}
	version, err := s.repo.FindVersion(ctx, input.VersionID)
	if err != nil {
		return nil, mapNotFound(err, "version not found", "load version")
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(version.AssetID), permissions.AnnotationCreate)
	if err != nil {
		return nil, err
	}
	asset, err := s.repo.FindAsset(ctx, version.AssetID)
	if err != nil {
		return nil, mapNotFound(err, "asset not found", "load asset")
	}
	if err := validatePlacement(asset.MediaType, input); err != nil {
		return nil, err
	}
	if input.CommentID != nil {
		comment, err := s.findComment(ctx, *input.CommentID)
		if err != nil {
			return nil, err
		}
		if comment.AssetID != version.AssetID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment belongs to a different asset")
		}
	}
	if p.IsUser() {
		creator := p.UserID
		annotation.CreatedBy = &creator
	} else {
		name, _ := guestIdentity(p)
		annotation.GuestName = &name
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateAnnotation(ctx, annotation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create annotation")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionAnnotationAdded,
			ProjectID: decision.ProjectID,
			AssetID:   &version.AssetID,
			Details:   map[string]any{"annotationId": annotation.ID, "versionId": version.ID, "shape": annotation.Shape},
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, version.AssetID, MessageAnnotationCreated, annotation)
	return annotation, nil
}

// UpdateAnnotationPosition replaces the points of an existing shape. The shape
// itself is fixed at creation.
func (s *service) UpdateAnnotationPosition(ctx context.Context, p authz.Principal, annotationID uuid.UUID, points []models.Point) (*models.Annotation, error) {
	annotation, version, err := s.loadAnnotation(ctx, annotationID)
	if err != nil {
		return nil, err
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(version.AssetID), permissions.AnnotationUpdate)
	if err != nil {
		return nil, err
	}
	if err := validatePoints(annotation.Shape, points); err != nil {
		return nil, err
	}

	annotation.Points = datatypes.NewJSONSlice(points)
	annotation.UpdatedAt = s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateAnnotationPoints(ctx, annotation); err != nil {
			return mapNotFound(err, "annotation not found", "update annotation")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, annotation.UpdatedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, version.AssetID, MessageAnnotationUpdated, annotation)
	return annotation, nil
}

// DeleteAnnotation is allowed to the user who drew it, or to anyone holding
// annotation.delete.
func (s *service) DeleteAnnotation(ctx context.Context, p authz.Principal, annotationID uuid.UUID) error {
	annotation, version, err := s.loadAnnotation(ctx, annotationID)
	if err != nil {
		return err
	}
	decision, err := s.requireOwnOrAny(ctx, p, version.AssetID, annotation.CreatedBy, permissions.AnnotationCreate, permissions.AnnotationDelete)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).DeleteAnnotation(ctx, annotation.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete annotation")
		}
		if err := repo.TouchProject(ctx, tx, decision.ProjectID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch project")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionAnnotationDeleted,
			ProjectID: decision.ProjectID,
			AssetID:   &version.AssetID,
			Details:   map[string]any{"annotationId": annotation.ID, "versionId": version.ID},
		})
	})
	if err != nil {
		return err
	}
	s.publish(ctx, version.AssetID, MessageAnnotationDeleted, map[string]any{"id": annotation.ID, "versionId": version.ID})
	return nil
}

func (s *service) ListAnnotations(ctx context.Context, p authz.Principal, versionID uuid.UUID) ([]models.Annotation, error) {
	version, err := s.repo.FindVersion(ctx, versionID)
	if err != nil {
		return nil, mapNotFound(err, "version not found", "load version")
	}
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(version.AssetID), permissions.AssetView); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListAnnotations(ctx, versionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list annotations")
	}
	return rows, nil
}

func (s *service) loadAnnotation(ctx context.Context, id uuid.UUID) (*models.Annotation, *models.AssetVersion, error) {
	annotation, err := s.repo.FindAnnotation(ctx, id)
	if err != nil {
		return nil, nil, mapNotFound(err, "annotation not found", "load annotation")
	}
	version, err := s.repo.FindVersion(ctx, annotation.VersionID)
	if err != nil {
		return nil, nil, mapNotFound(err, "version not found", "load version")
	}
	return annotation, version, nil
}

func buildAnnotation(input AddAnnotationInput) (*models.Annotation, error) {
	if !input.Shape.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown annotation shape")
	}
	if err := validatePoints(input.Shape, input.Points); err != nil {
		return nil, err
	}

	annotation := &models.Annotation{
		VersionID:       input.VersionID,
		CommentID:       input.CommentID,
		Shape:           input.Shape,
		Points:          datatypes.NewJSONSlice(input.Points),
		StrokeWidth:     defaultStrokeWidth,
		Color:           defaultColor,
		Opacity:         1,
		TimecodeSeconds: input.TimecodeSeconds,
		Page:            input.Page,
	}
	if input.Radius != nil {
		if input.Shape != enums.AnnotationShapePin {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "radius only applies to pins")
		}
		if !finite(*input.Radius) || *input.Radius <= 0 || *input.Radius > 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "radius must be within (0, 1]")
		}
		annotation.Radius = input.Radius
	}
	if input.StrokeWidth != nil {
		if !finite(*input.StrokeWidth) || *input.StrokeWidth <= 0 || *input.StrokeWidth > maxStrokeWidth {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stroke width is out of range")
		}
		annotation.StrokeWidth = *input.StrokeWidth
	}
	if input.Color != nil {
		color := strings.TrimSpace(*input.Color)
		if !hexColor.MatchString(color) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "color must be a hex value")
		}
		annotation.Color = strings.ToLower(color)
	}
	if input.Opacity != nil {
		if !finite(*input.Opacity) || *input.Opacity <= 0 || *input.Opacity > 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "opacity must be within (0, 1]")
		}
		annotation.Opacity = *input.Opacity
	}
	if input.TimecodeSeconds != nil && (!finite(*input.TimecodeSeconds) || *input.TimecodeSeconds < 0) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "timecode must not be negative")
	}
	if input.Page != nil && *input.Page < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page starts at 1")
	}
	return annotation, nil
}

// validatePlacement pins time-based media to a timecode and everything else to
// an optional page.
func validatePlacement(media enums.MediaType, input AddAnnotationInput) error {
	if media.IsTimeBased() {
		if input.TimecodeSeconds == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "timecodeSeconds is required for "+string(media))
		}
		if input.Page != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "page does not apply to "+string(media))
		}
		return nil
	}
	if input.TimecodeSeconds != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "timecodeSeconds does not apply to "+string(media))
	}
	return nil
}

// validatePoints checks the count for the shape and that every coordinate is
// normalized to the frame.
func validatePoints(shape enums.AnnotationShape, points []models.Point) error {
	switch {
	case len(points) < shape.MinPoints():
		return pkgerrors.New(pkgerrors.CodeValidation, "not enough points for shape").
			WithDetails(map[string]any{"shape": shape, "min": shape.MinPoints()})
	case shape == enums.AnnotationShapePin && len(points) != 1:
		return pkgerrors.New(pkgerrors.CodeValidation, "a pin has exactly one point")
	case (shape == enums.AnnotationShapeRectangle || shape == enums.AnnotationShapeArrow) && len(points) != 2:
		return pkgerrors.New(pkgerrors.CodeValidation, "shape takes exactly two points")
	case len(points) > maxFreehandPoints:
		return pkgerrors.New(pkgerrors.CodeValidation, "too many points")
	}
	for _, pt := range points {
		if !finite(pt.X) || !finite(pt.Y) || pt.X < 0 || pt.X > 1 || pt.Y < 0 || pt.Y > 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "points must be within [0, 1]")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
