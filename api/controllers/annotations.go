package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

// Geometry is checked by the annotations service; only presence is checked here.
type addAnnotationRequest struct {
	VersionID       *uuid.UUID     `json:"versionId"`
	CommentID       *uuid.UUID     `json:"commentId"`
	Shape           string         `json:"shape" validate:"required,oneof=pin rectangle arrow freehand"`
	Points          []models.Point `json:"points" validate:"required,min=1"`
	Radius          *float64       `json:"radius"`
	StrokeWidth     *float64       `json:"strokeWidth"`
	Color           *string        `json:"color"`
	Opacity         *float64       `json:"opacity"`
	TimecodeSeconds *float64       `json:"timecodeSeconds"`
	Page            *int           `json:"page"`
}

func (b addAnnotationRequest) input(versionID uuid.UUID) annotations.AddAnnotationInput {
	return annotations.AddAnnotationInput{
		VersionID:       versionID,
		CommentID:       b.CommentID,
		Shape:           enums.AnnotationShape(b.Shape),
		Points:          b.Points,
		Radius:          b.Radius,
		StrokeWidth:     b.StrokeWidth,
		Color:           b.Color,
		Opacity:         b.Opacity,
		TimecodeSeconds: b.TimecodeSeconds,
		Page:            b.Page,
	}
}

type moveAnnotationRequest struct {
	Points []models.Point `json:"points" validate:"required,min=1"`
}

func AddAnnotation(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		versionID, err := validators.URLParamUUID(r, "versionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addAnnotationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		annotation, err := svc.AddAnnotation(r.Context(), p, body.input(versionID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, annotation)
	}
}

func ListAnnotations(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		versionID, err := validators.URLParamUUID(r, "versionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListAnnotations(r.Context(), p, versionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// MoveAnnotation replaces an annotation's points.
func MoveAnnotation(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		annotationID, err := validators.URLParamUUID(r, "annotationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body moveAnnotationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		annotation, err := svc.UpdateAnnotationPosition(r.Context(), p, annotationID, body.Points)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, annotation)
	}
}

func DeleteAnnotation(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		annotationID, err := validators.URLParamUUID(r, "annotationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteAnnotation(r.Context(), p, annotationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
