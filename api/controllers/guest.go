package controllers

import (
	"net/http"

	"github.com/angelmondragon/reviewhub-backend/api/middleware"
	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/shares"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

// Guest handlers sit behind middleware.GuestToken, which has already
// resolved the share token into a guest principal and its invite.

type guestViewRequest struct {
	DurationSeconds int      `json:"durationSeconds" validate:"gte=0,lte=86400"`
	Actions         []string `json:"actions" validate:"max=50,dive,max=64"`
}

// GuestReview renders what the share link exposes.
func GuestReview(svc shares.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		review, err := svc.GuestView(r.Context(), p)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}

func GuestRecordView(svc shares.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body guestViewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RecordGuestView(r.Context(), p.ShareToken, shares.GuestViewInput{
			DurationSeconds: body.DurationSeconds,
			Actions:         body.Actions,
			RemoteAddr:      middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, view)
	}
}

// GuestAddComment comments on the invite's asset.
func GuestAddComment(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invite, ok := middleware.InviteFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "review link not found"))
			return
		}
		writeNewComment(w, r, svc, p, invite.AssetID, logg)
	}
}

// GuestAddAnnotation takes the target version from the body.
func GuestAddAnnotation(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addAnnotationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.VersionID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"versionId": "is required"}))
			return
		}
		annotation, err := svc.AddAnnotation(r.Context(), p, body.input(*body.VersionID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, annotation)
	}
}
