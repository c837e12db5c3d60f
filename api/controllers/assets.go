package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/assets"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

const maxTitleLen = 300

type createAssetRequest struct {
	Title     string `json:"title" validate:"required,max=300"`
	MediaType string `json:"mediaType" validate:"required,oneof=video audio image document"`
}

// CreateAsset accepts either JSON metadata or a multipart form whose "file"
// part becomes version 1.
func CreateAsset(svc assets.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projectID, err := validators.URLParamUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var (
			body  createAssetRequest
			input assets.CreateInput
		)
		if isMultipart(r) {
			file, err := readFormFile(w, r, "file", maxUploadBytes)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			body.Title = validators.SanitizeString(r.FormValue("title"), maxTitleLen)
			body.MediaType = strings.TrimSpace(r.FormValue("mediaType"))
			if err := validators.Struct(&body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.File = &assets.FileInput{
				FileName:    file.FileName,
				ContentType: file.ContentType,
				Data:        file.Data,
				Notes:       formValue(r, "notes"),
			}
		} else if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Title = body.Title
		input.MediaType = enums.MediaType(body.MediaType)

		detail, err := svc.Create(r.Context(), p, projectID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, detail)
	}
}

func ListAssets(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projectID, err := validators.URLParamUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), p, projectID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GetAsset returns the asset with its approval state and latest version.
func GetAsset(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.URLParamUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), p, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func DeleteAsset(svc assets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.URLParamUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), p, assetID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// WatchAsset toggles the caller's watch; watch=false unwatches.
func WatchAsset(svc assets.Service, watch bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.URLParamUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if watch {
			err = svc.Watch(r.Context(), p, assetID)
		} else {
			err = svc.Unwatch(r.Context(), p, assetID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"watching": watch})
	}
}
