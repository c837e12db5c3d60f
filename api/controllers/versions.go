package controllers

import (
	"net/http"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/versions"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

type registerVersionRequest struct {
	FileURL   string  `json:"fileUrl" validate:"required,url"`
	SizeBytes *int64  `json:"sizeBytes" validate:"omitempty,gte=0"`
	Notes     *string `json:"notes"`
}

// CreateVersion uploads a multipart "file" part or, for JSON bodies,
// registers a file that is already stored.
func CreateVersion(svc versions.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.URLParamUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if isMultipart(r) {
			file, err := readFormFile(w, r, "file", maxUploadBytes)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			version, err := svc.UploadVersion(r.Context(), versions.UploadVersionInput{
				AssetID:     assetID,
				FileName:    file.FileName,
				ContentType: file.ContentType,
				Data:        file.Data,
				Notes:       formValue(r, "notes"),
				UploadedBy:  userID,
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteCreated(w, version)
			return
		}

		var body registerVersionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		version, err := svc.CreateVersion(r.Context(), versions.CreateVersionInput{
			AssetID:    assetID,
			FileURL:    body.FileURL,
			SizeBytes:  body.SizeBytes,
			Notes:      body.Notes,
			UploadedBy: userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, version)
	}
}

func ListVersions(svc versions.Service, logg *logger.Logger) http.HandlerFunc {
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
		list, err := svc.ListVersions(r.Context(), p, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetVersion(svc versions.Service, logg *logger.Logger) http.HandlerFunc {
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
		version, err := svc.GetVersion(r.Context(), p, versionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, version)
	}
}

// CompareVersions loads ?a= and ?b= side by side with their annotations.
func CompareVersions(svc versions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		a, err := validators.QueryUUID(r, "a")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		b, err := validators.QueryUUID(r, "b")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cmp, err := svc.CompareVersions(r.Context(), p, a, b)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cmp)
	}
}

func DeleteVersion(svc versions.Service, logg *logger.Logger) http.HandlerFunc {
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
		if err := svc.DeleteVersion(r.Context(), p, versionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
