package controllers

import (
	"net/http"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/shares"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

type issueShareRequest struct {
	Permission       string  `json:"permission" validate:"required,oneof=view comment approve"`
	ExpiresInSeconds *int64  `json:"expiresInSeconds"`
	ReviewerEmail    *string `json:"reviewerEmail" validate:"omitempty,email"`
	WatermarkEnabled bool    `json:"watermarkEnabled"`
	WatermarkText    *string `json:"watermarkText"`
}

// IssueShare mints a guest review link for an asset. A zero expiry yields a
// link that is already expired; omit it for the default lifetime.
func IssueShare(svc shares.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body issueShareRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invite, err := svc.Issue(r.Context(), shares.IssueInput{
			AssetID:          assetID,
			Permission:       enums.SharePermission(body.Permission),
			ExpiresInSeconds: body.ExpiresInSeconds,
			CreatedBy:        userID,
			ReviewerEmail:    body.ReviewerEmail,
			WatermarkEnabled: body.WatermarkEnabled,
			WatermarkText:    body.WatermarkText,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, invite)
	}
}

func ListShares(svc shares.Service, logg *logger.Logger) http.HandlerFunc {
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
		list, err := svc.ListInvites(r.Context(), p, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func RevokeShare(svc shares.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inviteID, err := validators.URLParamUUID(r, "inviteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Revoke(r.Context(), p, inviteID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"revoked": true})
	}
}

func ShareAnalytics(svc shares.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inviteID, err := validators.URLParamUUID(r, "inviteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		analytics, err := svc.Analytics(r.Context(), p, inviteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, analytics)
	}
}
