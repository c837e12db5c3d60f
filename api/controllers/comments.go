package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

type addCommentRequest struct {
	VersionID       *uuid.UUID `json:"versionId"`
	Body            string     `json:"body" validate:"required,max=10000"`
	TimecodeSeconds *float64   `json:"timecodeSeconds" validate:"omitempty,gte=0"`
}

func ListComments(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
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
		list, err := svc.ListComments(r.Context(), p, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AddComment(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
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
		writeNewComment(w, r, svc, p, assetID, logg)
	}
}

// CommentStatus resolves (resolved=true) or reopens a comment.
func CommentStatus(svc annotations.Service, resolved bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commentID, err := validators.URLParamUUID(r, "commentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update := svc.ReopenComment
		if resolved {
			update = svc.ResolveComment
		}
		comment, err := update(r.Context(), p, commentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, comment)
	}
}

func DeleteComment(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commentID, err := validators.URLParamUUID(r, "commentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteComment(r.Context(), p, commentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// AddReaction is idempotent per reactor and emoji.
func AddReaction(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commentID, emoji, err := reactionParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reaction, err := svc.AddReaction(r.Context(), p, commentID, emoji)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reaction)
	}
}

func RemoveReaction(svc annotations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commentID, emoji, err := reactionParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveReaction(r.Context(), p, commentID, emoji); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"removed": true})
	}
}

// AddAttachment stores a multipart "file" part against a comment.
func AddAttachment(svc annotations.Service, maxAttachmentBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commentID, err := validators.URLParamUUID(r, "commentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !isMultipart(r) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "multipart form required"))
			return
		}
		file, err := readFormFile(w, r, "file", maxAttachmentBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attachment, err := svc.AddAttachment(r.Context(), p, annotations.AddAttachmentInput{
			CommentID:   commentID,
			FileName:    file.FileName,
			ContentType: file.ContentType,
			Data:        file.Data,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, attachment)
	}
}

func writeNewComment(w http.ResponseWriter, r *http.Request, svc annotations.Service, p authz.Principal, assetID uuid.UUID, logg *logger.Logger) {
	var body addCommentRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	comment, err := svc.AddComment(r.Context(), p, annotations.AddCommentInput{
		AssetID:         assetID,
		VersionID:       body.VersionID,
		Body:            body.Body,
		TimecodeSeconds: body.TimecodeSeconds,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteCreated(w, comment)
}

func reactionParams(r *http.Request) (uuid.UUID, string, error) {
	commentID, err := validators.URLParamUUID(r, "commentId")
	if err != nil {
		return uuid.Nil, "", err
	}
	emoji, err := url.PathUnescape(chi.URLParam(r, "emoji"))
	if err != nil || strings.TrimSpace(emoji) == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "emoji is required")
	}
	return commentID, strings.TrimSpace(emoji), nil
}
