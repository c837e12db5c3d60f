package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/api/middleware"
	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

type stubAnnotations struct {
	annotations.Service
	principal authz.Principal
	comment   *annotations.AddCommentInput
	emoji     string
	status    string
}

func (s *stubAnnotations) AddComment(_ context.Context, p authz.Principal, input annotations.AddCommentInput) (*models.Comment, error) {
	s.principal = p
	s.comment = &input
	return &models.Comment{ID: uuid.New(), AssetID: input.AssetID, Body: input.Body}, nil
}

func (s *stubAnnotations) AddReaction(_ context.Context, p authz.Principal, commentID uuid.UUID, emoji string) (*models.CommentReaction, error) {
	s.principal = p
	s.emoji = emoji
	return &models.CommentReaction{CommentID: commentID, Emoji: emoji}, nil
}

func (s *stubAnnotations) ResolveComment(_ context.Context, _ authz.Principal, id uuid.UUID) (*models.Comment, error) {
	s.status = "resolved"
	return &models.Comment{ID: id}, nil
}

func (s *stubAnnotations) ReopenComment(_ context.Context, _ authz.Principal, id uuid.UUID) (*models.Comment, error) {
	s.status = "open"
	return &models.Comment{ID: id}, nil
}

func TestAddCommentUsesPathAsset(t *testing.T) {
	svc := &stubAnnotations{}
	userID, assetID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":"Logo is soft at 00:12","timecodeSeconds":12.5}`))
	req = withRoute(asUser(req, userID), map[string]string{"assetId": assetID.String()})

	resp := serve(AddComment(svc, testLogger()), req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, assetID, svc.comment.AssetID)
	require.Equal(t, 12.5, *svc.comment.TimecodeSeconds)
	require.Equal(t, userID, svc.principal.UserID)
}

func TestAddCommentRejectsEmptyBody(t *testing.T) {
	svc := &stubAnnotations{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":""}`))
	req = withRoute(asUser(req, uuid.New()), map[string]string{"assetId": uuid.NewString()})

	resp := serve(AddComment(svc, testLogger()), req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Nil(t, svc.comment)
}

func TestAddReactionUnescapesEmoji(t *testing.T) {
	svc := &stubAnnotations{}
	commentID := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req = withRoute(asUser(req, uuid.New()), map[string]string{"commentId": commentID.String(), "emoji": "%F0%9F%91%8D"})

	resp := serve(AddReaction(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "👍", svc.emoji)
}

func TestCommentStatusTogglesDirection(t *testing.T) {
	svc := &stubAnnotations{}
	id := uuid.NewString()
	for resolved, want := range map[bool]string{true: "resolved", false: "open"} {
		req := withRoute(asUser(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()), map[string]string{"commentId": id})
		resp := serve(CommentStatus(svc, resolved, testLogger()), req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, want, svc.status)
	}
}

func TestGuestAddCommentTargetsInviteAsset(t *testing.T) {
	svc := &stubAnnotations{}
	invite := &models.ReviewInvite{ID: uuid.New(), AssetID: uuid.New(), Token: "tok"}
	guest := authz.Guest("tok")
	guest.GuestName = "Client"
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":"Approved pending logo"}`))
	req = req.WithContext(middleware.WithGuest(req.Context(), guest, invite))

	resp := serve(GuestAddComment(svc, testLogger()), req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, invite.AssetID, svc.comment.AssetID)
	require.True(t, svc.principal.IsGuest())
	require.Equal(t, "Client", svc.principal.GuestName)
}

func TestIssueShareRejectsGuests(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"permission":"view"}`))
	req = req.WithContext(middleware.WithGuest(req.Context(), authz.Guest("tok"), &models.ReviewInvite{ID: uuid.New()}))
	req = withRoute(req, map[string]string{"assetId": uuid.NewString()})

	resp := serve(IssueShare(nil, testLogger()), req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}
