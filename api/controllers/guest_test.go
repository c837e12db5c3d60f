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
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/shares"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

type stubShares struct {
	shares.Service
	views []shares.GuestViewInput
}

func (s *stubShares) RecordGuestView(_ context.Context, _ string, input shares.GuestViewInput) (*models.ReviewView, error) {
	s.views = append(s.views, input)
	return &models.ReviewView{ID: uuid.New()}, nil
}

func TestGuestRecordViewUsesForwardedClientAddress(t *testing.T) {
	svc := &stubShares{}
	invite := &models.ReviewInvite{ID: uuid.New(), AssetID: uuid.New(), Token: "tok"}

	for _, forwarded := range []string{"198.51.100.4, 10.0.0.2", "203.0.113.9"} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"durationSeconds":12}`))
		req.RemoteAddr = "10.0.0.2:443"
		req.Header.Set("X-Forwarded-For", forwarded)
		req = req.WithContext(middleware.WithGuest(req.Context(), authz.Guest("tok"), invite))

		resp := serve(GuestRecordView(svc, testLogger()), req)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}

	require.Len(t, svc.views, 2)
	require.Equal(t, "198.51.100.4", svc.views[0].RemoteAddr)
	require.Equal(t, "203.0.113.9", svc.views[1].RemoteAddr)
	require.Equal(t, 12, svc.views[0].DurationSeconds)
}
