package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

type fakeResolver struct {
	invites map[string]*models.ReviewInvite
	expired map[string]bool
}

func (f fakeResolver) Resolve(_ context.Context, token string) (*models.ReviewInvite, error) {
	if f.expired[token] {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "review link expired")
	}
	invite, ok := f.invites[token]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review link not found")
	}
	return invite, nil
}

func guestRouter(resolver inviteResolver, store rateLimiterStore, policy GuestPolicy, seen *authz.Principal) http.Handler {
	r := chi.NewRouter()
	r.With(GuestToken(resolver, store, policy, nil)).Get("/guest/{token}", func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		*seen = p
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestGuestTokenSeedsGuestPrincipal(t *testing.T) {
	reviewer := "client@example.com"
	invite := &models.ReviewInvite{ID: uuid.New(), AssetID: uuid.New(), Token: "good", ReviewerEmail: &reviewer}
	var seen authz.Principal
	router := guestRouter(fakeResolver{invites: map[string]*models.ReviewInvite{"good": invite}}, nil, GuestPolicy{}, &seen)

	req := httptest.NewRequest(http.MethodGet, "/guest/good", nil)
	req.Header.Set(guestNameHeader, "Dana")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, seen.IsGuest())
	require.Equal(t, "good", seen.ShareToken)
	require.Equal(t, "Dana", seen.GuestName)
	require.Equal(t, reviewer, seen.GuestEmail)
}

func TestGuestTokenMapsResolveErrors(t *testing.T) {
	var seen authz.Principal
	router := guestRouter(fakeResolver{expired: map[string]bool{"old": true}}, nil, GuestPolicy{}, &seen)

	for token, want := range map[string]int{"old": http.StatusGone, "missing": http.StatusNotFound} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/guest/"+token, nil))
		require.Equal(t, want, resp.Code, token)
	}
}

func TestGuestTokenRateLimitsPerToken(t *testing.T) {
	invite := &models.ReviewInvite{ID: uuid.New(), AssetID: uuid.New(), Token: "good"}
	policy := NewGuestPolicy(config.GuestRateLimitConfig{Window: time.Minute, TokenLimit: 2})
	var seen authz.Principal
	router := guestRouter(fakeResolver{invites: map[string]*models.ReviewInvite{"good": invite}}, newCountingStore(), policy, &seen)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/guest/good", nil))
		codes = append(codes, resp.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
