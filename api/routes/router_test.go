package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/api/controllers"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/shares"
	"github.com/angelmondragon/reviewhub-backend/internal/teams"
	pkgAuth "github.com/angelmondragon/reviewhub-backend/pkg/auth"
	"github.com/angelmondragon/reviewhub-backend/pkg/auth/session"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) {
	return true, nil
}

type memoryRedis struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key], _ = value.(string)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "rv:idempotency:" + scope + ":" + id
}

type stubTeams struct {
	teams.Service
	created int
}

func (s *stubTeams) Create(_ context.Context, userID uuid.UUID, name string) (*models.Team, error) {
	s.created++
	return &models.Team{ID: uuid.New(), Name: name}, nil
}

type stubShares struct {
	shares.Service
	invite *models.ReviewInvite
}

func (s *stubShares) Resolve(_ context.Context, token string) (*models.ReviewInvite, error) {
	if s.invite == nil || token != s.invite.Token {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review link not found")
	}
	return s.invite, nil
}

func (s *stubShares) GuestView(_ context.Context, p authz.Principal) (*shares.GuestReview, error) {
	return &shares.GuestReview{Permission: s.invite.Permission}, nil
}

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "reviewhub", ExpirationMinutes: 10}

type testRouter struct {
	handler http.Handler
	teams   *stubTeams
}

func newTestRouter(t *testing.T) testRouter {
	t.Helper()
	reg := prometheus.NewRegistry()
	teamSvc := &stubTeams{}
	h := NewRouter(Params{
		Config: &config.Config{
			App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
			JWT: testJWT,
		},
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: "disabled", Output: io.Discard}),
		Metrics:  metrics.NewReviewMetrics(reg),
		Gatherer: reg,
		Redis:    newMemoryRedis(),
		Sessions: stubSessions{},
		Ready:    map[string]controllers.Pinger{"db": stubPinger{}},
		Teams:    teamSvc,
		Shares: &stubShares{invite: &models.ReviewInvite{
			ID:         uuid.New(),
			AssetID:    uuid.New(),
			Token:      "good-token",
			Permission: "comment",
		}},
	})
	return testRouter{handler: h, teams: teamSvc}
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), JTI: session.NewAccessID()})
	require.NoError(t, err)
	return "Bearer " + token
}

func (tr testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	tr := newTestRouter(t)

	require.Equal(t, http.StatusOK, tr.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	require.Equal(t, http.StatusOK, tr.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)

	metricsResp := tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metricsResp.Code)
	require.Contains(t, metricsResp.Body.String(), "reviewhub_http_request_duration_seconds")
}

func TestPrivateRoutesRequireBearer(t *testing.T) {
	tr := newTestRouter(t)

	resp := tr.do(httptest.NewRequest(http.MethodGet, "/api/teams", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateTeamReplaysWithIdempotencyKey(t *testing.T) {
	tr := newTestRouter(t)
	auth := bearer(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(`{"name":"Studio"}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", "create-studio")
		resp := tr.do(req)
		require.Equal(t, http.StatusCreated, resp.Code)
	}
	require.Equal(t, 1, tr.teams.created)
}

func TestGuestRoutes(t *testing.T) {
	tr := newTestRouter(t)

	resp := tr.do(httptest.NewRequest(http.MethodGet, "/api/guest/reviews/good-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"permission":"comment"`)

	resp = tr.do(httptest.NewRequest(http.MethodGet, "/api/guest/reviews/unknown", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}
