package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/users"
	pkgAuth "github.com/angelmondragon/reviewhub-backend/pkg/auth"
	"github.com/angelmondragon/reviewhub-backend/pkg/auth/session"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

var testJWT = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "reviewhub",
	ExpirationMinutes:      15,
	RefreshTokenTTLMinutes: 60,
}

// Cheapest argon2id parameters the hasher accepts.
var testPassword = config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

type memorySessions struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memorySessions) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memorySessions) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memorySessions) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(m.data, key)
	return v, nil
}

func (m *memorySessions) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memorySessions) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestService(t *testing.T) (Service, *gorm.DB, *memorySessions) {
	t.Helper()
	conn := dbtest.Open(t).DB()
	store := &memorySessions{data: map[string]string{}}
	manager, err := session.NewManager(store, testJWT)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Users:          users.NewRepository(conn),
		SessionManager: manager,
		JWTConfig:      testJWT,
		PasswordConfig: testPassword,
	})
	require.NoError(t, err)
	return svc, conn, store
}

func TestRegisterThenLogin(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{Name: " Dana ", Email: "Dana@Example.com ", Password: "long-enough"})
	require.NoError(t, err)
	require.Equal(t, "dana@example.com", resp.User.Email)
	require.Equal(t, "Dana", resp.User.Name)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims.UserID)

	var stored models.User
	require.NoError(t, conn.First(&stored, "id = ?", resp.User.ID).Error)
	require.NotEqual(t, "long-enough", stored.PasswordHash)
	require.NotNil(t, stored.LastLoginAt)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Other", Email: "dana@example.com", Password: "long-enough"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	login, err := svc.Login(ctx, LoginRequest{Email: "DANA@example.com", Password: "long-enough"})
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, login.User.ID)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []RegisterRequest{
		{Name: "A", Email: "", Password: "long-enough"},
		{Name: "  ", Email: "a@example.com", Password: "long-enough"},
		{Name: "A", Email: "a@example.com", Password: "short"},
	}
	for _, req := range cases {
		_, err := svc.Register(ctx, req)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%+v", req)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	resp, err := svc.Register(ctx, RegisterRequest{Name: "Eli", Email: "eli@example.com", Password: "long-enough"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "eli@example.com", Password: "wrong-password"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "long-enough"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, conn.Model(&models.User{}).Where("id = ?", resp.User.ID).UpdateColumn("is_active", false).Error)
	_, err = svc.Login(ctx, LoginRequest{Email: "eli@example.com", Password: "long-enough"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestLoginUpgradesWeakPasswordHash(t *testing.T) {
	svc, conn, store := newTestService(t)
	ctx := context.Background()
	resp, err := svc.Register(ctx, RegisterRequest{Name: "Fay", Email: "fay@example.com", Password: "long-enough"})
	require.NoError(t, err)

	var before models.User
	require.NoError(t, conn.First(&before, "id = ?", resp.User.ID).Error)

	stronger := testPassword
	stronger.ArgonTime = 2
	manager, err := session.NewManager(store, testJWT)
	require.NoError(t, err)
	upgraded, err := NewService(ServiceParams{
		Users:          users.NewRepository(conn),
		SessionManager: manager,
		JWTConfig:      testJWT,
		PasswordConfig: stronger,
	})
	require.NoError(t, err)

	_, err = upgraded.Login(ctx, LoginRequest{Email: "fay@example.com", Password: "long-enough"})
	require.NoError(t, err)

	var after models.User
	require.NoError(t, conn.First(&after, "id = ?", resp.User.ID).Error)
	require.NotEqual(t, before.PasswordHash, after.PasswordHash)
	require.Contains(t, after.PasswordHash, ",t=2,")

	_, err = svc.Login(ctx, LoginRequest{Email: "fay@example.com", Password: "long-enough"})
	require.NoError(t, err, "the upgraded hash still verifies under the old parameters")
}

func TestRefreshRotatesOnce(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	resp, err := svc.Register(ctx, RegisterRequest{Name: "Fay", Email: "fay@example.com", Password: "long-enough"})
	require.NoError(t, err)

	pair, err := svc.Refresh(ctx, resp.AccessToken, resp.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, resp.RefreshToken, pair.RefreshToken)
	require.Len(t, store.data, 1)

	_, err = svc.Refresh(ctx, resp.AccessToken, resp.RefreshToken)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Refresh(ctx, pair.AccessToken, "forged")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRefreshAcceptsExpiredAccessToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	resp, err := svc.Register(ctx, RegisterRequest{Name: "Gil", Email: "gil@example.com", Password: "long-enough"})
	require.NoError(t, err)
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)

	expired, err := pkgAuth.MintAccessToken(testJWT, time.Now().UTC().Add(-time.Hour), pkgAuth.AccessTokenPayload{
		UserID: resp.User.ID,
		JTI:    claims.ID,
	})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, expired, resp.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	resp, err := svc.Register(ctx, RegisterRequest{Name: "Hal", Email: "hal@example.com", Password: "long-enough"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, resp.AccessToken))
	require.Empty(t, store.data)

	_, err = svc.Refresh(ctx, resp.AccessToken, resp.RefreshToken)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	err = svc.Logout(ctx, "not-a-jwt")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRefreshUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	token, err := pkgAuth.MintAccessToken(testJWT, time.Now().UTC(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), JTI: "gone"})
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), token, "whatever")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
