package shares

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/versions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
)

type fakeMailer struct {
	mu sync.Mutex
	to []string
}

func (f *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	return nil
}

type testEnv struct {
	svc    Service
	conn   *gorm.DB
	fx     dbtest.Fixture
	mailer *fakeMailer
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	az, err := authz.NewService(authz.NewRepository(conn))
	require.NoError(t, err)
	mailer := &fakeMailer{}
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Tx:         client,
		Authz:      az,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Comments:   annotations.NewRepository(conn),
		Versions:   versions.NewRepository(conn),
		Mailer:     mailer,
		DefaultTTL: 48 * time.Hour,
		IPHashKey:  []byte("test-ip-key"),
		PublicURL:  "https://app.reviewhub.test",
	})
	require.NoError(t, err)
	fx := dbtest.MustSeed(t, conn)
	dbtest.MustCreateVersion(t, conn, fx.Asset, "https://cdn.test/v1.mp4", fx.Owner.ID)
	return testEnv{svc: svc, conn: conn, fx: fx, mailer: mailer}
}

func seconds(v int64) *int64 { return &v }

func (e testEnv) issue(t *testing.T, perm enums.SharePermission) *models.ReviewInvite {
	t.Helper()
	invite, err := e.svc.Issue(context.Background(), IssueInput{AssetID: e.fx.Asset.ID, Permission: perm, CreatedBy: e.fx.Owner.ID})
	require.NoError(t, err)
	return invite
}

func TestIssueDefaultsAndEmailsReviewer(t *testing.T) {
	env := newTestEnv(t)
	email := "Client@Example.com"
	before := time.Now().UTC()

	invite, err := env.svc.Issue(context.Background(), IssueInput{
		AssetID:       env.fx.Asset.ID,
		Permission:    enums.SharePermissionComment,
		CreatedBy:     env.fx.Owner.ID,
		ReviewerEmail: &email,
	})
	require.NoError(t, err)
	require.NotEmpty(t, invite.Token)
	require.NotNil(t, invite.ExpiresAt)
	require.WithinDuration(t, before.Add(48*time.Hour), *invite.ExpiresAt, time.Minute)
	require.Equal(t, []string{"client@example.com"}, env.mailer.to)

	var entries int64
	require.NoError(t, env.conn.Model(&models.ActivityLogEntry{}).Where("action = ?", "share.issued").Count(&entries).Error)
	require.EqualValues(t, 1, entries)
}

func TestIssueValidationAndPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, IssueInput{AssetID: env.fx.Asset.ID, Permission: "edit", CreatedBy: env.fx.Owner.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.Issue(ctx, IssueInput{AssetID: env.fx.Asset.ID, Permission: enums.SharePermissionView, CreatedBy: env.fx.Owner.ID, ExpiresInSeconds: seconds(-1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	viewer := dbtest.MustCreateUser(t, env.conn, "viewer")
	dbtest.MustAddMember(t, env.conn, env.fx.Team.ID, viewer.ID, enums.MemberRoleViewer)
	_, err = env.svc.Issue(ctx, IssueInput{AssetID: env.fx.Asset.ID, Permission: enums.SharePermissionView, CreatedBy: viewer.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestIssueRejectsExpiryBeyondOneYear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maxSecs := int64(maxShareTTL / time.Second)

	for _, secs := range []int64{maxSecs + 1, 9223372037, 18446744074, math.MaxInt64} {
		_, err := env.svc.Issue(ctx, IssueInput{AssetID: env.fx.Asset.ID, Permission: enums.SharePermissionView, CreatedBy: env.fx.Owner.ID, ExpiresInSeconds: seconds(secs)})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "expiresInSeconds=%d", secs)
	}

	invite, err := env.svc.Issue(ctx, IssueInput{AssetID: env.fx.Asset.ID, Permission: enums.SharePermissionView, CreatedBy: env.fx.Owner.ID, ExpiresInSeconds: seconds(maxSecs)})
	require.NoError(t, err)
	require.NotNil(t, invite.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(maxShareTTL), *invite.ExpiresAt, time.Minute)
}

func TestZeroExpiryIsImmediatelyExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invite, err := env.svc.Issue(ctx, IssueInput{AssetID: env.fx.Asset.ID, Permission: enums.SharePermissionView, CreatedBy: env.fx.Owner.ID, ExpiresInSeconds: seconds(0)})
	require.NoError(t, err)

	_, err = env.svc.Resolve(ctx, invite.Token)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))

	_, err = env.svc.RecordView(ctx, invite.ID, RecordViewInput{DurationSeconds: 5})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))
}

func TestResolveUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Resolve(context.Background(), "tok_missing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordViewCountsAndNotifiesCreator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invite := env.issue(t, enums.SharePermissionView)

	_, err := env.svc.RecordGuestView(ctx, invite.Token, GuestViewInput{DurationSeconds: 30, Actions: []string{"play", " ", "pause"}, RemoteAddr: "203.0.113.7:5512"})
	require.NoError(t, err)
	view, err := env.svc.RecordGuestView(ctx, invite.Token, GuestViewInput{DurationSeconds: 12, RemoteAddr: "203.0.113.7:6000"})
	require.NoError(t, err)
	require.NotNil(t, view.ViewerIPHash)
	require.NotContains(t, *view.ViewerIPHash, "203.0.113.7")

	analytics, err := env.svc.Analytics(ctx, authz.User(env.fx.Owner.ID), invite.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, analytics.ViewCount)
	require.NotNil(t, analytics.LastViewedAt)
	require.EqualValues(t, 42, analytics.TotalDurationSeconds)
	require.EqualValues(t, 1, analytics.UniqueViewers)
	require.Len(t, analytics.RecentViews, 2)

	var events []models.OutboxEvent
	require.NoError(t, env.conn.Where("event_type = ?", enums.EventShareViewed).Find(&events).Error)
	require.Len(t, events, 2)
	require.Contains(t, string(events[0].Payload), env.fx.Owner.ID.String())
}

func TestConcurrentViewsAreNotLost(t *testing.T) {
	env := newTestEnv(t)
	invite := env.issue(t, enums.SharePermissionView)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.RecordView(context.Background(), invite.ID, RecordViewInput{DurationSeconds: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var stored models.ReviewInvite
	require.NoError(t, env.conn.First(&stored, "id = ?", invite.ID).Error)
	require.EqualValues(t, 2, stored.ViewCount)
}

func TestRecordViewValidation(t *testing.T) {
	env := newTestEnv(t)
	invite := env.issue(t, enums.SharePermissionView)

	_, err := env.svc.RecordView(context.Background(), invite.ID, RecordViewInput{DurationSeconds: -1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRevokeIsImmediateAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := authz.User(env.fx.Owner.ID)
	invite := env.issue(t, enums.SharePermissionComment)

	member := dbtest.MustCreateUser(t, env.conn, "member")
	dbtest.MustAddMember(t, env.conn, env.fx.Team.ID, member.ID, enums.MemberRoleMember)
	require.True(t, pkgerrors.IsCode(env.svc.Revoke(ctx, authz.User(member.ID), invite.ID), pkgerrors.CodeForbidden))

	require.NoError(t, env.svc.Revoke(ctx, owner, invite.ID))
	require.NoError(t, env.svc.Revoke(ctx, owner, invite.ID))

	_, err := env.svc.Resolve(ctx, invite.Token)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))
	_, err = env.svc.GuestView(ctx, authz.Guest(invite.Token))
	require.Error(t, err)

	var entries int64
	require.NoError(t, env.conn.Model(&models.ActivityLogEntry{}).Where("action = ?", "share.revoked").Count(&entries).Error)
	require.EqualValues(t, 1, entries)
}

func TestListInvitesNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	first := env.issue(t, enums.SharePermissionView)
	second := env.issue(t, enums.SharePermissionApprove)

	rows, err := env.svc.ListInvites(context.Background(), authz.User(env.fx.Owner.ID), env.fx.Asset.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	ids := []string{rows[0].ID.String(), rows[1].ID.String()}
	require.ElementsMatch(t, []string{first.ID.String(), second.ID.String()}, ids)
}

func TestGuestViewLoadsScopedAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	email := "client@example.com"
	invite, err := env.svc.Issue(ctx, IssueInput{
		AssetID:          env.fx.Asset.ID,
		Permission:       enums.SharePermissionComment,
		CreatedBy:        env.fx.Owner.ID,
		ReviewerEmail:    &email,
		WatermarkEnabled: true,
	})
	require.NoError(t, err)

	review, err := env.svc.GuestView(ctx, authz.Guest(invite.Token))
	require.NoError(t, err)
	require.Equal(t, env.fx.Asset.ID, review.Asset.ID)
	require.Len(t, review.Versions, 1)
	require.Empty(t, review.Comments)
	require.Equal(t, enums.SharePermissionComment, review.Permission)
	require.Equal(t, Watermark{Enabled: true, Text: "client@example.com"}, review.Watermark)

	_, err = env.svc.GuestView(ctx, authz.User(env.fx.Owner.ID))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestWatermarkText(t *testing.T) {
	custom := "ACME internal"
	email := "a@b.co"
	cases := []struct {
		name   string
		invite models.ReviewInvite
		want   Watermark
	}{
		{name: "disabled", invite: models.ReviewInvite{WatermarkText: &custom}, want: Watermark{}},
		{name: "custom text", invite: models.ReviewInvite{WatermarkEnabled: true, WatermarkText: &custom, ReviewerEmail: &email}, want: Watermark{Enabled: true, Text: custom}},
		{name: "reviewer email", invite: models.ReviewInvite{WatermarkEnabled: true, ReviewerEmail: &email}, want: Watermark{Enabled: true, Text: email}},
		{name: "fallback", invite: models.ReviewInvite{WatermarkEnabled: true}, want: Watermark{Enabled: true, Text: defaultWatermarkText}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, watermarkFor(&tc.invite))
		})
	}
}
