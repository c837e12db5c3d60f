package summaries

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/openai"
)

type fakeSummarizer struct {
	prompt string
	err    error
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.prompt = text
	if f.err != nil {
		return "", f.err
	}
	return "  Two notes, one open.  ", nil
}

func newService(t *testing.T, summarizer openai.Summarizer) (Service, *gorm.DB, dbtest.Fixture) {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	az, err := authz.NewService(authz.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Comments:   annotations.NewRepository(conn),
		Tx:         client,
		Authz:      az,
		Summarizer: summarizer,
	})
	require.NoError(t, err)
	return svc, conn, dbtest.MustSeed(t, conn)
}

func seedComments(t *testing.T, conn *gorm.DB, fx dbtest.Fixture) {
	t.Helper()
	guest := "Client"
	tc := 75.4
	rows := []models.Comment{
		{AssetID: fx.Asset.ID, AuthorID: &fx.Owner.ID, Body: "Logo  is\ntoo small", Status: enums.CommentStatusResolved},
		{AssetID: fx.Asset.ID, GuestName: &guest, Body: "Music too loud here", TimecodeSeconds: &tc, Status: enums.CommentStatusOpen},
	}
	for i := range rows {
		require.NoError(t, conn.Create(&rows[i]).Error)
	}
}

func TestSummarizeBuildsThreadAndLogsActivity(t *testing.T) {
	fake := &fakeSummarizer{}
	svc, conn, fx := newService(t, fake)
	seedComments(t, conn, fx)

	summary, err := svc.Summarize(context.Background(), authz.User(fx.Owner.ID), fx.Asset.ID)
	require.NoError(t, err)
	require.Equal(t, "Two notes, one open.", summary.Text)
	require.Equal(t, 2, summary.CommentCount)
	require.Equal(t, 1, summary.OpenCount)
	require.Contains(t, fake.prompt, "Logo is too small")
	require.Contains(t, fake.prompt, "Client (guest) @01:15: Music too loud here")
	require.Equal(t, 2, strings.Count(fake.prompt, "\n"))

	var entries int64
	require.NoError(t, conn.Model(&models.ActivityLogEntry{}).Where("action = ?", "summary.generated").Count(&entries).Error)
	require.EqualValues(t, 1, entries)
}

func TestSummarizeProviderFailureIsUpstream(t *testing.T) {
	svc, conn, fx := newService(t, &fakeSummarizer{err: errors.New("timeout")})
	seedComments(t, conn, fx)

	_, err := svc.Summarize(context.Background(), authz.User(fx.Owner.ID), fx.Asset.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))

	var entries int64
	require.NoError(t, conn.Model(&models.ActivityLogEntry{}).Count(&entries).Error)
	require.Zero(t, entries)
}

func TestSummarizeDisabledAndEmpty(t *testing.T) {
	svc, conn, fx := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Summarize(ctx, authz.User(fx.Owner.ID), fx.Asset.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	seedComments(t, conn, fx)
	_, err = svc.Summarize(ctx, authz.User(fx.Owner.ID), fx.Asset.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))
}

func TestSummarizeRequiresPermission(t *testing.T) {
	svc, conn, fx := newService(t, &fakeSummarizer{})
	viewer := dbtest.MustCreateUser(t, conn, "viewer")
	dbtest.MustAddMember(t, conn, fx.Team.ID, viewer.ID, enums.MemberRoleViewer)

	_, err := svc.Summarize(context.Background(), authz.User(viewer.ID), fx.Asset.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	invite := dbtest.MustCreateInvite(t, conn, fx.Asset.ID, fx.Owner.ID, enums.SharePermissionApprove, nil)
	_, err = svc.Summarize(context.Background(), authz.Guest(invite.Token), fx.Asset.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
