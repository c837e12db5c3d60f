package activity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/pagination"
)

func TestAppendRecordsActorAndDetails(t *testing.T) {
	client := dbtest.Open(t)
	fx := dbtest.MustSeed(t, client.DB())
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return Append(ctx, tx, Entry{
			Actor:     authz.User(fx.Owner.ID),
			Action:    ActionVersionUploaded,
			ProjectID: fx.Project.ID,
			AssetID:   &fx.Asset.ID,
			Details:   map[string]any{"versionNumber": 2},
		})
	})
	require.NoError(t, err)

	var row models.ActivityLogEntry
	require.NoError(t, client.DB().First(&row).Error)
	require.Equal(t, string(ActionVersionUploaded), row.Action)
	require.NotNil(t, row.ActorID)
	require.Equal(t, fx.Owner.ID, *row.ActorID)
	require.Equal(t, fx.Owner.ID.String(), row.ActorLabel)

	var details map[string]any
	require.NoError(t, json.Unmarshal(row.Details, &details))
	require.EqualValues(t, 2, details["versionNumber"])
}

func TestAppendGuestActorHasNoID(t *testing.T) {
	client := dbtest.Open(t)
	fx := dbtest.MustSeed(t, client.DB())
	guest := authz.Guest("tok")
	guest.GuestEmail = "client@example.com"

	require.NoError(t, Append(context.Background(), client.DB(), Entry{Actor: guest, Action: ActionCommentAdded, ProjectID: fx.Project.ID}))

	var row models.ActivityLogEntry
	require.NoError(t, client.DB().First(&row).Error)
	require.Nil(t, row.ActorID)
	require.Equal(t, "guest:client@example.com", row.ActorLabel)
}

func TestAppendRequiresProject(t *testing.T) {
	client := dbtest.Open(t)
	err := Append(context.Background(), client.DB(), Entry{Action: ActionCommentAdded})
	require.Error(t, err)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	client := dbtest.Open(t)
	fx := dbtest.MustSeed(t, client.DB())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, Append(ctx, client.DB(), Entry{
			Actor:     authz.User(fx.Owner.ID),
			Action:    ActionCommentAdded,
			ProjectID: fx.Project.ID,
			Details:   map[string]any{"n": i},
		}))
	}

	az, err := authz.NewService(authz.NewRepository(client.DB()))
	require.NoError(t, err)
	svc, err := NewService(client.DB(), az)
	require.NoError(t, err)

	first, err := svc.List(ctx, authz.User(fx.Owner.ID), fx.Project.ID, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, authz.User(fx.Owner.ID), fx.Project.ID, pagination.Params{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, e := range append(first.Items, second.Items...) {
		require.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

func TestListDeniesViewerlessOutsider(t *testing.T) {
	client := dbtest.Open(t)
	fx := dbtest.MustSeed(t, client.DB())
	outsider := dbtest.MustCreateUser(t, client.DB(), "outsider")
	az, _ := authz.NewService(authz.NewRepository(client.DB()))
	svc, _ := NewService(client.DB(), az)

	_, err := svc.List(context.Background(), authz.User(outsider.ID), fx.Project.ID, pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	viewer := dbtest.MustCreateUser(t, client.DB(), "viewer")
	dbtest.MustAddMember(t, client.DB(), fx.Team.ID, viewer.ID, enums.MemberRoleViewer)
	_, err = svc.List(context.Background(), authz.User(viewer.ID), fx.Project.ID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
