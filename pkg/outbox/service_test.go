package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)

	actor := uuid.New()
	assetID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventVersionUploaded,
			AggregateType: enums.AggregateAsset,
			AggregateID:   assetID,
			Actor:         &outbox.ActorRef{UserID: &actor, Label: "Dana"},
			Data: payloads.VersionUploadedEvent{
				ReviewEvent:   payloads.ReviewEvent{ProjectID: uuid.New(), Title: "v2"},
				VersionNumber: 2,
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.Pending(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, assetID, rows[0].AggregateID)

	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, 1, env.Version)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, "Dana", env.Actor.Label)
	require.Contains(t, string(env.Data), `"versionNumber":2`)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventMemberAdded,
			AggregateType: enums.AggregateTeam,
			AggregateID:   uuid.New(),
			Data:          payloads.MemberAddedEvent{},
		}); err != nil {
			return err
		}
		return errors.New("domain write failed")
	})
	require.Error(t, err)

	rows, err := repo.Pending(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitValidation(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)

	require.Error(t, svc.Emit(context.Background(), nil, outbox.DomainEvent{}))
	err := svc.Emit(context.Background(), client.DB(), outbox.DomainEvent{
		EventType:     enums.OutboxEventType("bogus"),
		AggregateType: enums.AggregateAsset,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)
}

func TestRepositoryLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	repo := outbox.NewRepository(conn)
	ctx := context.Background()

	fresh := models.OutboxEvent{EventType: enums.EventShareViewed, AggregateType: enums.AggregateReviewInvite, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	exhausted := models.OutboxEvent{EventType: enums.EventShareViewed, AggregateType: enums.AggregateReviewInvite, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 5}
	require.NoError(t, conn.Create(&fresh).Error)
	require.NoError(t, conn.Create(&exhausted).Error)

	rows, err := repo.Pending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, fresh.ID, rows[0].ID)

	require.NoError(t, repo.Retry(conn, fresh.ID, errors.New("pubsub down")))
	var reloaded models.OutboxEvent
	require.NoError(t, conn.First(&reloaded, "id = ?", fresh.ID).Error)
	require.Equal(t, 1, reloaded.AttemptCount)
	require.Equal(t, "pubsub down", *reloaded.LastError)

	require.NoError(t, repo.Published(conn, fresh.ID))
	rows, err = repo.Pending(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the exhausted row stays unpublished")

	deleted, err := repo.PrunePublished(nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestClaimAndParkInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	repo := outbox.NewRepository(conn)
	ctx := context.Background()

	ok := models.OutboxEvent{EventType: enums.EventCommentAdded, AggregateType: enums.AggregateComment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	bad := models.OutboxEvent{EventType: enums.EventCommentAdded, AggregateType: enums.AggregateComment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, conn.Create(&ok).Error)
	require.NoError(t, conn.Create(&bad).Error)

	require.Error(t, repo.Published(nil, ok.ID))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.Claim(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.NoError(t, repo.Published(tx, ok.ID))
		return repo.Park(tx, bad.ID, errors.New("no topic"), 3)
	})
	require.NoError(t, err)

	rows, err := repo.Pending(ctx, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)

	var parked models.OutboxEvent
	require.NoError(t, conn.First(&parked, "id = ?", bad.ID).Error)
	require.Equal(t, 3, parked.AttemptCount)
	require.Equal(t, "no topic", *parked.LastError)
}
