package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
)

func TestOutboxRetentionKeepsUnpublishedRows(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stale := now.Add(-20 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	events := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventCommentAdded, AggregateType: enums.AggregateAsset, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &stale},
		{ID: uuid.New(), EventType: enums.EventCommentAdded, AggregateType: enums.AggregateAsset, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &recent},
		{ID: uuid.New(), EventType: enums.EventCommentAdded, AggregateType: enums.AggregateAsset, AggregateID: uuid.New(), Payload: []byte(`{}`)},
	}
	require.NoError(t, conn.Create(&events).Error)

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         client,
		Repository: outbox.NewRepository(conn),
	})
	require.NoError(t, err)
	job := jobIface.(*pruneJob)
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, ev := range remaining {
		require.NotEqual(t, events[0].ID, ev.ID)
	}
}
