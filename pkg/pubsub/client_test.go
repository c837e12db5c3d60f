package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
)

func TestSubscriptionNames(t *testing.T) {
	cfg := config.PubSubConfig{NotificationSubscription: " rv-notification-worker "}
	require.Empty(t, subscriptionNames(cfg, Options{}))
	require.Equal(t, []string{"rv-notification-worker"}, subscriptionNames(cfg, Options{RequireNotificationSubscription: true}))
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "review-prj"}
	require.Equal(t, "projects/review-prj/subscriptions/sub", c.resourceName(kindSubscription, "sub"))
	require.Equal(t, "projects/other/subscriptions/sub", c.resourceName(kindSubscription, "projects/other/subscriptions/sub"))
	require.Equal(t, "projects/review-prj/topics/rv-notification-events", c.resourceName(kindTopic, " rv-notification-events "))
	require.Equal(t, "projects/review-prj/topics/projects/other/subscriptions/sub", c.resourceName(kindTopic, "projects/other/subscriptions/sub"),
		"a subscription path is not a topic path")
	require.Empty(t, c.resourceName(kindTopic, "  "))

	var nilClient *Client
	require.Empty(t, nilClient.resourceName(kindTopic, "x"))
	require.Nil(t, nilClient.Publisher("x"))
	require.Nil(t, nilClient.NotificationSubscription())
	require.Error(t, nilClient.Ping(context.Background()))
	require.NoError(t, nilClient.Close())
}

func TestNewClientRequiresProjectAndSubscription(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{}, Options{}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "review-prj"}, config.PubSubConfig{}, Options{RequireNotificationSubscription: true}, nil)
	require.ErrorIs(t, err, errNoSubscriptions)
}
