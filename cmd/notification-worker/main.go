package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/notifications"
	"github.com/angelmondragon/reviewhub-backend/internal/realtime"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/instance"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/migrate"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/registry"
	"github.com/angelmondragon/reviewhub-backend/pkg/pubsub"
	"github.com/angelmondragon/reviewhub-backend/pkg/redis"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "notification-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "notification-worker"

	logg = logger.New(logger.Options{
		ServiceName: "notification-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.Options{RequireNotificationSubscription: true}, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.NotificationSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "notification subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	events, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)

	conn := dbClient.DB()
	authzService, err := authz.NewService(authz.NewRepository(conn))
	requireResource(ctx, logg, "authz service", err)

	var publisher realtime.Publisher = realtime.Noop{}
	if cfg.FeatureFlags.RealtimeFanout {
		redisPublisher, err := realtime.NewRedisPublisher(redisClient, logg)
		requireResource(ctx, logg, "realtime publisher", err)
		publisher = redisPublisher
	}

	var mailer sendgrid.Sender = sendgrid.Noop{Logg: logg}
	if cfg.Sendgrid.APIKey != "" {
		client, err := sendgrid.NewClient(cfg.Sendgrid, logg)
		requireResource(ctx, logg, "sendgrid client", err)
		mailer = client
	}

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:      notifications.NewRepository(conn),
		Tx:        dbClient,
		Authz:     authzService,
		Realtime:  publisher,
		Mailer:    mailer,
		Metrics:   metrics.NewReviewMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
		PublicURL: cfg.App.PublicURL,
	})
	requireResource(ctx, logg, "notification dispatcher", err)

	consumer, err := notifications.NewConsumer(dispatcher, registry.NewReviewDecoders(events), subscription, manager, logg)
	requireResource(ctx, logg, "notification consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"instance":     instance.GetID(cfg.Service.Kind),
		"subscription": cfg.PubSub.NotificationSubscription,
	})
	logg.Info(runCtx, "notification worker ready")

	runErr := consumer.Run(runCtx)
	dispatcher.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "notification worker failed", runErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "notification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
