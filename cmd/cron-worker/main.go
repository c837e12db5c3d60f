package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/reviewhub-backend/internal/cron"
	"github.com/angelmondragon/reviewhub-backend/internal/notifications"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/instance"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/migrate"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/redis"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
)

const lockName = "cron-worker"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: lockName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	cfg.Service.Kind = lockName
	logg = logger.New(logger.Options{
		ServiceName: lockName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer closeLogged(ctx, logg, "database", dbClient.Close)
	exitOn(ctx, logg, "run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	exitOn(ctx, logg, "connect redis", err)
	defer closeLogged(ctx, logg, "redis", redisClient.Close)

	var mailer sendgrid.Sender = sendgrid.Noop{Logg: logg}
	if cfg.Sendgrid.APIKey != "" {
		client, err := sendgrid.NewClient(cfg.Sendgrid, logg)
		exitOn(ctx, logg, "create sendgrid client", err)
		mailer = client
	}

	jobs, err := buildRegistry(cfg, logg, dbClient, mailer)
	exitOn(ctx, logg, "register cron jobs", err)

	// Held for at most one interval.
	lock, err := cron.NewRedisLock(redisClient, lockName, cfg.Cron.Interval)
	exitOn(ctx, logg, "create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	exitOn(ctx, logg, "create cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
		"jobs":        len(jobs.Jobs()),
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(runCtx, "cron worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "cron worker cannot "+step, err)
	os.Exit(1)
}

func closeLogged(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, mailer sendgrid.Sender) (*cron.Registry, error) {
	conn := dbClient.DB()
	notificationsRepo := notifications.NewRepository(conn)

	digest, err := cron.NewNotificationDigestJob(cron.NotificationDigestJobParams{
		Logger:     logg,
		Repository: notificationsRepo,
		Mailer:     mailer,
		PublicURL:  cfg.App.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationsRepo,
		Retention:  cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(conn),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(digest, cleanup, retention), nil
}
