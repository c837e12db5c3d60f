package main

import (
	"fmt"

	"github.com/angelmondragon/reviewhub-backend/api/routes"
	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/approvals"
	"github.com/angelmondragon/reviewhub-backend/internal/assets"
	"github.com/angelmondragon/reviewhub-backend/internal/auth"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/notifications"
	"github.com/angelmondragon/reviewhub-backend/internal/projects"
	"github.com/angelmondragon/reviewhub-backend/internal/realtime"
	"github.com/angelmondragon/reviewhub-backend/internal/shares"
	"github.com/angelmondragon/reviewhub-backend/internal/summaries"
	"github.com/angelmondragon/reviewhub-backend/internal/teams"
	"github.com/angelmondragon/reviewhub-backend/internal/users"
	"github.com/angelmondragon/reviewhub-backend/internal/versions"
	"github.com/angelmondragon/reviewhub-backend/pkg/auth/session"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/openai"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
	"github.com/angelmondragon/reviewhub-backend/pkg/storage/gcs"
)

// deps are the process-wide clients every service shares.
type deps struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	storage  *gcs.Client
	sessions *session.Manager
	realtime realtime.Publisher
	mailer   sendgrid.Sender
	metrics  *metrics.ReviewMetrics
}

// buildServices fills every service field of the router params.
func buildServices(d deps, params *routes.Params) error {
	conn := d.db.DB()
	cfg := d.cfg
	emitter := outbox.NewService(outbox.NewRepository(conn), d.logg)

	authzService, err := authz.NewService(authz.NewRepository(conn))
	if err != nil {
		return fmt.Errorf("authz: %w", err)
	}
	userRepo := users.NewRepository(conn)

	if params.Auth, err = auth.NewService(auth.ServiceParams{
		Users:          userRepo,
		SessionManager: d.sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         d.logg,
	}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if params.Teams, err = teams.NewService(teams.ServiceParams{
		Repo:   teams.NewRepository(conn),
		Users:  userRepo,
		Tx:     d.db,
		Authz:  authzService,
		Outbox: emitter,
	}); err != nil {
		return fmt.Errorf("teams: %w", err)
	}

	if params.Projects, err = projects.NewService(projects.NewRepository(conn), d.db, authzService); err != nil {
		return fmt.Errorf("projects: %w", err)
	}
	if params.Activity, err = activity.NewService(conn, authzService); err != nil {
		return fmt.Errorf("activity: %w", err)
	}

	versionRepo := versions.NewRepository(conn)
	versionService, err := versions.NewService(versions.ServiceParams{
		Repo:           versionRepo,
		Tx:             d.db,
		Authz:          authzService,
		Outbox:         emitter,
		Storage:        d.storage,
		Metrics:        d.metrics,
		Logger:         d.logg,
		MaxUploadBytes: cfg.Review.MaxUploadBytes(),
	})
	if err != nil {
		return fmt.Errorf("versions: %w", err)
	}
	params.Versions = versionService

	if params.Assets, err = assets.NewService(assets.ServiceParams{
		Repo:     assets.NewRepository(conn),
		Tx:       d.db,
		Authz:    authzService,
		Versions: versionService,
		Logger:   d.logg,
	}); err != nil {
		return fmt.Errorf("assets: %w", err)
	}

	commentRepo := annotations.NewRepository(conn)
	if params.Annotations, err = annotations.NewService(annotations.ServiceParams{
		Repo:               commentRepo,
		Tx:                 d.db,
		Authz:              authzService,
		Outbox:             emitter,
		Storage:            d.storage,
		Realtime:           d.realtime,
		Metrics:            d.metrics,
		Logger:             d.logg,
		MaxAttachmentBytes: cfg.Review.MaxAttachmentBytes(),
	}); err != nil {
		return fmt.Errorf("annotations: %w", err)
	}

	if params.Approvals, err = approvals.NewService(approvals.ServiceParams{
		Repo:      approvals.NewRepository(conn),
		Tx:        d.db,
		Authz:     authzService,
		Outbox:    emitter,
		Mailer:    d.mailer,
		Metrics:   d.metrics,
		Logger:    d.logg,
		PublicURL: cfg.App.PublicURL,
	}); err != nil {
		return fmt.Errorf("approvals: %w", err)
	}

	inviteMailer := d.mailer
	if !cfg.FeatureFlags.InviteEmails {
		inviteMailer = sendgrid.Noop{Logg: d.logg}
	}
	hashKey := cfg.Review.ShareIPHashKey
	if hashKey == "" {
		hashKey = cfg.JWT.Secret
	}
	if params.Shares, err = shares.NewService(shares.ServiceParams{
		Repo:       shares.NewRepository(conn),
		Tx:         d.db,
		Authz:      authzService,
		Outbox:     emitter,
		Comments:   commentRepo,
		Versions:   versionRepo,
		Mailer:     inviteMailer,
		Metrics:    d.metrics,
		Logger:     d.logg,
		DefaultTTL: cfg.Review.DefaultShareTTL,
		IPHashKey:  []byte(hashKey),
		PublicURL:  cfg.App.PublicURL,
	}); err != nil {
		return fmt.Errorf("shares: %w", err)
	}

	var summarizer openai.Summarizer
	if cfg.FeatureFlags.AISummaries && cfg.OpenAI.APIKey != "" {
		client, err := openai.NewClient(cfg.OpenAI)
		if err != nil {
			return fmt.Errorf("openai: %w", err)
		}
		summarizer = client
	}
	if params.Summaries, err = summaries.NewService(summaries.ServiceParams{
		Comments:   commentRepo,
		Tx:         d.db,
		Authz:      authzService,
		Summarizer: summarizer,
		Logger:     d.logg,
	}); err != nil {
		return fmt.Errorf("summaries: %w", err)
	}

	if params.Notifications, err = notifications.NewService(notifications.NewRepository(conn), d.db); err != nil {
		return fmt.Errorf("notifications: %w", err)
	}
	return nil
}
