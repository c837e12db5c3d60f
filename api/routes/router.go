package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/reviewhub-backend/api/controllers"
	"github.com/angelmondragon/reviewhub-backend/api/middleware"
	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/annotations"
	"github.com/angelmondragon/reviewhub-backend/internal/approvals"
	"github.com/angelmondragon/reviewhub-backend/internal/assets"
	"github.com/angelmondragon/reviewhub-backend/internal/auth"
	"github.com/angelmondragon/reviewhub-backend/internal/notifications"
	"github.com/angelmondragon/reviewhub-backend/internal/projects"
	"github.com/angelmondragon/reviewhub-backend/internal/shares"
	"github.com/angelmondragon/reviewhub-backend/internal/summaries"
	"github.com/angelmondragon/reviewhub-backend/internal/teams"
	"github.com/angelmondragon/reviewhub-backend/internal/versions"
	"github.com/angelmondragon/reviewhub-backend/pkg/auth/session"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
)

// redisStore is the slice of pkg/redis the HTTP layer needs.
type redisStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Params bundles everything the router mounts.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.ReviewMetrics
	Gatherer prometheus.Gatherer
	Redis    redisStore
	Sessions session.AccessSessionChecker
	Ready    map[string]controllers.Pinger

	Auth          auth.Service
	Teams         teams.Service
	Projects      projects.Service
	Activity      activity.Service
	Assets        assets.Service
	Versions      versions.Service
	Annotations   annotations.Service
	Approvals     approvals.Service
	Shares        shares.Service
	Summaries     summaries.Service
	Notifications notifications.Service
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	maxUpload := cfg.Review.MaxUploadBytes()
	maxAttach := cfg.Review.MaxAttachmentBytes()
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	idem := middleware.Idempotency(p.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Ready, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, p.Redis, logg)).Post("/register", controllers.AuthRegister(p.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(p.Auth, logg))
	})

	r.Route("/api/guest/reviews/{token}", func(r chi.Router) {
		r.Use(middleware.GuestToken(p.Shares, p.Redis, middleware.NewGuestPolicy(cfg.GuestRateLimit), logg))

		r.Get("/", controllers.GuestReview(p.Shares, logg))
		r.Post("/views", controllers.GuestRecordView(p.Shares, logg))
		r.With(idem).Post("/comments", controllers.GuestAddComment(p.Annotations, logg))
		r.Put("/comments/{commentId}/reactions/{emoji}", controllers.AddReaction(p.Annotations, logg))
		r.With(idem).Post("/annotations", controllers.GuestAddAnnotation(p.Annotations, logg))
		r.With(idem).Post("/approvals/{stepId}/decide", controllers.DecideApproval(p.Approvals, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))

		r.Route("/teams", func(r chi.Router) {
			r.With(idem).Post("/", controllers.CreateTeam(p.Teams, logg))
			r.Get("/", controllers.ListTeams(p.Teams, logg))
			r.Get("/{teamId}/members", controllers.ListTeamMembers(p.Teams, logg))
			r.Put("/{teamId}/members", controllers.SetTeamMember(p.Teams, logg))
			r.Delete("/{teamId}/members/{userId}", controllers.RemoveTeamMember(p.Teams, logg))
			r.With(idem).Post("/{teamId}/projects", controllers.CreateProject(p.Projects, logg))
			r.Get("/{teamId}/projects", controllers.ListProjects(p.Projects, logg))
		})

		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Get("/", controllers.GetProject(p.Projects, logg))
			r.Patch("/", controllers.UpdateProject(p.Projects, logg))
			r.Delete("/", controllers.DeleteProject(p.Projects, logg))
			r.Get("/activity", controllers.ListProjectActivity(p.Activity, logg))
			r.With(idem).Post("/assets", controllers.CreateAsset(p.Assets, maxUpload, logg))
			r.Get("/assets", controllers.ListAssets(p.Assets, logg))
		})

		r.Route("/assets/{assetId}", func(r chi.Router) {
			r.Get("/", controllers.GetAsset(p.Assets, logg))
			r.Delete("/", controllers.DeleteAsset(p.Assets, logg))
			r.Put("/watch", controllers.WatchAsset(p.Assets, true, logg))
			r.Delete("/watch", controllers.WatchAsset(p.Assets, false, logg))
			r.Post("/versions", controllers.CreateVersion(p.Versions, maxUpload, logg))
			r.Get("/versions", controllers.ListVersions(p.Versions, logg))
			r.Get("/comments", controllers.ListComments(p.Annotations, logg))
			r.With(idem).Post("/comments", controllers.AddComment(p.Annotations, logg))
			r.Get("/approvals", controllers.ListApprovals(p.Approvals, logg))
			r.With(idem).Post("/approvals", controllers.AddApprovalStep(p.Approvals, logg))
			r.Get("/shares", controllers.ListShares(p.Shares, logg))
			r.With(idem).Post("/shares", controllers.IssueShare(p.Shares, logg))
			r.Post("/summary", controllers.SummarizeAsset(p.Summaries, logg))
		})

		r.Route("/versions", func(r chi.Router) {
			r.Get("/compare", controllers.CompareVersions(p.Versions, logg))
			r.Get("/{versionId}", controllers.GetVersion(p.Versions, logg))
			r.Delete("/{versionId}", controllers.DeleteVersion(p.Versions, logg))
			r.With(idem).Post("/{versionId}/annotations", controllers.AddAnnotation(p.Annotations, logg))
			r.Get("/{versionId}/annotations", controllers.ListAnnotations(p.Annotations, logg))
		})

		r.Route("/comments/{commentId}", func(r chi.Router) {
			r.Delete("/", controllers.DeleteComment(p.Annotations, logg))
			r.Post("/resolve", controllers.CommentStatus(p.Annotations, true, logg))
			r.Post("/reopen", controllers.CommentStatus(p.Annotations, false, logg))
			r.Put("/reactions/{emoji}", controllers.AddReaction(p.Annotations, logg))
			r.Delete("/reactions/{emoji}", controllers.RemoveReaction(p.Annotations, logg))
			r.Post("/attachments", controllers.AddAttachment(p.Annotations, maxAttach, logg))
		})

		r.Route("/annotations/{annotationId}", func(r chi.Router) {
			r.Patch("/", controllers.MoveAnnotation(p.Annotations, logg))
			r.Delete("/", controllers.DeleteAnnotation(p.Annotations, logg))
		})

		r.Route("/approvals/{stepId}", func(r chi.Router) {
			r.With(idem).Post("/decide", controllers.DecideApproval(p.Approvals, logg))
			r.Post("/reset", controllers.ResetApproval(p.Approvals, logg))
			r.Post("/notify", controllers.NotifyApproval(p.Approvals, logg))
			r.Delete("/", controllers.DeleteApproval(p.Approvals, logg))
		})

		r.Route("/shares/{inviteId}", func(r chi.Router) {
			r.Post("/revoke", controllers.RevokeShare(p.Shares, logg))
			r.Get("/analytics", controllers.ShareAnalytics(p.Shares, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.Get("/preferences", controllers.GetNotificationPreferences(p.Notifications, logg))
			r.Put("/preferences", controllers.UpdateNotificationPreference(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	return r
}
