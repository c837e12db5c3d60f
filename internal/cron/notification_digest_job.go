package cron

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/reviewhub-backend/internal/notifications"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
)

const (
	digestBatchSize = 500
	digestSubject   = "Your ReviewHub digest"
)

type digestRepo interface {
	PendingDigests(ctx context.Context, limit int) ([]notifications.PendingDigest, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ClearDigest(ctx context.Context, ids []uuid.UUID) error
}

type NotificationDigestJobParams struct {
	Logger     *logger.Logger
	Repository digestRepo
	Mailer     sendgrid.Sender
	PublicURL  string
	BatchSize  int
}

// NewNotificationDigestJob emails each user one summary of their digest-pending
// notifications. Rows are cleared only after the send succeeds, so a failed
// send is retried next cycle.
func NewNotificationDigestJob(params NotificationDigestJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = digestBatchSize
	}
	return &notificationDigestJob{
		logg:      params.Logger,
		repo:      params.Repository,
		mailer:    params.Mailer,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		batch:     batch,
	}, nil
}

type notificationDigestJob struct {
	logg      *logger.Logger
	repo      digestRepo
	mailer    sendgrid.Sender
	publicURL string
	batch     int
}

func (j *notificationDigestJob) Name() string { return "notification-digest" }

func (j *notificationDigestJob) Run(ctx context.Context) error {
	pending, err := j.repo.PendingDigests(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("load pending digests: %w", err)
	}

	var (
		sent int
		errs error
	)
	for _, digest := range pending {
		if err := j.send(ctx, digest); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: %w", digest.UserID, err))
			continue
		}
		sent++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"users":  len(pending),
		"sent":   sent,
		"failed": len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "notification digest complete")
	return errs
}

func (j *notificationDigestJob) send(ctx context.Context, digest notifications.PendingDigest) error {
	user, err := j.repo.FindUser(ctx, digest.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if err := j.mailer.Send(ctx, user.Email, digestSubject, j.render(user, digest.Items)); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(digest.Items))
	for _, item := range digest.Items {
		ids = append(ids, item.ID)
	}
	return j.repo.ClearDigest(ctx, ids)
}

func (j *notificationDigestJob) render(user *models.User, items []models.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s, here is what happened since your last digest:</p><ul>", html.EscapeString(user.Name))
	for _, item := range items {
		fmt.Fprintf(&b, "<li><strong>%s</strong>", html.EscapeString(item.Title))
		if item.Message != "" {
			fmt.Fprintf(&b, " %s", html.EscapeString(item.Message))
		}
		fmt.Fprintf(&b, " <small>%s</small>", item.CreatedAt.UTC().Format(time.RFC822))
		if item.AssetID != nil && j.publicURL != "" {
			fmt.Fprintf(&b, " <a href=\"%s/assets/%s\">Open</a>", j.publicURL, item.AssetID)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
