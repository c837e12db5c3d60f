package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/internal/realtime"
	"github.com/angelmondragon/reviewhub-backend/internal/repo"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
)

const (
	emailTimeout        = 15 * time.Second
	messageNotification = "notification.created"
	channelInApp        = "in_app"
	channelEmail        = "email"
	resultOK            = "ok"
	resultError         = "error"
	defaultEmailSubject = "ReviewHub"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

// Event is one domain occurrence to fan out. AffectedUserIDs is the candidate
// audience; the dispatcher narrows it.
type Event struct {
	Type            enums.NotificationType
	ActorID         *uuid.UUID
	TeamID          *uuid.UUID
	ProjectID       *uuid.UUID
	AssetID         *uuid.UUID
	Title           string
	Message         string
	AffectedUserIDs []uuid.UUID
}

// Summary counts what a Dispatch call did. It is informational only.
type Summary struct {
	InApp    int
	Emailed  int
	Digested int
	Skipped  int
}

type DispatcherParams struct {
	Repo      *Repository
	Tx        txRunner
	Authz     authorizer
	Realtime  realtime.Publisher
	Mailer    sendgrid.Sender
	Metrics   *metrics.ReviewMetrics
	Logger    *logger.Logger
	PublicURL string
}

// Dispatcher turns domain events into in-app rows, realtime pushes and email.
type Dispatcher struct {
	repo      *Repository
	tx        txRunner
	authz     authorizer
	realtime  realtime.Publisher
	mailer    sendgrid.Sender
	metrics   *metrics.ReviewMetrics
	logg      *logger.Logger
	publicURL string
	now       func() time.Time
	inflight  sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	pub := params.Realtime
	if pub == nil {
		pub = realtime.Noop{}
	}
	mailer := params.Mailer
	if mailer == nil {
		mailer = sendgrid.Noop{}
	}
	return &Dispatcher{
		repo:      params.Repo,
		tx:        params.Tx,
		authz:     params.Authz,
		realtime:  pub,
		mailer:    mailer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		now:       db.UTCNow,
	}, nil
}

// Dispatch delivers ev to every eligible recipient. Per-recipient failures
// are combined and logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Summary {
	var (
		summary Summary
		errs    error
	)
	for _, userID := range repo.Dedupe(ev.AffectedUserIDs) {
		if ev.ActorID != nil && *ev.ActorID == userID {
			summary.Skipped++
			continue
		}
		if !d.canSee(ctx, userID, ev) {
			summary.Skipped++
			continue
		}
		if err := d.deliver(ctx, userID, ev, &summary); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recipient %s: %w", userID, err))
		}
	}
	if errs != nil && d.logg != nil {
		d.logg.Error(d.logg.WithFields(ctx, map[string]any{
			"event_type": string(ev.Type),
			"failures":   len(multierr.Errors(errs)),
		}), "notification dispatch had failures", errs)
	}
	return summary
}

// Wait blocks until queued emails have been handed to the mailer.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// canSee drops recipients who lost access since the event was produced.
func (d *Dispatcher) canSee(ctx context.Context, userID uuid.UUID, ev Event) bool {
	var (
		ref    authz.Ref
		action permissions.Action
	)
	switch {
	case ev.AssetID != nil:
		ref, action = authz.AssetRef(*ev.AssetID), permissions.AssetView
	case ev.ProjectID != nil:
		ref, action = authz.ProjectRef(*ev.ProjectID), permissions.ProjectView
	case ev.TeamID != nil:
		ref, action = authz.TeamRef(*ev.TeamID), permissions.TeamView
	default:
		return true
	}
	_, err := d.authz.Require(ctx, authz.User(userID), ref, action)
	return err == nil
}

func (d *Dispatcher) deliver(ctx context.Context, userID uuid.UUID, ev Event, summary *Summary) error {
	pref, err := d.preference(ctx, userID, ev.Type)
	if err != nil {
		return err
	}

	if pref.InAppEnabled {
		digest := pref.EmailEnabled && pref.Frequency == enums.NotificationFrequencyDigest
		row := &models.Notification{
			UserID:        userID,
			Type:          ev.Type,
			Title:         ev.Title,
			Message:       ev.Message,
			ProjectID:     ev.ProjectID,
			AssetID:       ev.AssetID,
			ActorID:       ev.ActorID,
			DigestPending: digest,
		}
		err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
			r := d.repo.WithTx(tx)
			if err := r.Create(ctx, row); err != nil {
				return err
			}
			return r.IncrementUnread(ctx, userID, d.now())
		})
		if err != nil {
			d.metrics.Notification(channelInApp, resultError)
			return fmt.Errorf("store notification: %w", err)
		}
		d.metrics.Notification(channelInApp, resultOK)
		summary.InApp++
		if digest {
			summary.Digested++
		}
		realtime.PublishAfterCommit(ctx, d.realtime, d.logg, realtime.NotificationsChannel(userID), realtime.Message{
			Type: messageNotification,
			Data: row,
			At:   row.CreatedAt,
		})
	}

	if pref.EmailEnabled && pref.Frequency == enums.NotificationFrequencyImmediate {
		user, err := d.repo.FindUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load recipient: %w", err)
		}
		d.sendAsync(ctx, user.Email, ev)
		summary.Emailed++
	}
	return nil
}

// preference falls back to everything on, delivered immediately.
func (d *Dispatcher) preference(ctx context.Context, userID uuid.UUID, eventType enums.NotificationType) (*models.NotificationPreference, error) {
	pref, err := d.repo.Preference(ctx, userID, eventType)
	if err == nil {
		return pref, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultPreference(userID, eventType), nil
	}
	return nil, fmt.Errorf("load preference: %w", err)
}

func (d *Dispatcher) sendAsync(ctx context.Context, to string, ev Event) {
	subject := strings.TrimSpace(ev.Title)
	if subject == "" {
		subject = defaultEmailSubject
	}
	body := d.renderEmail(ev)
	sendCtx := context.WithoutCancel(ctx)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		sendCtx, cancel := context.WithTimeout(sendCtx, emailTimeout)
		defer cancel()
		if err := d.mailer.Send(sendCtx, to, subject, body); err != nil {
			d.metrics.Notification(channelEmail, resultError)
			if d.logg != nil {
				d.logg.WarnErr(d.logg.WithField(sendCtx, "event_type", string(ev.Type)), "notification email failed", err)
			}
			return
		}
		d.metrics.Notification(channelEmail, resultOK)
	}()
}

func (d *Dispatcher) renderEmail(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>%s</strong></p>", html.EscapeString(ev.Title))
	if ev.Message != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(ev.Message))
	}
	if ev.AssetID != nil && d.publicURL != "" {
		fmt.Fprintf(&b, "<p><a href=\"%s/assets/%s\">Open in ReviewHub</a></p>", d.publicURL, ev.AssetID)
	}
	return b.String()
}

func DefaultPreference(userID uuid.UUID, eventType enums.NotificationType) *models.NotificationPreference {
	return &models.NotificationPreference{
		UserID:       userID,
		EventType:    eventType,
		InAppEnabled: true,
		EmailEnabled: true,
		Frequency:    enums.NotificationFrequencyImmediate,
	}
}
