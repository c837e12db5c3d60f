// Package shares issues and tracks guest review links. A link's token is the
// only credential a guest holds; expiry is checked lazily on every access.
package shares

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/metrics"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox"
	"github.com/angelmondragon/reviewhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reviewhub-backend/pkg/security"
	"github.com/angelmondragon/reviewhub-backend/pkg/sendgrid"
)

const (
	maxShareTTL          = 365 * 24 * time.Hour
	maxWatermarkLength   = 200
	maxViewActions       = 50
	maxViewDuration      = 24 * 60 * 60
	defaultWatermarkText = "Confidential"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type commentLister interface {
	ListForAsset(ctx context.Context, assetID uuid.UUID) ([]models.Comment, error)
}

type versionLister interface {
	ListByAsset(ctx context.Context, assetID uuid.UUID) ([]models.AssetVersion, error)
}

type Service interface {
	Issue(ctx context.Context, input IssueInput) (*models.ReviewInvite, error)
	Resolve(ctx context.Context, token string) (*models.ReviewInvite, error)
	RecordView(ctx context.Context, inviteID uuid.UUID, input RecordViewInput) (*models.ReviewView, error)
	RecordGuestView(ctx context.Context, token string, input GuestViewInput) (*models.ReviewView, error)
	Revoke(ctx context.Context, p authz.Principal, inviteID uuid.UUID) error
	ListInvites(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.ReviewInvite, error)
	Analytics(ctx context.Context, p authz.Principal, inviteID uuid.UUID) (*Analytics, error)
	GuestView(ctx context.Context, p authz.Principal) (*GuestReview, error)
}

// IssueInput describes a new link. A nil ExpiresInSeconds takes the default
// TTL; zero yields a link that is already expired.
type IssueInput struct {
	AssetID          uuid.UUID
	Permission       enums.SharePermission
	ExpiresInSeconds *int64
	CreatedBy        uuid.UUID
	ReviewerEmail    *string
	WatermarkEnabled bool
	WatermarkText    *string
}

type RecordViewInput struct {
	DurationSeconds int
	Actions         []string
	ViewerIPHash    *string
}

// GuestViewInput is what a guest client reports; the address is hashed
// before it is stored.
type GuestViewInput struct {
	DurationSeconds int
	Actions         []string
	RemoteAddr      string
}

type Analytics struct {
	InviteID             uuid.UUID           `json:"inviteId"`
	ViewCount            int64               `json:"viewCount"`
	LastViewedAt         *time.Time          `json:"lastViewedAt"`
	TotalDurationSeconds int64               `json:"totalDurationSeconds"`
	UniqueViewers        int64               `json:"uniqueViewers"`
	RecentViews          []models.ReviewView `json:"recentViews"`
}

type Watermark struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text,omitempty"`
}

// GuestReview is everything a guest page renders.
type GuestReview struct {
	Asset      models.Asset          `json:"asset"`
	Versions   []models.AssetVersion `json:"versions"`
	Comments   []models.Comment      `json:"comments"`
	Permission enums.SharePermission `json:"permission"`
	Watermark  Watermark             `json:"watermark"`
	ExpiresAt  *time.Time            `json:"expiresAt,omitempty"`
}

type ServiceParams struct {
	Repo       *Repository
	Tx         txRunner
	Authz      authorizer
	Outbox     outbox.Emitter
	Comments   commentLister
	Versions   versionLister
	Mailer     sendgrid.Sender
	Metrics    *metrics.ReviewMetrics
	Logger     *logger.Logger
	DefaultTTL time.Duration
	IPHashKey  []byte
	PublicURL  string
}

type service struct {
	repo       *Repository
	tx         txRunner
	authz      authorizer
	outbox     outbox.Emitter
	comments   commentLister
	versions   versionLister
	mailer     sendgrid.Sender
	metrics    *metrics.ReviewMetrics
	logg       *logger.Logger
	defaultTTL time.Duration
	ipHashKey  []byte
	publicURL  string
	now        func() time.Time
	newToken   func() (string, error)
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("shares repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Comments == nil || params.Versions == nil {
		return nil, fmt.Errorf("comment and version listers required")
	}
	if len(params.IPHashKey) == 0 {
		return nil, fmt.Errorf("ip hash key required")
	}
	ttl := params.DefaultTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		authz:      params.Authz,
		outbox:     params.Outbox,
		comments:   params.Comments,
		versions:   params.Versions,
		mailer:     params.Mailer,
		metrics:    params.Metrics,
		logg:       params.Logger,
		defaultTTL: ttl,
		ipHashKey:  params.IPHashKey,
		publicURL:  strings.TrimRight(params.PublicURL, "/"),
		now:        db.UTCNow,
		newToken:   security.GenerateShareToken,
	}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*models.ReviewInvite, error) {
	if !input.Permission.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "permission must be view, comment or approve")
	}
	ttl := s.defaultTTL
	if input.ExpiresInSeconds != nil {
		secs := *input.ExpiresInSeconds
		if secs < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry must not be negative")
		}
		// Bounded in seconds so the Duration conversion cannot overflow.
		if secs > int64(maxShareTTL/time.Second) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry is too far in the future")
		}
		ttl = time.Duration(secs) * time.Second
	}
	var reviewer *string
	if input.ReviewerEmail != nil && strings.TrimSpace(*input.ReviewerEmail) != "" {
		addr, err := mail.ParseAddress(strings.TrimSpace(*input.ReviewerEmail))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer email is invalid")
		}
		normalized := strings.ToLower(addr.Address)
		reviewer = &normalized
	}
	var watermark *string
	if input.WatermarkText != nil {
		text := strings.TrimSpace(*input.WatermarkText)
		if len(text) > maxWatermarkLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "watermark text is too long")
		}
		if text != "" {
			watermark = &text
		}
	}

	p := authz.User(input.CreatedBy)
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(input.AssetID), permissions.ShareCreate)
	if err != nil {
		return nil, err
	}
	token, err := s.newToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate share token")
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	invite := &models.ReviewInvite{
		AssetID:          input.AssetID,
		Token:            token,
		Permission:       input.Permission,
		ExpiresAt:        &expiresAt,
		WatermarkEnabled: input.WatermarkEnabled,
		WatermarkText:    watermark,
		ReviewerEmail:    reviewer,
		CreatedBy:        input.CreatedBy,
	}
	var asset *models.Asset
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		var err error
		asset, err = r.FindAsset(ctx, input.AssetID)
		if err != nil {
			return mapNotFound(err, "asset not found", "load asset")
		}
		if err := r.Create(ctx, invite); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review link")
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionShareIssued,
			ProjectID: decision.ProjectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"inviteId": invite.ID, "permission": invite.Permission, "expiresAt": expiresAt},
		})
	})
	if err != nil {
		return nil, err
	}

	if reviewer != nil {
		s.sendInvitation(ctx, invite, asset)
	}
	return invite, nil
}

// sendInvitation is best effort; the link is valid whether or not mail goes out.
func (s *service) sendInvitation(ctx context.Context, invite *models.ReviewInvite, asset *models.Asset) {
	if s.mailer == nil || invite.ReviewerEmail == nil {
		return
	}
	link := fmt.Sprintf("%s/review/%s", s.publicURL, invite.Token)
	body := fmt.Sprintf(
		"<p>You have been invited to review <strong>%s</strong>.</p><p><a href=\"%s\">Open the review</a></p>",
		html.EscapeString(asset.Title), link,
	)
	if invite.ExpiresAt != nil {
		body += fmt.Sprintf("<p>This link expires %s.</p>", invite.ExpiresAt.Format("Jan 2, 2006 15:04 MST"))
	}
	if err := s.mailer.Send(ctx, *invite.ReviewerEmail, "Review request: "+asset.Title, body); err != nil && s.logg != nil {
		s.logg.WarnErr(s.logg.WithGuestInvite(ctx, invite.ID.String()), "review invitation email failed", err)
	}
}

func (s *service) Resolve(ctx context.Context, token string) (*models.ReviewInvite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review link not found")
	}
	invite, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, mapNotFound(err, "review link not found", "load review link")
	}
	if invite.ExpiredAt(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "review link expired")
	}
	return invite, nil
}

// RecordView stores one analytics row and bumps the link's counters in the
// same transaction, then tells the link's creator.
func (s *service) RecordView(ctx context.Context, inviteID uuid.UUID, input RecordViewInput) (*models.ReviewView, error) {
	if input.DurationSeconds < 0 || input.DurationSeconds > maxViewDuration {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration is out of range")
	}
	if len(input.Actions) > maxViewActions {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many actions")
	}
	actions := make([]string, 0, len(input.Actions))
	for _, a := range input.Actions {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}

	invite, err := s.repo.FindByID(ctx, inviteID)
	if err != nil {
		return nil, mapNotFound(err, "review link not found", "load review link")
	}
	now := s.now()
	if invite.ExpiredAt(now) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "review link expired")
	}

	view := &models.ReviewView{
		InviteID:        invite.ID,
		DurationSeconds: input.DurationSeconds,
		Actions:         actions,
		ViewerIPHash:    input.ViewerIPHash,
	}
	guest := authz.Guest(invite.Token)
	if invite.ReviewerEmail != nil {
		guest.GuestEmail = *invite.ReviewerEmail
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		if err := r.InsertView(ctx, view); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record view")
		}
		count, err := r.BumpViews(ctx, invite.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump view count")
		}
		asset, err := r.FindAsset(ctx, invite.AssetID)
		if err != nil {
			return mapNotFound(err, "asset not found", "load asset")
		}
		if err := activity.Append(ctx, tx, activity.Entry{
			Actor:     guest,
			Action:    activity.ActionShareViewed,
			ProjectID: asset.ProjectID,
			AssetID:   &asset.ID,
			Details:   map[string]any{"inviteId": invite.ID, "viewCount": count},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShareViewed,
			AggregateType: enums.AggregateReviewInvite,
			AggregateID:   invite.ID,
			Actor:         &outbox.ActorRef{Label: guest.Label()},
			Data: payloads.ShareViewedEvent{
				ReviewEvent: payloads.ReviewEvent{
					ProjectID:       asset.ProjectID,
					AssetID:         &asset.ID,
					ActorLabel:      guest.Label(),
					Title:           fmt.Sprintf("%s was viewed", asset.Title),
					Message:         fmt.Sprintf("Your review link has been opened %d time(s).", count),
					AffectedUserIDs: []uuid.UUID{invite.CreatedBy},
				},
				InviteID:  invite.ID,
				ViewCount: count,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ShareViewed()
	return view, nil
}

func (s *service) RecordGuestView(ctx context.Context, token string, input GuestViewInput) (*models.ReviewView, error) {
	invite, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	var ipHash *string
	if strings.TrimSpace(input.RemoteAddr) != "" {
		hashed, err := security.HashViewerIP(input.RemoteAddr, s.ipHashKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash viewer address")
		}
		ipHash = &hashed
	}
	return s.RecordView(ctx, invite.ID, RecordViewInput{
		DurationSeconds: input.DurationSeconds,
		Actions:         input.Actions,
		ViewerIPHash:    ipHash,
	})
}

// Revoke makes the link inert immediately. Revoking twice is a no-op.
func (s *service) Revoke(ctx context.Context, p authz.Principal, inviteID uuid.UUID) error {
	invite, err := s.repo.FindByID(ctx, inviteID)
	if err != nil {
		return mapNotFound(err, "review link not found", "load review link")
	}
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(invite.AssetID), permissions.ShareRevoke)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		revoked, err := s.repo.WithTx(tx).Revoke(ctx, invite.ID, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke review link")
		}
		if !revoked {
			return nil
		}
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionShareRevoked,
			ProjectID: decision.ProjectID,
			AssetID:   &invite.AssetID,
			Details:   map[string]any{"inviteId": invite.ID},
		})
	})
}

func (s *service) ListInvites(ctx context.Context, p authz.Principal, assetID uuid.UUID) ([]models.ReviewInvite, error) {
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.ShareCreate); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list review links")
	}
	return rows, nil
}

func (s *service) Analytics(ctx context.Context, p authz.Principal, inviteID uuid.UUID) (*Analytics, error) {
	invite, err := s.repo.FindByID(ctx, inviteID)
	if err != nil {
		return nil, mapNotFound(err, "review link not found", "load review link")
	}
	if _, err := s.authz.Require(ctx, p, authz.AssetRef(invite.AssetID), permissions.ShareViewAnalytics); err != nil {
		return nil, err
	}

	out := &Analytics{InviteID: invite.ID, ViewCount: invite.ViewCount, LastViewedAt: invite.LastViewedAt}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.repo.Totals(gctx, invite.ID)
		out.TotalDurationSeconds = totals.DurationSeconds
		out.UniqueViewers = totals.UniqueViewers
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.RecentViews(gctx, invite.ID)
		out.RecentViews = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load link analytics")
	}
	return out, nil
}

// GuestView loads the guest page for the link the principal carries.
func (s *service) GuestView(ctx context.Context, p authz.Principal) (*GuestReview, error) {
	if !p.IsGuest() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review link not found")
	}
	decision, err := s.authz.Require(ctx, p, authz.Ref{}, permissions.AssetView)
	if err != nil {
		return nil, err
	}
	invite, err := s.Resolve(ctx, p.ShareToken)
	if err != nil {
		return nil, err
	}

	out := &GuestReview{Permission: invite.Permission, ExpiresAt: invite.ExpiresAt}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		asset, err := s.repo.FindAsset(gctx, decision.AssetID)
		if err != nil {
			return mapNotFound(err, "asset not found", "load asset")
		}
		out.Asset = *asset
		return nil
	})
	g.Go(func() error {
		rows, err := s.versions.ListByAsset(gctx, decision.AssetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list versions")
		}
		out.Versions = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.comments.ListForAsset(gctx, decision.AssetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list comments")
		}
		out.Comments = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Watermark = watermarkFor(invite)
	return out, nil
}

// watermarkFor prefers the configured text, then the reviewer's address.
func watermarkFor(invite *models.ReviewInvite) Watermark {
	if !invite.WatermarkEnabled {
		return Watermark{}
	}
	text := defaultWatermarkText
	switch {
	case invite.WatermarkText != nil && *invite.WatermarkText != "":
		text = *invite.WatermarkText
	case invite.ReviewerEmail != nil:
		text = *invite.ReviewerEmail
	}
	return Watermark{Enabled: true, Text: text}
}

func mapNotFound(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
