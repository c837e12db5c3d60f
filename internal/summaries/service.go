// Package summaries asks the AI provider for a digest of an asset's comments.
package summaries

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/internal/activity"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/internal/permissions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
	"github.com/angelmondragon/reviewhub-backend/pkg/openai"
)

// maxPromptRunes keeps very long threads inside the provider's context window.
const maxPromptRunes = 24000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type authorizer interface {
	Require(ctx context.Context, p authz.Principal, ref authz.Ref, action permissions.Action) (authz.Decision, error)
}

type commentLister interface {
	ListForAsset(ctx context.Context, assetID uuid.UUID) ([]models.Comment, error)
}

type Service interface {
	Summarize(ctx context.Context, p authz.Principal, assetID uuid.UUID) (*Summary, error)
}

type Summary struct {
	AssetID      uuid.UUID `json:"assetId"`
	Text         string    `json:"summary"`
	CommentCount int       `json:"commentCount"`
	OpenCount    int       `json:"openCount"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

type ServiceParams struct {
	Comments   commentLister
	Tx         txRunner
	Authz      authorizer
	Summarizer openai.Summarizer
	Logger     *logger.Logger
}

type service struct {
	comments   commentLister
	tx         txRunner
	authz      authorizer
	summarizer openai.Summarizer
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the summaries service. A nil summarizer is allowed and
// makes every call fail as unavailable.
func NewService(params ServiceParams) (Service, error) {
	if params.Comments == nil {
		return nil, fmt.Errorf("comment lister required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	return &service{
		comments:   params.Comments,
		tx:         params.Tx,
		authz:      params.Authz,
		summarizer: params.Summarizer,
		logg:       params.Logger,
		now:        db.UTCNow,
	}, nil
}

func (s *service) Summarize(ctx context.Context, p authz.Principal, assetID uuid.UUID) (*Summary, error) {
	decision, err := s.authz.Require(ctx, p, authz.AssetRef(assetID), permissions.SummaryGenerate)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListForAsset(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list comments")
	}
	if len(comments) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset has no comments to summarize")
	}
	if s.summarizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "AI unavailable")
	}

	prompt, open := buildThread(comments)
	text, err := s.summarizer.Summarize(ctx, prompt)
	if err != nil {
		if s.logg != nil {
			s.logg.WarnErr(s.logg.WithAssetID(ctx, assetID.String()), "summary provider failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "AI unavailable")
	}

	summary := &Summary{
		AssetID:      assetID,
		Text:         strings.TrimSpace(text),
		CommentCount: len(comments),
		OpenCount:    open,
		GeneratedAt:  s.now(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return activity.Append(ctx, tx, activity.Entry{
			Actor:     p,
			Action:    activity.ActionSummaryGenerated,
			ProjectID: decision.ProjectID,
			AssetID:   &assetID,
			Details:   map[string]any{"commentCount": summary.CommentCount},
		})
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// buildThread renders comments oldest first, one line each, and counts the
// ones still open.
func buildThread(comments []models.Comment) (string, int) {
	var (
		b    strings.Builder
		open int
	)
	for _, c := range comments {
		if c.Status == enums.CommentStatusOpen {
			open++
		}
		fmt.Fprintf(&b, "[%s] %s", c.Status, authorOf(c))
		if c.TimecodeSeconds != nil {
			fmt.Fprintf(&b, " @%s", timecode(*c.TimecodeSeconds))
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(strings.Fields(c.Body), " "))
		b.WriteByte('\n')
	}
	out := b.String()
	if r := []rune(out); len(r) > maxPromptRunes {
		out = string(r[len(r)-maxPromptRunes:])
	}
	return out, open
}

func authorOf(c models.Comment) string {
	switch {
	case c.GuestName != nil && *c.GuestName != "":
		return *c.GuestName + " (guest)"
	case c.AuthorID != nil:
		return "member " + c.AuthorID.String()[:8]
	default:
		return "unknown"
	}
}

func timecode(seconds float64) string {
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
