package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

const (
	shareTokenHeader = "X-Share-Token"
	guestNameHeader  = "X-Guest-Name"
	guestEmailHeader = "X-Guest-Email"
	maxShareTokenLen = 128
	maxGuestNameLen  = 120
)

type inviteResolver interface {
	Resolve(ctx context.Context, token string) (*models.ReviewInvite, error)
}

// GuestPolicy bounds how hard one share token, or one address, can hit the
// guest routes.
type GuestPolicy struct {
	window     time.Duration
	tokenLimit int
	ipLimit    int
}

func NewGuestPolicy(cfg config.GuestRateLimitConfig) GuestPolicy {
	return GuestPolicy{window: cfg.Window, tokenLimit: cfg.TokenLimit, ipLimit: cfg.IPLimit}
}

// GuestToken authenticates a share-token request. The token comes from the
// {token} path segment or the X-Share-Token header. Unknown tokens are 404 and
// expired ones 410 before any handler runs.
func GuestToken(resolver inviteResolver, store rateLimiterStore, policy GuestPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := strings.TrimSpace(chi.URLParam(r, "token"))
			if token == "" {
				token = strings.TrimSpace(r.Header.Get(shareTokenHeader))
			}
			if token == "" || len(token) > maxShareTokenLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "review link not found"))
				return
			}

			if store != nil && policy.window > 0 {
				limiter := fixedWindow{store: store, window: policy.window, event: "guest.rate_limit.blocked", logg: logg}
				if !limiter.admit(w, r,
					bucket{scope: "token", key: "rl:guest:token:" + hashValue(token), limit: policy.tokenLimit},
					bucket{scope: "ip", key: "rl:guest:ip:" + ClientIP(r), limit: policy.ipLimit},
				) {
					return
				}
			}

			invite, err := resolver.Resolve(ctx, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			p := authz.Guest(token)
			p.GuestName = validators.SanitizeString(r.Header.Get(guestNameHeader), maxGuestNameLen)
			p.GuestEmail = validators.SanitizeString(r.Header.Get(guestEmailHeader), maxGuestNameLen)
			if p.GuestEmail == "" && invite.ReviewerEmail != nil {
				p.GuestEmail = *invite.ReviewerEmail
			}
			ctx = WithGuest(ctx, p, invite)
			if logg != nil {
				ctx = logg.WithGuestInvite(ctx, invite.ID.String())
				ctx = logg.WithActorRole(ctx, "guest")
				ctx = logg.WithAssetID(ctx, invite.AssetID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
