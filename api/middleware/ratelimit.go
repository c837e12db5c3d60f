package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// bucket is one fixed-window counter. Buckets with an empty key or a
// non-positive limit are skipped.
type bucket struct {
	scope string
	key   string
	limit int
}

// fixedWindow counts every bucket in order and writes a 429 on the first one
// over its limit. It reports whether the request may continue.
type fixedWindow struct {
	store  rateLimiterStore
	window time.Duration
	event  string
	logg   *logger.Logger
}

func (f fixedWindow) admit(w http.ResponseWriter, r *http.Request, buckets ...bucket) bool {
	ctx := r.Context()
	for _, b := range buckets {
		if b.key == "" || b.limit <= 0 {
			continue
		}
		count, err := f.store.IncrWithTTL(ctx, b.key, f.window)
		if err != nil {
			responses.WriteError(ctx, f.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
			return false
		}
		if count <= int64(b.limit) {
			continue
		}
		if f.logg != nil {
			f.logg.Warn(f.logg.WithFields(ctx, map[string]any{
				"scope":          b.scope,
				"attempts":       count,
				"limit":          b.limit,
				"window_seconds": int(f.window.Seconds()),
			}), f.event)
		}
		retryAfter := int(f.window.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		responses.WriteError(ctx, f.logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
			WithDetails(map[string]any{"retryAfterSeconds": retryAfter}))
		return false
	}
	return true
}

// ClientIP is the caller's address: the first X-Forwarded-For hop, then
// X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// hashValue keeps emails and share tokens out of Redis keys and logs.
func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
