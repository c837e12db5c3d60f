package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

// maxAuthBody caps what the limiter buffers to find the email.
const maxAuthBody = 64 << 10

// AuthRateLimitPolicy throttles one credential endpoint by client address and
// by the email in the request body.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

// AuthRateLimit mounts the policy. A disabled policy or a nil store returns
// next unchanged.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || policy.window <= 0 || (policy.ipLimit <= 0 && policy.emailLimit <= 0) {
			return next
		}
		limiter := fixedWindow{store: store, window: policy.window, event: "auth.rate_limit.blocked", logg: logg}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buckets := []bucket{{scope: "ip", key: "rl:auth:" + policy.name + ":ip:" + ClientIP(r), limit: policy.ipLimit}}
			if policy.emailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBody))
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := emailFromBody(body); email != "" {
					buckets = append(buckets, bucket{scope: "email", key: "rl:auth:" + policy.name + ":email:" + hashValue(email), limit: policy.emailLimit})
				}
			}
			if limiter.admit(w, r, buckets...) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}
