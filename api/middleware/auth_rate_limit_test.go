package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

// countingStore is an in-memory IncrWithTTL; windows never expire.
type countingStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingStore() *countingStore {
	return &countingStore{counts: map[string]int64{}}
}

func (s *countingStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *countingStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.counts))
	for k := range s.counts {
		out = append(out, k)
	}
	return out
}

type authAttempt struct {
	remote string
	email  string
}

func loginBody(email string) io.Reader {
	return strings.NewReader(`{"email":"` + email + `","password":"secret"}`)
}

func TestAuthRateLimitCounts(t *testing.T) {
	cases := []struct {
		name     string
		ipLimit  int
		emLimit  int
		attempts []authAttempt
		want     []int
	}{
		{
			name:     "under both limits",
			ipLimit:  2,
			emLimit:  2,
			attempts: []authAttempt{{"1.2.3.4:1", "a@example.com"}, {"1.2.3.4:2", "a@example.com"}},
			want:     []int{200, 200},
		},
		{
			name:     "email limit spans addresses",
			emLimit:  2,
			attempts: []authAttempt{{"1.1.1.1:1", "a@example.com"}, {"2.2.2.2:1", "a@example.com"}, {"3.3.3.3:1", "a@example.com"}},
			want:     []int{200, 200, 429},
		},
		{
			name:     "ip limit spans emails",
			ipLimit:  1,
			attempts: []authAttempt{{"5.6.7.8:1", "a@example.com"}, {"5.6.7.8:2", "b@example.com"}},
			want:     []int{200, 429},
		},
		{
			name:     "email compared case-insensitively",
			emLimit:  1,
			attempts: []authAttempt{{"1.1.1.1:1", "Casey@Example.com"}, {"2.2.2.2:1", " casey@example.com"}},
			want:     []int{200, 429},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := NewAuthRateLimitPolicy("login", time.Minute, tc.ipLimit, tc.emLimit)
			handler := AuthRateLimit(policy, newCountingStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				require.Contains(t, string(body), `"password":"secret"`, "limiter must hand the body on intact")
				w.WriteHeader(http.StatusOK)
			}))

			got := make([]int, 0, len(tc.attempts))
			for _, a := range tc.attempts {
				req := httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody(a.email))
				req.RemoteAddr = a.remote
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				got = append(got, rec.Code)
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAuthRateLimitRejectionBody(t *testing.T) {
	policy := NewAuthRateLimitPolicy("register", time.Minute, 1, 0)
	handler := AuthRateLimit(policy, newCountingStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", loginBody("x@example.com"))
		req.RemoteAddr = "9.9.9.9:1"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
}

func TestAuthRateLimitKeysAreScopedAndHashed(t *testing.T) {
	store := newCountingStore()
	policy := NewAuthRateLimitPolicy(" Login ", time.Minute, 0, 1)
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody("casey@example.com"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	keys := store.keys()
	require.Len(t, keys, 1, "the ip bucket is disabled")
	require.True(t, strings.HasPrefix(keys[0], "rl:auth:login:email:"))
	require.NotContains(t, keys[0], "casey")
}

func TestAuthRateLimitDisabledPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	policy := NewAuthRateLimitPolicy("login", 0, 5, 5)
	require.NotNil(t, AuthRateLimit(policy, newCountingStore(), nil)(next))
	require.NotNil(t, AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 1, 1), nil, nil)(next))
}
