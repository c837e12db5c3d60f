package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
)

func newTestClient(t *testing.T, timeout time.Duration, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: timeout})
	require.NoError(t, err)
	return client
}

func TestSummarize(t *testing.T) {
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, chatCompletionsPath, r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		require.Contains(t, req.Messages[1].Content, "logo too small")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Enlarge the logo.  "}}]}`))
	})

	out, err := client.Summarize(context.Background(), "Dana: logo too small")
	require.NoError(t, err)
	require.Equal(t, "Enlarge the logo.", out)
}

func TestSummarizeProviderError(t *testing.T) {
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})
	_, err := client.Summarize(context.Background(), "text")
	require.ErrorContains(t, err, "rate limited")
}

func TestSummarizeEmptyChoices(t *testing.T) {
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := client.Summarize(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestSummarizeHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, 50*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := client.Summarize(context.Background(), "text")
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{})
	require.Error(t, err)
}
