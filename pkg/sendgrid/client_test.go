package sendgrid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.SendgridConfig{
		APIKey:      "sg-key",
		DefaultFrom: "reviews@example.com",
		FromName:    "ReviewHub",
		BaseURL:     srv.URL + "/",
	}, nil)
	require.NoError(t, err)
	return client
}

func TestSendPostsMail(t *testing.T) {
	var got mailSendRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, mailSendPath, r.URL.Path)
		require.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.Send(context.Background(), " reviewer@example.com ", "Review requested", "<p>hi</p>")
	require.NoError(t, err)
	require.Equal(t, "reviewer@example.com", got.Personalizations[0].To[0].Email)
	require.Equal(t, "ReviewHub", got.From.Name)
	require.Equal(t, "text/html", got.Content[0].Type)
}

func TestSendReturnsHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	})

	err := client.Send(context.Background(), "a@example.com", "s", "b")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	require.Contains(t, httpErr.Error(), "bad key")
}

func TestSendValidatesInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	require.Error(t, client.Send(context.Background(), "", "s", "b"))
	require.Error(t, client.Send(context.Background(), "a@example.com", " ", "b"))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.SendgridConfig{DefaultFrom: "a@example.com"}, nil)
	require.Error(t, err)
}

func TestNoopSender(t *testing.T) {
	var s Sender = Noop{}
	require.NoError(t, s.Send(context.Background(), "a@example.com", "s", "b"))
}
