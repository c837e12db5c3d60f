package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type bufferWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestClient(w *bufferWriter, captured *[]string) *Client {
	return &Client{
		bucket:        "rv-media",
		publicBaseURL: "https://cdn.example.com",
		newWriter: func(_ context.Context, bucket, object, contentType string) io.WriteCloser {
			*captured = append(*captured, bucket, object, contentType)
			return w
		},
	}
}

func TestPutWritesObjectAndReturnsPublicURL(t *testing.T) {
	w := &bufferWriter{}
	var captured []string
	client := newTestClient(w, &captured)

	url, err := client.Put(context.Background(), "/assets/a/versions/v1 cut.mp4", []byte("frames"), "")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/rv-media/assets/a/versions/v1%20cut.mp4", url)
	require.Equal(t, []string{"rv-media", "assets/a/versions/v1 cut.mp4", "application/octet-stream"}, captured)
	require.Equal(t, "frames", w.String())
	require.True(t, w.closed)
}

func TestPutSurfacesFinalizeError(t *testing.T) {
	w := &bufferWriter{closeErr: errors.New("quota")}
	var captured []string
	client := newTestClient(w, &captured)

	_, err := client.Put(context.Background(), "a/b", []byte("x"), "image/png")
	require.ErrorContains(t, err, "quota")
}

func TestPutRequiresPath(t *testing.T) {
	var captured []string
	client := newTestClient(&bufferWriter{}, &captured)
	_, err := client.Put(context.Background(), "  ", nil, "")
	require.Error(t, err)
	require.Empty(t, captured)

	var nilClient *Client
	_, err = nilClient.Put(context.Background(), "a", nil, "")
	require.Error(t, err)
}

func TestPublicURLDefaultsToGoogleHost(t *testing.T) {
	client := &Client{bucket: "rv-media"}
	require.Equal(t, "https://storage.googleapis.com/rv-media/x.png", client.PublicURL("x.png"))
}

func TestObjectPath(t *testing.T) {
	owner := uuid.New()
	got := ObjectPath("comments", owner, "attachments", "../../etc/my notes (final).pdf")
	require.True(t, strings.HasPrefix(got, "comments/"+owner.String()+"/attachments/"))
	require.True(t, strings.HasSuffix(got, "-my_notes_final_.pdf"), got)
	require.NotContains(t, got, "..")

	require.True(t, strings.HasSuffix(ObjectPath("assets", owner, "versions", "..."), "-file"))
}
