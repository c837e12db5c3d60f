package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/gcp"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

const (
	pingTimeout   = 5 * time.Second
	uploadTimeout = 2 * time.Minute
)

// Uploader is what review services need from object storage.
type Uploader interface {
	Put(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type writerFunc func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// Client wraps the Cloud Storage SDK for a single bucket.
type Client struct {
	sdk           *storage.Client
	bucket        string
	publicBaseURL string
	newWriter     writerFunc
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcpCfg config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	opts := append(gcp.ClientOptions(gcpCfg), option.WithScopes(storage.ScopeReadWrite))
	sdk, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	client := &Client{
		sdk:           sdk,
		bucket:        cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
	client.newWriter = client.sdkWriter

	if err := client.Ping(ctx); err != nil {
		_ = sdk.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}
	return client, nil
}

func (c *Client) sdkWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := c.sdk.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

// Put uploads data under objectPath and returns its public URL.
func (c *Client) Put(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if c == nil || c.newWriter == nil {
		return "", errors.New("gcs client not initialized")
	}
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", errors.New("object path is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.newWriter(ctx, c.bucket, objectPath, contentType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", objectPath, err)
	}
	return c.PublicURL(objectPath), nil
}

// Delete removes an object; a missing object is not an error.
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	if c == nil || c.sdk == nil {
		return errors.New("gcs client not initialized")
	}
	err := c.sdk.Bucket(c.bucket).Object(objectPath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// PublicURL is the browser-facing URL for an object in the bucket.
func (c *Client) PublicURL(objectPath string) string {
	base := c.publicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	escaped := (&url.URL{Path: objectPath}).EscapedPath()
	return fmt.Sprintf("%s/%s/%s", base, c.bucket, escaped)
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sdk == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := c.sdk.Bucket(c.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectPath builds a collision-free key such as
// `assets/<assetId>/versions/<uuid>-cut_v2.mp4`.
func ObjectPath(scope string, ownerID uuid.UUID, kind, fileName string) string {
	name := unsafeNameChars.ReplaceAllString(path.Base(strings.TrimSpace(fileName)), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	return path.Join(scope, ownerID.String(), kind, uuid.NewString()+"-"+name)
}
