// Package source reads job input from Cloud Storage or the local filesystem and uploads exports.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// UploadTimeout bounds a single upload.
const UploadTimeout = 2 * time.Minute

// Storage provides input retrieval and export upload.
// This interface enables mocking of storage in commands and handlers.
type Storage interface {
	// Fetch returns the bytes behind uri: gs://bucket/object or a local path.
	Fetch(ctx context.Context, uri string) ([]byte, error)

	// Upload writes r to bucket/object and returns its gs:// URI.
	Upload(ctx context.Context, bucket, object string, r io.Reader) (string, error)
}

// Client implements Storage. The Cloud Storage client is created on first use,
// so local-only deployments never need credentials.
type Client struct {
	mu        sync.Mutex
	gcs       *storage.Client
	newClient func(ctx context.Context) (*storage.Client, error)
}

// New creates a Client using Application Default Credentials for gs:// URIs.
func New() *Client {
	return &Client{newClient: func(ctx context.Context) (*storage.Client, error) {
		return storage.NewClient(ctx)
	}}
}

func (c *Client) storageClient(ctx context.Context) (*storage.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gcs != nil {
		return c.gcs, nil
	}
	client, err := c.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	c.gcs = client
	return client, nil
}

// Close releases the Cloud Storage client, if one was created.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gcs == nil {
		return nil
	}
	err := c.gcs.Close()
	c.gcs = nil
	return err
}

// Fetch implements Storage.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if !IsGCS(uri) {
		p := strings.TrimPrefix(uri, "file://")
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return nil, fmt.Errorf("Fetch: reading %s: %w", p, err)
		}
		return data, nil
	}

	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := c.storageClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Upload implements Storage.
func (c *Client) Upload(ctx context.Context, bucket, object string, r io.Reader) (string, error) {
	client, err := c.storageClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if strings.HasSuffix(object, ".json") {
		w.ContentType = "application/json"
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copying to %s/%s: %w", bucket, object, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize %s/%s: %w", bucket, object, err)
	}
	return gcsScheme + bucket + "/" + object, nil
}

// IsGCS reports whether uri names a Cloud Storage object.
func IsGCS(uri string) bool {
	return strings.HasPrefix(uri, gcsScheme)
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCS(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FileName returns the last path element of a gs:// URI or local path.
// e.g., "gs://bucket/folder/bank.csv" → "bank.csv"
func FileName(uri string) string {
	if IsGCS(uri) {
		trimmed := strings.TrimPrefix(uri, gcsScheme)
		parts := strings.SplitN(trimmed, "/", 2)
		if len(parts) < 2 {
			return trimmed
		}
		return path.Base(parts[1])
	}
	return filepath.Base(strings.TrimPrefix(uri, "file://"))
}

var _ Storage = (*Client)(nil)
