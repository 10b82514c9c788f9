//go:build gcp

package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"vignette/internal/models"
)

// GCSConfig holds configuration for the GCS backend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCS stores objects in a Google Cloud Storage bucket. An object becomes
// visible only when its writer is closed successfully.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS backend using application default credentials.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, mediaType string) (PutResult, error) {
	var zero PutResult
	if err := validateKey(key); err != nil {
		return zero, err
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}

	w := g.object(key).NewWriter(ctx)
	if mediaType != "" {
		w.ContentType = mediaType
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		_ = w.Close()
		return zero, classifyGCSError(key, err)
	}
	if err := w.Close(); err != nil {
		return zero, classifyGCSError(key, err)
	}
	return PutResult{Key: key, SHA256: hex.EncodeToString(h.Sum(nil)), SizeBytes: n}, nil
}

func (g *GCS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	reader, err := g.object(key).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(key, err)
	}
	return reader, nil
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if _, err := g.object(key).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, classifyGCSError(key, err)
	}
	return true, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := g.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return classifyGCSError(key, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.prefix + prefix})
	keys := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCSError(prefix, err)
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, g.prefix))
	}
	return keys, nil
}

// Close closes the GCS client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.prefix + key)
}

func classifyGCSError(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		transient := apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
		return models.StorageIO(key, transient, err)
	}
	return models.StorageIO(key, false, err)
}
