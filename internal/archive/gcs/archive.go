// Package gcs archives listing pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket"`
}

type objectWriter interface {
	io.WriteCloser
}

// writerFunc opens a writer for one object; swapped in tests.
type writerFunc func(ctx context.Context, bucket, object, contentType string) objectWriter

// Archive uploads pages to a configured bucket.
type Archive struct {
	bucket    string
	newWriter writerFunc
}

// New creates a GCS-backed page archive.
func New(client *storage.Client, cfg Config) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newArchive(cfg, func(ctx context.Context, bucket, object, contentType string) objectWriter {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		w.Metadata = map[string]string{"source": "catalog-scraper"}
		return w
	})
}

func newArchive(cfg Config, fn writerFunc) (*Archive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archive{bucket: cfg.Bucket, newWriter: fn}, nil
}

// PutObject uploads the page and returns a gs:// URI. The object only becomes
// visible once the writer closes successfully.
func (a *Archive) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	object := strings.TrimLeft(path, "/")
	if strings.TrimSpace(object) == "" {
		return "", fmt.Errorf("path is required")
	}
	w := a.newWriter(ctx, a.bucket, object, contentType)
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
