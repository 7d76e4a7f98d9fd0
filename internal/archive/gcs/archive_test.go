package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = newArchive(Config{}, nil)
	require.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		gotBucket, gotObject, gotType string
		writer                        = &fakeWriter{}
	)
	archive, err := newArchive(Config{Bucket: "pages-bucket"}, func(_ context.Context, bucket, object, contentType string) objectWriter {
		gotBucket, gotObject, gotType = bucket, object, contentType
		return writer
	})
	require.NoError(t, err)

	uri, err := archive.PutObject(context.Background(), "/pages/run-1/page-1.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "gs://pages-bucket/pages/run-1/page-1.html", uri)
	require.Equal(t, "pages-bucket", gotBucket)
	require.Equal(t, "pages/run-1/page-1.html", gotObject)
	require.Equal(t, "text/html", gotType)
	require.Equal(t, "<html/>", writer.String())
	require.True(t, writer.closed)
}

func TestPutObjectCloseFailure(t *testing.T) {
	t.Parallel()

	archive, err := newArchive(Config{Bucket: "b"}, func(context.Context, string, string, string) objectWriter {
		return &fakeWriter{closeErr: errors.New("quota exceeded")}
	})
	require.NoError(t, err)

	_, err = archive.PutObject(context.Background(), "p.html", "text/html", strings.NewReader("x"))
	require.ErrorContains(t, err, "quota exceeded")

	_, err = archive.PutObject(context.Background(), "  ", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}
