package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsportal/portal/internal/config"
	"github.com/hsportal/portal/internal/infra"
)

type recordedRequest struct {
	method string
	path   string
	body   []byte
	ctype  string
}

type fakeBucket struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body, ctype: r.Header.Get("Content-Type")})
	status := b.status
	b.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newBucketStorage(t *testing.T, bucket *fakeBucket) *S3Storage {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	client, err := infra.NewS3Client(context.Background(), config.StorageConfig{
		Endpoint:  srv.URL,
		Region:    "auto",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "images",
	})
	require.NoError(t, err)
	return NewS3Storage(client, "images")
}

func TestS3StoragePutAndDelete(t *testing.T) {
	bucket := &fakeBucket{}
	storage := newBucketStorage(t, bucket)
	ctx := context.Background()

	require.NoError(t, storage.Put(ctx, "a.png", "image/png", bytes.NewReader([]byte("png-bytes")), 9))
	require.NoError(t, storage.Delete(ctx, "a.png"))

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	require.Len(t, bucket.requests, 2)
	assert.Equal(t, http.MethodPut, bucket.requests[0].method)
	assert.Equal(t, "/images/a.png", bucket.requests[0].path)
	assert.Equal(t, "image/png", bucket.requests[0].ctype)
	assert.Equal(t, []byte("png-bytes"), bucket.requests[0].body)
	assert.Equal(t, http.MethodDelete, bucket.requests[1].method)
	assert.Equal(t, "/images/a.png", bucket.requests[1].path)
}

func TestS3StorageReportsErrors(t *testing.T) {
	storage := newBucketStorage(t, &fakeBucket{status: http.StatusForbidden})
	err := storage.Put(context.Background(), "a.png", "image/png", bytes.NewReader([]byte("x")), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put object a.png")
}
