package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidURL is returned when a delete target cannot be turned into a key.
var ErrInvalidURL = errors.New("invalid object url")

// Service names uploaded files and maps keys to public URLs.
type Service struct {
	storage ObjectStorage
	baseURL string
}

// NewService builds an upload service. publicBaseURL is the public prefix of
// the bucket.
func NewService(storage ObjectStorage, publicBaseURL string) *Service {
	if publicBaseURL != "" && !strings.HasSuffix(publicBaseURL, "/") {
		publicBaseURL += "/"
	}
	return &Service{storage: storage, baseURL: publicBaseURL}
}

// Upload stores body under a fresh random key that keeps the file extension
// and returns its public URL.
func (s *Service) Upload(ctx context.Context, filename, contentType string, body io.ReadSeeker, size int64) (string, error) {
	key := uuid.NewString()
	if ext := strings.TrimPrefix(path.Ext(filename), "."); ext != "" {
		key += "." + strings.ToLower(ext)
	}
	if err := s.storage.Put(ctx, key, contentType, body, size); err != nil {
		return "", err
	}
	return s.baseURL + key, nil
}

// Delete removes the object behind a public URL. The key is the URL path
// without leading slashes.
func (s *Service) Delete(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	key := strings.TrimLeft(u.Path, "/")
	if key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return s.storage.Delete(ctx, key)
}
