package upload

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStorage stores uploaded files by key.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) error
	Delete(ctx context.Context, key string) error
}

// S3Storage writes objects to one bucket of an S3-compatible service.
type S3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage wraps client for bucket.
func NewS3Storage(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

// Put uploads body under key.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// MemoryStorage keeps objects in process for development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

// Put stores body under key.
func (m *MemoryStorage) Put(_ context.Context, key, _ string, body io.ReadSeeker, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// Delete drops key.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns the stored bytes of key.
func (m *MemoryStorage) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
