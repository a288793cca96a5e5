package blobstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store persists uploaded artifacts (payment receipts) and returns the URL
// under which each object can be viewed.
type Store interface {
	Put(ctx context.Context, key string, contentType string, size int64, body io.Reader) (string, error)
}

// Config holds object storage connection details.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore is an S3-compatible implementation of Store.
type MinioStore struct {
	client *minio.Client
	bucket string
	useSSL bool
}

// NewMinioStore connects to the object storage backend and ensures the
// bucket exists.
func NewMinioStore(ctx context.Context, cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("Created object storage bucket %s", cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, useSSL: cfg.UseSSL}, nil
}

// Put uploads an object and returns its access URL.
func (s *MinioStore) Put(ctx context.Context, key string, contentType string, size int64, body io.Reader) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}

// MemoryStore is an in-memory implementation of Store for tests and local
// development without an object storage backend.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
	}
}

// Put stores the object in memory and returns a synthetic URL.
func (s *MemoryStore) Put(_ context.Context, key string, _ string, _ int64, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "memory://" + key, nil
}

// Get returns a stored object, for test assertions.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
