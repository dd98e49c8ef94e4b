// Package blob uploads photo binaries to the S3-compatible object store.
// Paths are derived from entity ids so a retried upload lands on the same
// key and overwrites rather than duplicates.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// TempEntrySegment is the path segment used while a photo is not yet
// linked to a work entry.
const TempEntrySegment = "temp"

// PhotoPath derives the storage key for a photo. Deterministic per photo
// id: retries after partial failures write the same key.
func PhotoPath(projectID, workEntryID, photoID string) string {
	entry := workEntryID
	if entry == "" {
		entry = TempEntrySegment
	}
	return fmt.Sprintf("%s/%s/%s.jpg", projectID, entry, photoID)
}

// Store wraps one bucket on an S3-compatible endpoint.
type Store struct {
	client *minio.Client
	bucket string
	public string
	logger *log.Logger
}

// Config holds blob store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBaseURL prefixes stored keys to form browsable URLs. Empty
	// means URLs are served path-style off the endpoint.
	PublicBaseURL string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to blob store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	public := cfg.PublicBaseURL
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		public: strings.TrimRight(public, "/"),
		logger: log.New(os.Stderr, "[blob] ", log.LstdFlags),
	}, nil
}

// Upload writes data under path, overwriting any previous object there.
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data),
		int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	s.logger.Printf("uploaded %s (%d bytes)", path, len(data))
	return nil
}

// PublicURL returns the browsable URL for a stored key.
func (s *Store) PublicURL(path string) string {
	return s.public + "/" + path
}

// Remove deletes an object. Missing objects are not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
