package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL overrides the scheme://endpoint/bucket prefix of
	// returned URLs, e.g. when a CDN fronts the bucket.
	PublicBaseURL string
}

type Minio struct {
	client *minio.Client
	cfg    MinioConfig
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Minio{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads data as application/pdf and returns its public URL.
func (s *Minio) Put(ctx context.Context, name string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return s.PublicURL(name), nil
}

// PublicURL returns the object's URL; the bucket policy must allow reads.
func (s *Minio) PublicURL(name string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + name
	}
	protocol := "http"
	if s.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.cfg.Endpoint, s.cfg.Bucket, name)
}
