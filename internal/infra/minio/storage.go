package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/yelerty/stickermaker/internal/domain/port"
)

// Storage keeps user uploads and rendered outputs in separate buckets. Both may be
// the same bucket.
type Storage struct {
	client  *miniogo.Client
	inputs  string
	outputs string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	InputBucket  string
	OutputBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	if cfg.InputBucket == "" || cfg.OutputBucket == "" {
		return nil, errors.New("input and output buckets are required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", cfg.Endpoint, err)
	}

	return &Storage{client: client, inputs: cfg.InputBucket, outputs: cfg.OutputBucket}, nil
}

func (s *Storage) buckets() []string {
	if s.inputs == s.outputs {
		return []string{s.inputs}
	}
	return []string{s.inputs, s.outputs}
}

// EnsureBuckets creates missing buckets. A bucket created concurrently by another
// worker counts as present.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range s.buckets() {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		err = s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{})
		if err != nil && !alreadyOwned(err) {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// DownloadInput writes the object to destPath. Missing keys map to
// port.ErrObjectNotFound and leave no partial file behind.
func (s *Storage) DownloadInput(ctx context.Context, objectKey string, destPath string) error {
	err := s.client.FGetObject(ctx, s.inputs, objectKey, destPath, miniogo.GetObjectOptions{})
	if err == nil {
		return nil
	}
	_ = os.Remove(destPath)
	if notFound(err) {
		return fmt.Errorf("%s/%s: %w", s.inputs, objectKey, port.ErrObjectNotFound)
	}
	return fmt.Errorf("download %s/%s: %w", s.inputs, objectKey, err)
}

func (s *Storage) UploadOutput(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	info, err := s.client.PutObject(ctx, s.outputs, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.outputs, objectKey, err)
	}
	if size >= 0 && info.Size != size {
		return fmt.Errorf("upload %s/%s: wrote %d of %d bytes", s.outputs, objectKey, info.Size, size)
	}
	return nil
}

func notFound(err error) bool {
	switch miniogo.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

func alreadyOwned(err error) bool {
	return miniogo.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou"
}
