package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sink stores a rendered artifact and returns its location.
type Sink interface {
	Put(ctx context.Context, artifact Artifact) (string, error)
}

// LocalSink writes artifacts into an export directory.
type LocalSink struct {
	Dir string
}

func (s LocalSink) Put(_ context.Context, artifact Artifact) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.Dir, artifact.Name)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", artifact.Name, err)
	}
	return path, nil
}

// ObjectSink uploads artifacts to S3-compatible object storage so
// reports survive host rotation and can be shared by URL.
type ObjectSink struct {
	client *minio.Client
	bucket string
}

type ObjectSinkConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewObjectSink(cfg ObjectSinkConfig) (*ObjectSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &ObjectSink{client: client, bucket: cfg.Bucket}, nil
}

func (s *ObjectSink) Put(ctx context.Context, artifact Artifact) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, artifact.Name,
		bytes.NewReader(artifact.Data), int64(len(artifact.Data)),
		minio.PutObjectOptions{ContentType: artifact.ContentType})
	if err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", artifact.Name, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, artifact.Name), nil
}
