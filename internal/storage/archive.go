package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/zalagh/plancher-backend/internal/config"
)

// Archiver mirrors a local file to long-term storage under key.
type Archiver interface {
	Mirror(ctx context.Context, key, diskPath, contentType string) error
}

// NoopArchiver discards mirror requests.
type NoopArchiver struct{}

func (NoopArchiver) Mirror(context.Context, string, string, string) error { return nil }

// MinioArchiver mirrors files to an S3-compatible bucket.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects to the endpoint in cfg and creates the bucket if
// it does not exist yet.
func NewMinioArchiver(ctx context.Context, cfg config.ArchiveConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

// Mirror uploads diskPath as key.
func (m *MinioArchiver) Mirror(ctx context.Context, key, diskPath, contentType string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, key, diskPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// NewArchiver returns a MinioArchiver when cfg is enabled and a NoopArchiver
// otherwise. A misconfigured archive is logged and disabled rather than
// failing startup.
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) Archiver {
	if !cfg.Enabled() {
		return NoopArchiver{}
	}
	a, err := NewMinioArchiver(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", cfg.Endpoint).Msg("archive disabled")
		return NoopArchiver{}
	}
	return a
}

// MirrorBestEffort mirrors a file and only logs failures.
func MirrorBestEffort(ctx context.Context, a Archiver, key, diskPath string) {
	if a == nil {
		return
	}
	if err := a.Mirror(ctx, key, diskPath, "application/pdf"); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("archive mirror failed")
	}
}
