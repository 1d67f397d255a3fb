package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
)

// Ensure implementation satisfies interface at compile time.
var _ Backend = (*S3Backend)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// s3Uploader is the subset of manager.Uploader used by the backend.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Backend stores blobs in AWS S3.
// Blocks are streamed through the multipart uploader without being joined.
type S3Backend struct {
	uploader    s3Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
}

// NewS3Backend creates a new S3 backend.
func NewS3Backend(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	logger.Info("s3 backend created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	return newS3Backend(uploader, cfg, logger), nil
}

func newS3Backend(uploader s3Uploader, cfg S3Config, logger *slog.Logger) *S3Backend {
	return &S3Backend{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
	}
}

// Name returns the backend name used in metrics.
func (b *S3Backend) Name() string { return "s3" }

// Put uploads blocks, in order, as s3://bucket/key.
func (b *S3Backend) Put(ctx context.Context, key string, blocks [][]byte) error {
	readers := make([]io.Reader, len(blocks))
	for i, block := range blocks {
		readers[i] = bytes.NewReader(block)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   io.MultiReader(readers...),
	}
	if b.sseEnabled {
		if b.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(b.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return &apperrors.StorageError{Operation: "upload", Path: key, Err: err}
	}
	return nil
}

// Close closes the backend. The AWS client holds no resources to release.
func (b *S3Backend) Close() error {
	b.logger.Info("s3 backend closed")
	return nil
}
