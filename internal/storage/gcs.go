package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
)

// Ensure implementation satisfies interface at compile time.
var _ Backend = (*GCSBackend)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSBackend stores blobs in Google Cloud Storage.
// The object is created when the writer is closed; cancelling the upload
// context abandons it.
type GCSBackend struct {
	client    *storage.Client
	bucket    string
	newWriter func(ctx context.Context, key string) io.WriteCloser
	logger    *slog.Logger
}

// NewGCSBackend creates a new Google Cloud Storage backend.
func NewGCSBackend(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs backend: bucket is required")
	}

	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("gcs backend created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
	)

	bucket := client.Bucket(cfg.Bucket)
	return &GCSBackend{
		client: client,
		bucket: cfg.Bucket,
		newWriter: func(ctx context.Context, key string) io.WriteCloser {
			w := bucket.Object(key).NewWriter(ctx)
			w.ContentType = "application/octet-stream"
			return w
		},
		logger: logger,
	}, nil
}

// Name returns the backend name used in metrics.
func (b *GCSBackend) Name() string { return "gcs" }

// Put streams blocks, in order, to gs://bucket/key.
func (b *GCSBackend) Put(ctx context.Context, key string, blocks [][]byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.newWriter(ctx, key)
	for _, block := range blocks {
		if _, err := w.Write(block); err != nil {
			cancel()
			_ = w.Close()
			return &apperrors.StorageError{Operation: "write", Path: key, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return &apperrors.StorageError{Operation: "commit", Path: key, Err: err}
	}
	return nil
}

// Close releases the GCS client.
func (b *GCSBackend) Close() error {
	if b.client == nil {
		return nil
	}
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("failed to close GCS client: %w", err)
	}
	b.logger.Info("gcs backend closed")
	return nil
}
