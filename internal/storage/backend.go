package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	Type     string
	BasePath string
	File     FileConfig
	S3       S3Config
	Azure    AzureConfig
	GCS      GCSConfig
}

// NewBackend creates the backend named by cfg.Type.
func NewBackend(ctx context.Context, cfg BackendConfig, logger *slog.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Type) {
	case "file", "local":
		return NewFileBackend(cfg.File, logger)
	case "s3":
		return NewS3Backend(ctx, cfg.S3, logger)
	case "azure":
		return NewAzureBackend(cfg.Azure, logger)
	case "gcs":
		return NewGCSBackend(ctx, cfg.GCS, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewBackendRouter creates a router whose URIs match the backend's scheme.
func NewBackendRouter(cfg BackendConfig, extension string) *DefaultRouter {
	switch strings.ToLower(cfg.Type) {
	case "s3":
		return NewRouter("s3", cfg.S3.Bucket, cfg.BasePath, extension)
	case "azure":
		return NewRouter("wasbs", cfg.Azure.ContainerName, cfg.BasePath, extension)
	case "gcs":
		return NewRouter("gs", cfg.GCS.Bucket, cfg.BasePath, extension)
	default:
		return NewRouter("file", cfg.File.BasePath, cfg.BasePath, extension)
	}
}
