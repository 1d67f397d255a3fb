package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
)

// Ensure implementation satisfies interface at compile time.
var _ Backend = (*FileBackend)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileBackend stores blobs on the local filesystem.
// Each Put writes a temporary file in the target directory, syncs it and
// renames it into place so readers never observe a partial blob.
type FileBackend struct {
	basePath string
	logger   *slog.Logger
}

// NewFileBackend creates a new filesystem backend.
func NewFileBackend(cfg FileConfig, logger *slog.Logger) (*FileBackend, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("file backend: base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: cfg.BasePath, Err: err}
	}

	logger.Info("file backend created", "base_path", cfg.BasePath)

	return &FileBackend{basePath: cfg.BasePath, logger: logger}, nil
}

// Name returns the backend name used in metrics.
func (b *FileBackend) Name() string { return "file" }

// BasePath returns the directory blobs are written under.
func (b *FileBackend) BasePath() string { return b.basePath }

// Put writes blocks, in order, to basePath/key.
func (b *FileBackend) Put(ctx context.Context, key string, blocks [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(b.basePath, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &apperrors.StorageError{Operation: "create", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return &apperrors.StorageError{Operation: "create", Path: target, Err: err}
	}
	tmpName := tmp.Name()

	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &apperrors.StorageError{Operation: op, Path: target, Err: err}
	}

	for _, block := range blocks {
		if _, err := tmp.Write(block); err != nil {
			return fail("write", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fail("write", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &apperrors.StorageError{Operation: "write", Path: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return &apperrors.StorageError{Operation: "rename", Path: target, Err: err}
	}

	return nil
}

// Close closes the backend.
func (b *FileBackend) Close() error {
	b.logger.Info("file backend closed")
	return nil
}
