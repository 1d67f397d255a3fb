package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/event"
	"github.com/jittakal/kafcoldstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.BlobWriter = (*PartitionWriter)(nil)

// Backend stores a run of blocks as a single object.
//
// Put must be idempotent for a given key: a retried write replaces the object.
// Errors should be *errors.StorageError so retryable operations can be told
// apart from permanent failures.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, blocks [][]byte) error
	Close() error
}

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncBlobsWritten(backend string, status string)
	ObserveBlobWrite(backend string, seconds float64, size int)
	IncStorageErrors(backend string, operation string)
	IncStorageRetries(backend string)
}

// RetryConfig bounds the retries of a single blob write.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the retry settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

func (r RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		exp.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		exp.MaxInterval = r.MaxInterval
	}
	if r.Multiplier > 0 {
		exp.Multiplier = r.Multiplier
	}
	// The write timeout bounds the whole call; attempts bound the retries.
	exp.MaxElapsedTime = 0

	retries := uint64(0)
	if r.MaxAttempts > 1 {
		retries = uint64(r.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)
}

// WriterConfig configures the blob writers created by a factory.
type WriterConfig struct {
	Compression Compression
	Retry       RetryConfig
}

// PartitionWriter writes runs of frames for a single partition.
// One object is produced per Write call, named by the router.
type PartitionWriter struct {
	partition  event.PartitionID
	backend    Backend
	router     storage.Router
	compressor *compressor
	retry      RetryConfig
	logger     *slog.Logger
	metrics    MetricsCollector
	closed     atomic.Bool
}

// NewWriterFactory returns a factory producing a PartitionWriter per partition.
// All writers share the backend; closing a writer does not close the backend.
func NewWriterFactory(
	backend Backend,
	router storage.Router,
	cfg WriterConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) storage.WriterFactory {
	return func(partitionID event.PartitionID) (storage.BlobWriter, error) {
		comp, err := newCompressor(cfg.Compression)
		if err != nil {
			return nil, err
		}
		return &PartitionWriter{
			partition:  partitionID,
			backend:    backend,
			router:     router,
			compressor: comp,
			retry:      cfg.Retry,
			logger:     logger.With("partition", partitionID.String(), "backend", backend.Name()),
			metrics:    metrics,
		}, nil
	}
}

// Write persists frames, in order, as one object. Retryable backend errors are
// retried with exponential backoff until the attempts are spent or ctx ends.
func (w *PartitionWriter) Write(ctx context.Context, frames []*event.Frame) error {
	if w.closed.Load() {
		return apperrors.ErrWriterClosed
	}
	if len(frames) == 0 {
		return nil
	}

	key := w.router.Route(w.partition, frames)

	blocks := make([][]byte, 0, len(frames))
	size := 0
	for _, f := range frames {
		if f.IsEmpty() {
			continue
		}
		b, err := w.compressor.block(f.Bytes())
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
		size += len(b)
	}
	if len(blocks) == 0 {
		return nil
	}

	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 && w.metrics != nil {
			w.metrics.IncStorageRetries(w.backend.Name())
		}
		err := w.backend.Put(ctx, key, blocks)
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		w.logger.Warn("blob write failed, retrying",
			"key", key,
			"attempt", attempt,
			"retry_in", next,
			"error", err)
	}

	if err := backoff.RetryNotify(op, w.retry.backOff(ctx), notify); err != nil {
		w.recordFailure(err)
		w.logger.Error("blob write failed",
			"uri", w.router.URI(key),
			"attempts", attempt,
			"error", err)
		return fmt.Errorf("failed to write %s: %w", w.router.URI(key), err)
	}

	if w.metrics != nil {
		w.metrics.IncBlobsWritten(w.backend.Name(), "success")
		w.metrics.ObserveBlobWrite(w.backend.Name(), time.Since(start).Seconds(), size)
	}

	w.logger.Debug("blob written",
		"uri", w.router.URI(key),
		"frames", len(blocks),
		"bytes", size,
		"attempts", attempt,
		"duration", time.Since(start))

	return nil
}

func (w *PartitionWriter) recordFailure(err error) {
	if w.metrics == nil {
		return
	}
	w.metrics.IncBlobsWritten(w.backend.Name(), "error")
	op := "unknown"
	var storageErr *apperrors.StorageError
	if errors.As(err, &storageErr) {
		op = storageErr.Operation
	}
	w.metrics.IncStorageErrors(w.backend.Name(), op)
}

// Close marks the writer closed. It is idempotent.
func (w *PartitionWriter) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.compressor.close()
	return nil
}
