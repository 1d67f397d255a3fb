package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/internal/frame"
	"github.com/jittakal/kafcoldstore/pkg/buffer"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
	"github.com/jittakal/kafcoldstore/pkg/storage"
)

// coordinator owns the pending queue and performs write-then-checkpoint.
type coordinator struct {
	partition    event.PartitionID
	queue        *frame.Queue
	pool         buffer.Pool
	instr        consumer.Instrumentation
	logger       *slog.Logger
	writeTimeout time.Duration

	writer storage.BlobWriter

	depth          atomic.Int64
	lastCheckpoint atomic.Int64
}

func newCoordinator(partition event.PartitionID, pool buffer.Pool, instr consumer.Instrumentation, logger *slog.Logger, writeTimeout time.Duration) *coordinator {
	c := &coordinator{
		partition:    partition,
		queue:        frame.NewQueue(),
		pool:         pool,
		instr:        instr,
		logger:       logger,
		writeTimeout: writeTimeout,
	}
	c.lastCheckpoint.Store(-1)
	return c
}

// enqueue moves a finalized frame into the pending queue.
func (c *coordinator) enqueue(f *event.Frame) {
	c.queue.Push(f)
	c.depth.Store(int64(c.queue.Len()))
	c.instr.FrameCached()
}

// pending returns the queue depth.
func (c *coordinator) pending() int { return c.queue.Len() }

// flushAndCheckpoint writes the pending queue and, on success, releases its
// buffers and checkpoints the last written event. A failed write keeps the
// queue intact for the next trigger. Only a non-benign checkpoint failure or a
// pool contract violation is returned.
func (c *coordinator) flushAndCheckpoint(ctx context.Context, lease consumer.LeaseContext) error {
	if c.queue.Len() == 0 {
		return nil
	}

	frames := c.queue.Frames()
	if err := c.write(ctx, frames); err != nil {
		c.logger.Warn("failed to write pending frames, will retry on next trigger",
			"frames", len(frames),
			"bytes", c.queue.Bytes(),
			"error", err)
		return nil
	}

	marker := c.queue.LastEvent()
	if err := c.release(); err != nil {
		return err
	}

	cpCtx, cancel := c.detached(ctx)
	defer cancel()

	if err := lease.Checkpoint(cpCtx, marker); err != nil {
		if errors.IsBenignCheckpoint(err) {
			c.logger.Warn("checkpoint skipped", "offset", marker.Offset, "error", err)
			return nil
		}
		return &errors.CheckpointError{PartitionID: c.partition, Offset: marker.Offset, Err: err}
	}

	c.lastCheckpoint.Store(marker.Offset)
	c.logger.Debug("checkpoint completed", "offset", marker.Offset)
	return nil
}

func (c *coordinator) write(ctx context.Context, frames []*event.Frame) error {
	if c.writer == nil {
		return fmt.Errorf("no blob writer for partition %s", c.partition)
	}
	wctx, cancel := c.detached(ctx)
	defer cancel()
	return c.writer.Write(wctx, frames)
}

// detached derives a context that survives cancellation of the caller so an
// in-flight write or checkpoint is not aborted halfway.
func (c *coordinator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if c.writeTimeout > 0 {
		return context.WithTimeout(base, c.writeTimeout)
	}
	return context.WithCancel(base)
}

// release returns every queued buffer after a successful write.
func (c *coordinator) release() error {
	n, err := c.queue.Release(c.pool)
	c.depth.Store(0)
	c.instr.FrameCacheFlushed(n)
	if err != nil {
		return fmt.Errorf("failed to return frame buffers: %w", err)
	}
	return nil
}

// discard drops the pending queue without writing.
func (c *coordinator) discard() (int, error) {
	n, err := c.queue.Release(c.pool)
	c.depth.Store(0)
	if n > 0 {
		c.instr.FramesDiscarded(n)
	}
	if err != nil {
		return n, fmt.Errorf("failed to return frame buffers: %w", err)
	}
	return n, nil
}
