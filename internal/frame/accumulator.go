// Package frame manages a partition's current frame and its queue of
// frames awaiting a durable write.
package frame

import (
	"context"
	"fmt"

	"github.com/jittakal/kafcoldstore/pkg/buffer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Accumulator owns the partition's current frame and fills it with records.
// It is not safe for concurrent use; the host serializes calls per partition.
type Accumulator struct {
	pool    buffer.Pool
	maxSize int
	current *event.Frame
}

// NewAccumulator creates an accumulator whose frames hold at most maxSize bytes.
func NewAccumulator(pool buffer.Pool, maxSize int) *Accumulator {
	return &Accumulator{pool: pool, maxSize: maxSize}
}

// Renew takes a fresh buffer for the current frame if there is none.
func (a *Accumulator) Renew(ctx context.Context) error {
	if a.current != nil {
		return nil
	}
	buf, err := a.pool.Take(ctx, a.maxSize)
	if err != nil {
		return fmt.Errorf("failed to take frame buffer: %w", err)
	}
	a.current = event.NewFrame(buf[:a.maxSize])
	return nil
}

// Fits reports whether a record of n bytes can be appended to the current frame.
func (a *Accumulator) Fits(n int) bool {
	return a.current != nil && a.current.Fits(n)
}

// Append adds a record to the current frame.
func (a *Accumulator) Append(record []byte, e *event.Event) error {
	if a.current == nil {
		return fmt.Errorf("no current frame")
	}
	return a.current.Append(record, e)
}

// HasData reports whether the current frame holds any bytes.
func (a *Accumulator) HasData() bool {
	return a.current != nil && !a.current.IsEmpty()
}

// Finalize detaches the current frame if it holds data. The caller owns the
// returned frame and its buffer; Renew must be called before the next Append.
func (a *Accumulator) Finalize() (*event.Frame, bool) {
	if !a.HasData() {
		return nil, false
	}
	f := a.current
	a.current = nil
	return f, true
}

// Release returns the current frame's buffer to the pool, discarding its contents.
func (a *Accumulator) Release() error {
	if a.current == nil {
		return nil
	}
	buf := a.current.Buffer()
	a.current = nil
	return a.pool.Return(buf)
}

// Used returns the number of bytes in the current frame.
func (a *Accumulator) Used() int {
	if a.current == nil {
		return 0
	}
	return a.current.Len()
}

// MaxSize returns the frame capacity.
func (a *Accumulator) MaxSize() int { return a.maxSize }
