package event

import (
	"errors"
	"fmt"
)

// ErrFrameFull is returned when an append would exceed the frame capacity.
var ErrFrameFull = errors.New("frame capacity exceeded")

// Frame is a contiguous run of serialized records backed by a pooled buffer.
//
// A frame is appendable only while it is a partition's current frame. Once it
// has been queued for writing it must be treated as read-only.
type Frame struct {
	buf   []byte
	used  int
	first *Event
	last  *Event
}

// NewFrame wraps a buffer. The frame capacity is len(buf).
func NewFrame(buf []byte) *Frame {
	return &Frame{buf: buf}
}

// Append copies record into the frame and records e as the last event.
func (f *Frame) Append(record []byte, e *Event) error {
	if f.used+len(record) > len(f.buf) {
		return fmt.Errorf("%w: used=%d record=%d capacity=%d", ErrFrameFull, f.used, len(record), len(f.buf))
	}
	copy(f.buf[f.used:], record)
	f.used += len(record)
	if f.first == nil {
		f.first = e
	}
	f.last = e
	return nil
}

// Fits reports whether n more bytes can be appended.
func (f *Frame) Fits(n int) bool {
	return f.used+n <= len(f.buf)
}

// Bytes returns the used portion of the frame.
func (f *Frame) Bytes() []byte { return f.buf[:f.used] }

// Len returns the number of used bytes.
func (f *Frame) Len() int { return f.used }

// Cap returns the frame capacity in bytes.
func (f *Frame) Cap() int { return len(f.buf) }

// IsEmpty reports whether nothing has been appended.
func (f *Frame) IsEmpty() bool { return f.used == 0 }

// FirstEvent returns the first appended event, or nil.
func (f *Frame) FirstEvent() *Event { return f.first }

// LastEvent returns the most recently appended event, or nil.
func (f *Frame) LastEvent() *Event { return f.last }

// Buffer returns the backing buffer so it can be handed back to its pool.
func (f *Frame) Buffer() []byte { return f.buf }
