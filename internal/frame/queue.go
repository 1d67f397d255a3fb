package frame

import (
	"errors"

	"github.com/jittakal/kafcoldstore/pkg/buffer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Queue holds finalized frames in arrival order until they are written.
type Queue struct {
	frames []*event.Frame
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a finalized frame.
func (q *Queue) Push(f *event.Frame) {
	q.frames = append(q.frames, f)
}

// Len returns the number of pending frames.
func (q *Queue) Len() int { return len(q.frames) }

// Frames returns the pending frames in order. The slice must not be modified.
func (q *Queue) Frames() []*event.Frame { return q.frames }

// Bytes returns the total number of pending bytes.
func (q *Queue) Bytes() int {
	n := 0
	for _, f := range q.frames {
		n += f.Len()
	}
	return n
}

// LastEvent returns the checkpoint candidate: the last event of the last frame.
func (q *Queue) LastEvent() *event.Event {
	if len(q.frames) == 0 {
		return nil
	}
	return q.frames[len(q.frames)-1].LastEvent()
}

// Release returns every pending buffer to pool and empties the queue.
// All buffers are attempted even if one is rejected.
func (q *Queue) Release(pool buffer.Pool) (int, error) {
	n := len(q.frames)
	var errs []error
	for i, f := range q.frames {
		if err := pool.Return(f.Buffer()); err != nil {
			errs = append(errs, err)
		}
		q.frames[i] = nil
	}
	q.frames = q.frames[:0]
	return n, errors.Join(errs...)
}
