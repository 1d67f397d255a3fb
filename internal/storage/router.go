// Package storage implements the blob writers that persist frames.
package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/kafcoldstore/pkg/event"
	"github.com/jittakal/kafcoldstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Router = (*DefaultRouter)(nil)

// DefaultRouter implements Hive-style partitioning for blob keys.
type DefaultRouter struct {
	scheme    string
	bucket    string
	basePath  string
	extension string
	now       func() time.Time
}

// NewRouter creates a new blob router. extension is appended to every key.
func NewRouter(scheme, bucket, basePath, extension string) *DefaultRouter {
	return &DefaultRouter{
		scheme:    scheme,
		bucket:    bucket,
		basePath:  strings.Trim(basePath, "/"),
		extension: extension,
		now:       time.Now,
	}
}

// Route returns the key for a run of frames.
// Format: basePath/topic/dt=YYYY-MM-DD/pid=N/<firstOffset>-<lastOffset><ext>
//
// Offsets are zero padded so keys sort in offset order, and the key is a pure
// function of the frames so a retry inside one Write replaces rather than
// duplicates. That holds only for the same run of frames: a write that timed
// out after the object was stored stays queued, and the next trigger writes it
// again under <firstOffset>-<newLastOffset> once more frames have joined. The
// two objects then overlap, so delivery across blobs is at-least-once and
// readers deduplicate by offset.
// The date comes from the first event's enqueued time, falling back to the
// current time when the host supplied none.
func (r *DefaultRouter) Route(partitionID event.PartitionID, frames []*event.Frame) string {
	first, last := boundaryEvents(frames)

	ts := time.Time{}
	if first != nil {
		ts = first.EnqueuedTime
	}
	if ts.IsZero() {
		ts = r.now()
	}

	var firstOffset, lastOffset int64
	if first != nil {
		firstOffset = first.Offset
	}
	if last != nil {
		lastOffset = last.Offset
	}

	name := fmt.Sprintf("%020d-%020d%s", firstOffset, lastOffset, r.extension)
	return path.Join(
		r.basePath,
		partitionID.Topic,
		"dt="+ts.UTC().Format("2006-01-02"),
		fmt.Sprintf("pid=%d", partitionID.Partition),
		name,
	)
}

// URI renders a key as scheme://bucket/key for logging. For the file scheme
// the bucket is the backend directory and the result is a file URI.
func (r *DefaultRouter) URI(key string) string {
	if r.scheme == "file" {
		p := path.Join(filepath.ToSlash(r.bucket), key)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		return "file://" + p
	}
	return fmt.Sprintf("%s://%s/%s", r.scheme, r.bucket, key)
}

func boundaryEvents(frames []*event.Frame) (first, last *event.Event) {
	for _, f := range frames {
		if f.FirstEvent() != nil {
			first = f.FirstEvent()
			break
		}
	}
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].LastEvent() != nil {
			last = frames[i].LastEvent()
			break
		}
	}
	return first, last
}
