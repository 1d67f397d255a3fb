// Package encoder defines the interface for turning events into persisted record bytes.
package encoder

import "github.com/jittakal/kafcoldstore/pkg/event"

// Encoder serializes one event into the bytes appended to a frame.
type Encoder interface {
	// Encode returns the record bytes for e, including any line delimiter.
	// An error means the event cannot be persisted and should be skipped.
	Encode(e *event.Event) ([]byte, error)

	// Format returns the record format this encoder produces.
	Format() event.RecordFormat
}
