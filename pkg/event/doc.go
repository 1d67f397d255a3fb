// Package event defines the data types that flow through the ingestion engine.
//
// # Events
//
// Event is one record read from a partition. The partition host builds it
// from a Kafka message; Properties carry message headers and, for structured
// CloudEvents, the event's context attributes:
//
//	e := &event.Event{
//	    Topic:      "sensor-events",
//	    Partition:  3,
//	    Offset:     1042,
//	    Properties: map[string]any{"Location": "lab-1", "Motion": true},
//	}
//
// # Frames
//
// Frame is a fixed-capacity byte region filled with serialized records.
// It remembers the first and the last event appended so that blob names and
// checkpoints can be derived from it:
//
//	frame := event.NewFrame(buf)
//	if err := frame.Append(record, e); errors.Is(err, event.ErrFrameFull) {
//	    // finalize and start a new frame
//	}
//
// # Close reasons
//
// CloseReasonShutdown asks a processor to persist what it holds;
// CloseReasonLeaseLost asks it to drop pending work without writing.
package event
