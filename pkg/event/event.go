// Package event defines the core data types shared by the ingestion engine,
// the partition host and the blob writers.
package event

import (
	"fmt"
	"time"
)

// Event is a single record received from a partition.
// Events are immutable once handed to a processor.
type Event struct {
	Topic        string
	Partition    int32
	PartitionKey string
	Offset       int64
	Properties   map[string]any
	Payload      []byte
	EnqueuedTime time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// PartitionID returns the partition the event was read from.
func (e *Event) PartitionID() PartitionID {
	return PartitionID{Topic: e.Topic, Partition: e.Partition}
}

// Property returns the named property and whether it was present.
func (e *Event) Property(name string) (any, bool) {
	if e.Properties == nil {
		return nil, false
	}
	v, ok := e.Properties[name]
	return v, ok
}

// CloseReason tells a processor why its lease is ending.
type CloseReason int

const (
	// CloseReasonShutdown means the host is stopping and pending work should be persisted.
	CloseReasonShutdown CloseReason = iota
	// CloseReasonLeaseLost means another owner took the partition; pending work must be dropped.
	CloseReasonLeaseLost
)

// String implements fmt.Stringer.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonShutdown:
		return "shutdown"
	case CloseReasonLeaseLost:
		return "lease_lost"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// RecordFormat names the persisted record encoding.
type RecordFormat string

const (
	FormatJSON     RecordFormat = "json"
	FormatAvroJSON RecordFormat = "avro-json"
)

// Extension returns the blob file extension for the format.
func (f RecordFormat) Extension() string {
	switch f {
	case FormatAvroJSON:
		return ".avrojson"
	default:
		return ".jsonl"
	}
}
