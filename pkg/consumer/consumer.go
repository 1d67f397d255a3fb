// Package consumer defines the contract between a partition host and the
// per-partition event processors it drives.
//
// The host guarantees that calls for one partition never overlap, that
// every Open is eventually followed by Close, and that processors for
// different partitions may run concurrently.
package consumer

import (
	"context"

	"github.com/jittakal/kafcoldstore/pkg/event"
)

// LeaseInfo describes the ownership of a partition.
type LeaseInfo struct {
	Owner         string
	Token         string
	InitialOffset int64
}

// LeaseContext is supplied by the host for the lifetime of a lease.
type LeaseContext interface {
	// Partition identifies the leased partition.
	Partition() event.PartitionID

	// Lease returns ownership details.
	Lease() LeaseInfo

	// Checkpoint records that every event up to and including e is durable.
	Checkpoint(ctx context.Context, e *event.Event) error
}

// EventProcessor handles one partition's lease lifecycle.
type EventProcessor interface {
	// Open is called once when the lease is obtained.
	Open(ctx context.Context, lease LeaseContext) error

	// ProcessEvents handles a batch. An empty batch signals a receive timeout.
	ProcessEvents(ctx context.Context, lease LeaseContext, events []*event.Event) error

	// Close is called once when the lease ends.
	Close(ctx context.Context, lease LeaseContext, reason event.CloseReason) error
}

// ProcessorFactory creates a processor for a newly leased partition.
type ProcessorFactory interface {
	NewProcessor(partitionID event.PartitionID) (EventProcessor, error)
}

// Instrumentation receives lifecycle notifications from a processor.
type Instrumentation interface {
	LeaseObtained()
	LeaseLost()
	EventsProcessed(count int)
	EventsSkipped(count int)
	FrameCached()
	FrameCacheFlushed(count int)
	FramesDiscarded(count int)
}

// DLQPublisher publishes events that could not be persisted.
type DLQPublisher interface {
	// Publish sends an event to the dead letter topic with failure information.
	Publish(ctx context.Context, e *event.Event, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}

// NoopInstrumentation discards every notification.
type NoopInstrumentation struct{}

func (NoopInstrumentation) LeaseObtained()        {}
func (NoopInstrumentation) LeaseLost()            {}
func (NoopInstrumentation) EventsProcessed(int)   {}
func (NoopInstrumentation) EventsSkipped(int)     {}
func (NoopInstrumentation) FrameCached()          {}
func (NoopInstrumentation) FrameCacheFlushed(int) {}
func (NoopInstrumentation) FramesDiscarded(int)   {}
