// Package storage defines interfaces for persisting frames to blob storage.
//
// This package provides abstractions for writing frames to various
// storage backends (S3, Azure Blob, GCS, local filesystem).
package storage

import (
	"context"

	"github.com/jittakal/kafcoldstore/pkg/event"
)

// BlobWriter persists the pending frames of one partition.
type BlobWriter interface {
	// Write stores frames, in order, as a single blob. A nil error means the
	// whole list is durable; any error means none of it may be assumed written.
	Write(ctx context.Context, frames []*event.Frame) error

	// Close releases resources held for the partition.
	Close() error
}

// WriterFactory constructs the blob writer for a partition.
type WriterFactory func(partitionID event.PartitionID) (BlobWriter, error)

// Router determines blob keys for a run of frames.
type Router interface {
	// Route returns the object key for frames written by the partition.
	Route(partitionID event.PartitionID, frames []*event.Frame) string

	// URI renders a key as a fully qualified location for logging.
	URI(key string) string
}
