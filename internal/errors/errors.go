// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Sentinel errors for common conditions.
var (
	ErrPoolExhausted    = errors.New("buffer pool exhausted")
	ErrBufferNotOwned   = errors.New("buffer not owned by pool")
	ErrBufferTooLarge   = errors.New("requested buffer exceeds block size")
	ErrProcessorClosed  = errors.New("partition processor is closed")
	ErrInvalidState     = errors.New("invalid processor state")
	ErrLeaseLost        = errors.New("partition lease lost")
	ErrTransientStorage = errors.New("transient checkpoint storage failure")
	ErrMissingProperty  = errors.New("event property missing")
	ErrRecordTooLarge   = errors.New("record larger than frame")
	ErrConsumerClosed   = errors.New("consumer is closed")
	ErrWriterClosed     = errors.New("storage writer is closed")
	ErrConnectionLost   = errors.New("connection lost")
)

// SerializationError reports an event that could not be turned into a record.
type SerializationError struct {
	PartitionID event.PartitionID
	Offset      int64
	Err         error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: partition=%s offset=%d: %v",
		e.PartitionID, e.Offset, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CheckpointError represents a checkpoint failure that the processor cannot absorb.
type CheckpointError struct {
	PartitionID event.PartitionID
	Offset      int64
	Err         error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint error: partition=%s offset=%d: %v",
		e.PartitionID, e.Offset, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrTransientStorage)
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
// Configuration problems such as a missing bucket surface from "open" and are not retried.
func (e *StorageError) IsRetryable() bool {
	switch e.Operation {
	case "write", "upload", "create", "stage", "commit", "rename":
		return true
	default:
		return false
	}
}

// IsBenignCheckpoint reports whether a checkpoint failure is an expected race
// (another owner took the lease, or the checkpoint store hiccupped) that should
// be logged and swallowed rather than fail the partition.
func IsBenignCheckpoint(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrLeaseLost) || errors.Is(err, ErrTransientStorage)
}
