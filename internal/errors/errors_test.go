package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jittakal/kafcoldstore/pkg/event"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrPoolExhausted", ErrPoolExhausted},
		{"ErrBufferNotOwned", ErrBufferNotOwned},
		{"ErrBufferTooLarge", ErrBufferTooLarge},
		{"ErrProcessorClosed", ErrProcessorClosed},
		{"ErrInvalidState", ErrInvalidState},
		{"ErrLeaseLost", ErrLeaseLost},
		{"ErrTransientStorage", ErrTransientStorage},
		{"ErrMissingProperty", ErrMissingProperty},
		{"ErrRecordTooLarge", ErrRecordTooLarge},
		{"ErrConsumerClosed", ErrConsumerClosed},
		{"ErrWriterClosed", ErrWriterClosed},
		{"ErrConnectionLost", ErrConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestSerializationError(t *testing.T) {
	serErr := &SerializationError{
		PartitionID: event.PartitionID{Topic: "sensors", Partition: 2},
		Offset:      100,
		Err:         fmt.Errorf("%w: Motion", ErrMissingProperty),
	}

	if serErr.Error() == "" {
		t.Error("SerializationError should have an error message")
	}
	if !errors.Is(serErr, ErrMissingProperty) {
		t.Error("SerializationError should wrap the cause")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := &StorageError{
		Operation: "write",
		Path:      "/data/sensors/00000000000000000001-00000000000000000009.jsonl",
		Err:       baseErr,
	}

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}
	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestCheckpointError(t *testing.T) {
	baseErr := errors.New("broker unavailable")
	cpErr := &CheckpointError{
		PartitionID: event.PartitionID{Topic: "sensors", Partition: 0},
		Offset:      200,
		Err:         baseErr,
	}

	if cpErr.Error() == "" {
		t.Error("CheckpointError should have an error message")
	}
	if !errors.Is(cpErr, baseErr) {
		t.Error("CheckpointError should wrap base error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "write storage error is retryable",
			err:  &StorageError{Operation: "write", Path: "/tmp/file", Err: errors.New("failed")},
			want: true,
		},
		{
			name: "commit storage error is retryable",
			err:  fmt.Errorf("upload: %w", &StorageError{Operation: "commit", Err: errors.New("503")}),
			want: true,
		},
		{
			name: "open storage error is not retryable",
			err:  &StorageError{Operation: "open", Err: errors.New("no such bucket")},
			want: false,
		},
		{
			name: "connection lost is retryable",
			err:  ErrConnectionLost,
			want: true,
		},
		{
			name: "generic error is not retryable",
			err:  errors.New("generic error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBenignCheckpoint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"lease lost", ErrLeaseLost, true},
		{"wrapped transient storage", fmt.Errorf("ledger: %w", ErrTransientStorage), true},
		{"other", errors.New("authorization failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBenignCheckpoint(tt.err); got != tt.want {
				t.Errorf("IsBenignCheckpoint() = %v, want %v", got, tt.want)
			}
		})
	}
}
