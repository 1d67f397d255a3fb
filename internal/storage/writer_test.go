package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// fakeBackend records puts and fails according to errs.
type fakeBackend struct {
	mu    sync.Mutex
	errs  []error
	calls int
	puts  map[string][]byte
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Put(ctx context.Context, key string, blocks [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		if err != nil {
			return err
		}
	}
	if b.puts == nil {
		b.puts = make(map[string][]byte)
	}
	b.puts[key] = bytes.Join(blocks, nil)
	return nil
}

func (b *fakeBackend) Close() error { return nil }

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func newTestWriter(t *testing.T, backend Backend, cfg WriterConfig, metrics MetricsCollector) *PartitionWriter {
	t.Helper()
	router := NewRouter("s3", "bucket", "base", ".jsonl"+cfg.Compression.Extension())
	w, err := NewWriterFactory(backend, router, cfg, discardLogger(), metrics)(testPartition)
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	return w.(*PartitionWriter)
}

func TestPartitionWriter_Write(t *testing.T) {
	backend := &fakeBackend{}
	metrics := newMockMetrics()
	w := newTestWriter(t, backend, WriterConfig{Retry: fastRetry(3)}, metrics)

	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	frames := []*event.Frame{newTestFrame(t, ts, 1, 2), newTestFrame(t, ts, 3)}
	if err := w.Write(context.Background(), frames); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	key := "base/sensors/dt=2025-03-01/pid=3/00000000000000000001-00000000000000000003.jsonl"
	got, ok := backend.puts[key]
	if !ok {
		t.Fatalf("no blob at %s, have %v", key, backend.puts)
	}
	want := "{\"offset\":1}\r\n{\"offset\":2}\r\n{\"offset\":3}\r\n"
	if string(got) != want {
		t.Errorf("content = %q, want %q", got, want)
	}
	if metrics.blobsWritten["success"] != 1 {
		t.Errorf("blobsWritten[success] = %v, want 1", metrics.blobsWritten["success"])
	}
	if len(metrics.blobSizes) != 1 || metrics.blobSizes[0] != len(want) {
		t.Errorf("blobSizes = %v, want [%d]", metrics.blobSizes, len(want))
	}
}

func TestPartitionWriter_WriteEmpty(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWriter(t, backend, WriterConfig{Retry: fastRetry(1)}, nil)

	if err := w.Write(context.Background(), nil); err != nil {
		t.Errorf("Write(nil) error = %v", err)
	}
	empty := event.NewFrame(make([]byte, 16))
	if err := w.Write(context.Background(), []*event.Frame{empty}); err != nil {
		t.Errorf("Write(empty) error = %v", err)
	}
	if backend.calls != 0 {
		t.Errorf("backend calls = %v, want 0", backend.calls)
	}
}

func TestPartitionWriter_RetriesRetryableErrors(t *testing.T) {
	transient := &apperrors.StorageError{Operation: "upload", Path: "k", Err: errors.New("503 slow down")}
	backend := &fakeBackend{errs: []error{transient, transient}}
	metrics := newMockMetrics()
	w := newTestWriter(t, backend, WriterConfig{Retry: fastRetry(3)}, metrics)

	if err := w.Write(context.Background(), []*event.Frame{newTestFrame(t, time.Now(), 1)}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %v, want 3", backend.calls)
	}
	if metrics.retries != 2 {
		t.Errorf("retries = %v, want 2", metrics.retries)
	}
}

func TestPartitionWriter_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := &apperrors.StorageError{Operation: "write", Path: "k", Err: errors.New("disk busy")}
	backend := &fakeBackend{errs: []error{transient, transient, transient, transient}}
	metrics := newMockMetrics()
	w := newTestWriter(t, backend, WriterConfig{Retry: fastRetry(2)}, metrics)

	err := w.Write(context.Background(), []*event.Frame{newTestFrame(t, time.Now(), 1)})
	if !errors.Is(err, transient) {
		t.Fatalf("Write() error = %v, want %v", err, transient)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %v, want 2", backend.calls)
	}
	if metrics.blobsWritten["error"] != 1 {
		t.Errorf("blobsWritten[error] = %v, want 1", metrics.blobsWritten["error"])
	}
	if metrics.lastErrorOperation != "write" {
		t.Errorf("lastErrorOperation = %v, want write", metrics.lastErrorOperation)
	}
}

func TestPartitionWriter_PermanentErrorNotRetried(t *testing.T) {
	permanent := &apperrors.StorageError{Operation: "open", Path: "k", Err: errors.New("no such bucket")}
	backend := &fakeBackend{errs: []error{permanent}}
	w := newTestWriter(t, backend, WriterConfig{Retry: fastRetry(5)}, nil)

	err := w.Write(context.Background(), []*event.Frame{newTestFrame(t, time.Now(), 1)})
	if !errors.Is(err, permanent) {
		t.Fatalf("Write() error = %v, want %v", err, permanent)
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %v, want 1", backend.calls)
	}
}

func TestPartitionWriter_Closed(t *testing.T) {
	w := newTestWriter(t, &fakeBackend{}, WriterConfig{}, nil)

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	err := w.Write(context.Background(), []*event.Frame{newTestFrame(t, time.Now(), 1)})
	if !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}
}

func TestPartitionWriter_Compression(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	want := "{\"offset\":1}\r\n{\"offset\":2}\r\n"

	tests := []struct {
		name   string
		codec  Compression
		decode func([]byte) ([]byte, error)
	}{
		{
			name:  "gzip",
			codec: CompressionGzip,
			decode: func(b []byte) ([]byte, error) {
				r, err := gzip.NewReader(bytes.NewReader(b))
				if err != nil {
					return nil, err
				}
				return io.ReadAll(r)
			},
		},
		{
			name:  "zstd",
			codec: CompressionZstd,
			decode: func(b []byte) ([]byte, error) {
				d, err := zstd.NewReader(nil)
				if err != nil {
					return nil, err
				}
				defer d.Close()
				return d.DecodeAll(b, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			w := newTestWriter(t, backend, WriterConfig{Compression: tt.codec, Retry: fastRetry(1)}, nil)
			defer w.Close()

			// Each frame is compressed on its own; the blob must still decode as one stream.
			frames := []*event.Frame{newTestFrame(t, ts, 1), newTestFrame(t, ts, 2)}
			if err := w.Write(context.Background(), frames); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			key := "base/sensors/dt=2025-03-01/pid=3/00000000000000000001-00000000000000000002.jsonl" + tt.codec.Extension()
			blob, ok := backend.puts[key]
			if !ok {
				t.Fatalf("no blob at %s, have %v", key, backend.puts)
			}
			got, err := tt.decode(blob)
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if string(got) != want {
				t.Errorf("decoded = %q, want %q", got, want)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"GZIP", CompressionGzip, false},
		{"zstd", CompressionZstd, false},
		{"snappy", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompression(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCompression() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCompression() = %v, want %v", got, tt.want)
			}
		})
	}
}
