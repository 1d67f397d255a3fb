package storage

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/kafcoldstore/pkg/event"
)

// mockMetricsCollector implements MetricsCollector for testing
type mockMetricsCollector struct {
	mu                 sync.Mutex
	blobsWritten       map[string]int
	blobSizes          []int
	storageErrors      int
	retries            int
	lastErrorBackend   string
	lastErrorOperation string
}

func newMockMetrics() *mockMetricsCollector {
	return &mockMetricsCollector{blobsWritten: make(map[string]int)}
}

func (m *mockMetricsCollector) IncBlobsWritten(backend string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobsWritten[status]++
}

func (m *mockMetricsCollector) ObserveBlobWrite(backend string, seconds float64, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobSizes = append(m.blobSizes, size)
}

func (m *mockMetricsCollector) IncStorageErrors(backend string, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageErrors++
	m.lastErrorBackend = backend
	m.lastErrorOperation = operation
}

func (m *mockMetricsCollector) IncStorageRetries(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPartition = event.PartitionID{Topic: "sensors", Partition: 3}

// newTestFrame builds a frame holding one record per offset.
func newTestFrame(t *testing.T, ts time.Time, offsets ...int64) *event.Frame {
	t.Helper()
	f := event.NewFrame(make([]byte, 1024))
	for _, off := range offsets {
		e := &event.Event{
			Topic:        testPartition.Topic,
			Partition:    testPartition.Partition,
			Offset:       off,
			EnqueuedTime: ts,
		}
		if err := f.Append([]byte("{\"offset\":"+strconv.FormatInt(off, 10)+"}\r\n"), e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	return f
}
