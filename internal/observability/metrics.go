package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jittakal/kafcoldstore/internal/breaker"
	"github.com/jittakal/kafcoldstore/pkg/buffer"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	MessagesSkipped    *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec

	// Processor metrics
	LeasesObtained  *prometheus.CounterVec
	LeasesLost      *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	FramesCached    *prometheus.CounterVec
	FramesFlushed   *prometheus.CounterVec
	FramesDiscarded *prometheus.CounterVec
	PendingFrames   *prometheus.GaugeVec
	BreakerState    *prometheus.GaugeVec

	// Buffer pool metrics
	PoolBuffersInUse     prometheus.Gauge
	PoolBuffersAllocated prometheus.Gauge

	// Storage metrics
	BlobsWritten      *prometheus.CounterVec
	BlobWriteDuration *prometheus.HistogramVec
	BlobSize          *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec
	StorageRetries    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	partitionLabels := []string{"topic", "partition"}

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			partitionLabels,
		),
		MessagesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_below_checkpoint_total",
				Help: "Messages dropped because the local checkpoint ledger shows them persisted",
			},
			partitionLabels,
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			partitionLabels,
		),

		LeasesObtained: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_leases_obtained_total",
				Help: "Total number of partition leases obtained",
			},
			partitionLabels,
		),
		LeasesLost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_leases_lost_total",
				Help: "Total number of partition leases lost to another owner",
			},
			partitionLabels,
		),
		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_events_processed_total",
				Help: "Total number of events appended to frames",
			},
			partitionLabels,
		),
		EventsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_events_skipped_total",
				Help: "Total number of events skipped because they could not be serialized",
			},
			partitionLabels,
		),
		FramesCached: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_frames_cached_total",
				Help: "Total number of frames queued for writing",
			},
			partitionLabels,
		),
		FramesFlushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_frames_flushed_total",
				Help: "Total number of frames durably written",
			},
			partitionLabels,
		),
		FramesDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_frames_discarded_total",
				Help: "Total number of frames dropped without writing",
			},
			partitionLabels,
		),
		PendingFrames: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "processor_pending_frames",
				Help: "Frames waiting for a durable write",
			},
			partitionLabels,
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "processor_breaker_state",
				Help: "Circuit breaker regime (0=closed, 1=warning, 2=open)",
			},
			partitionLabels,
		),

		PoolBuffersInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buffer_pool_in_use",
				Help: "Buffers currently held by frames",
			},
		),
		PoolBuffersAllocated: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buffer_pool_allocated",
				Help: "Buffers allocated by the pool",
			},
		),

		BlobsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobs_written_total",
				Help: "Total number of blob writes",
			},
			[]string{"backend", "status"},
		),
		BlobWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blob_write_duration_seconds",
				Help:    "Duration of blob writes including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		BlobSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blob_size_bytes",
				Help:    "Size of blobs written to storage",
				Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KiB to 128MiB
			},
			[]string{"backend"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
		StorageRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_retries_total",
				Help: "Total number of retried blob write attempts",
			},
			[]string{"backend"},
		),
	}
}

func partitionLabel(partition int32) string {
	return strconv.FormatInt(int64(partition), 10)
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, partitionLabel(partition)).Inc()
}

// IncMessagesSkipped increments the below-checkpoint counter.
func (m *Metrics) IncMessagesSkipped(topic string, partition int32) {
	m.MessagesSkipped.WithLabelValues(topic, partitionLabel(partition)).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, partitionLabel(partition), status).Inc()
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, partitionLabel(partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncBlobsWritten increments blob write counter.
func (m *Metrics) IncBlobsWritten(backend string, status string) {
	m.BlobsWritten.WithLabelValues(backend, status).Inc()
}

// ObserveBlobWrite records a completed blob write.
func (m *Metrics) ObserveBlobWrite(backend string, seconds float64, size int) {
	m.BlobWriteDuration.WithLabelValues(backend).Observe(seconds)
	m.BlobSize.WithLabelValues(backend).Observe(float64(size))
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncStorageRetries increments the retry counter.
func (m *Metrics) IncStorageRetries(backend string) {
	m.StorageRetries.WithLabelValues(backend).Inc()
}

// ObservePool records buffer pool usage.
func (m *Metrics) ObservePool(stats buffer.Stats) {
	m.PoolBuffersInUse.Set(float64(stats.InUse))
	m.PoolBuffersAllocated.Set(float64(stats.Allocated))
}

// ForPartition returns processor instrumentation bound to a partition.
func (m *Metrics) ForPartition(partitionID event.PartitionID) *PartitionInstrumentation {
	labels := prometheus.Labels{"topic": partitionID.Topic, "partition": partitionLabel(partitionID.Partition)}
	return &PartitionInstrumentation{
		leasesObtained:  m.LeasesObtained.With(labels),
		leasesLost:      m.LeasesLost.With(labels),
		eventsProcessed: m.EventsProcessed.With(labels),
		eventsSkipped:   m.EventsSkipped.With(labels),
		framesCached:    m.FramesCached.With(labels),
		framesFlushed:   m.FramesFlushed.With(labels),
		framesDiscarded: m.FramesDiscarded.With(labels),
		pending:         m.PendingFrames.With(labels),
		breaker:         m.BreakerState.With(labels),
	}
}

// Ensure implementation satisfies interface at compile time.
var _ consumer.Instrumentation = (*PartitionInstrumentation)(nil)

// PartitionInstrumentation reports one partition's processor lifecycle.
type PartitionInstrumentation struct {
	leasesObtained  prometheus.Counter
	leasesLost      prometheus.Counter
	eventsProcessed prometheus.Counter
	eventsSkipped   prometheus.Counter
	framesCached    prometheus.Counter
	framesFlushed   prometheus.Counter
	framesDiscarded prometheus.Counter
	pending         prometheus.Gauge
	breaker         prometheus.Gauge
}

func (p *PartitionInstrumentation) LeaseObtained() {
	p.leasesObtained.Inc()
	p.pending.Set(0)
}

func (p *PartitionInstrumentation) LeaseLost() { p.leasesLost.Inc() }

func (p *PartitionInstrumentation) EventsProcessed(count int) {
	p.eventsProcessed.Add(float64(count))
}

func (p *PartitionInstrumentation) EventsSkipped(count int) {
	p.eventsSkipped.Add(float64(count))
}

func (p *PartitionInstrumentation) FrameCached() {
	p.framesCached.Inc()
	p.pending.Inc()
}

func (p *PartitionInstrumentation) FrameCacheFlushed(count int) {
	p.framesFlushed.Add(float64(count))
	p.pending.Sub(float64(count))
}

func (p *PartitionInstrumentation) FramesDiscarded(count int) {
	p.framesDiscarded.Add(float64(count))
	p.pending.Sub(float64(count))
}

// BreakerStateChanged records the circuit breaker regime.
func (p *PartitionInstrumentation) BreakerStateChanged(state breaker.State) {
	p.breaker.Set(float64(state))
}
