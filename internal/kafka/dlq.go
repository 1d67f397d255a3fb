package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// DLQEvent represents an event published to the dead letter queue.
type DLQEvent struct {
	OriginalPayload   []byte         `json:"original_payload"`
	OriginalKey       string         `json:"original_key,omitempty"`
	OriginalTopic     string         `json:"original_topic"`
	OriginalPartition int32          `json:"original_partition"`
	OriginalOffset    int64          `json:"original_offset"`
	Properties        map[string]any `json:"properties,omitempty"`
	EnqueuedTime      time.Time      `json:"enqueued_time"`
	FailureReason     string         `json:"failure_reason"`
	FailureTimestamp  time.Time      `json:"failure_timestamp"`
	ProcessorID       string         `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
	MaxRetries  int
}

// Validate checks the DLQ configuration.
func (c DLQConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TopicSuffix == "" {
		return fmt.Errorf("topic suffix is required when DLQ is enabled")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// DLQPublisher publishes events that could not be encoded to <topic><suffix>.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	mu          sync.RWMutex
	closed      bool
	processorID string
}

// NewDLQPublisher creates a new DLQ publisher sharing the consumer's
// connection settings. A disabled publisher accepts and drops every event.
func NewDLQPublisher(
	consumerConfig ConsumerConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	processorID string,
) (*DLQPublisher, error) {
	if err := dlqConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid DLQ config: %w", err)
	}
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, processorID), nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	if consumerConfig.ClientID != "" {
		saramaConfig.ClientID = consumerConfig.ClientID
	}
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = dlqConfig.MaxRetries
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, consumerConfig); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(consumerConfig.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", consumerConfig.BootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)

	return newDLQPublisher(producer, dlqConfig, logger, processorID), nil
}

func newDLQPublisher(producer sarama.SyncProducer, cfg DLQConfig, logger *slog.Logger, processorID string) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      cfg,
		logger:      logger,
		processorID: processorID,
	}
}

// Topic returns the dead letter topic for a source topic.
func (p *DLQPublisher) Topic(source string) string {
	return source + p.config.TopicSuffix
}

// Publish publishes a failed event to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, e *event.Event, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.ErrConsumerClosed
	}
	if !p.config.Enabled || p.producer == nil {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dlqTopic := p.Topic(e.Topic)

	dlqData, err := json.Marshal(DLQEvent{
		OriginalPayload:   e.Payload,
		OriginalKey:       e.PartitionKey,
		OriginalTopic:     e.Topic,
		OriginalPartition: e.Partition,
		OriginalOffset:    e.Offset,
		Properties:        e.Properties,
		EnqueuedTime:      e.EnqueuedTime,
		FailureReason:     reason,
		FailureTimestamp:  time.Now().UTC(),
		ProcessorID:       p.processorID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Value: sarama.ByteEncoder(dlqData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(e.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: time.Now(),
	}
	if e.PartitionKey != "" {
		msg.Key = sarama.StringEncoder(e.PartitionKey)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"original_offset", e.Offset,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.logger.Info("published event to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"original_partition", e.Partition,
		"original_offset", e.Offset,
		"reason", reason,
	)

	return nil
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing DLQ publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
