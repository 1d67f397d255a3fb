// Package kafka hosts partition processors on a Kafka consumer group.
//
// Each partition claimed by this member is treated as a lease: the claim's
// processor is opened when the claim starts, fed batches while it lasts and
// closed when it ends. A claim ending because of a rebalance closes the
// processor with CloseReasonLeaseLost; a claim ending because the host is
// stopping closes it with CloseReasonShutdown.
package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers      []string
	Topics                []string
	GroupID               string
	ClientID              string
	SecurityProtocol      string
	SASLMechanism         string
	SASLUsername          string
	SASLPassword          string
	AWSRegion             string
	TLSInsecureSkipVerify bool
	AutoOffsetReset       string
	MaxPollIntervalMS     int
	SessionTimeoutMS      int
	HeartbeatIntervalMS   int

	// BatchSize caps the number of messages handed to a processor at once.
	BatchSize int
	// ReceiveTimeout is how long a claim may stay idle before the processor
	// receives an empty batch.
	ReceiveTimeout time.Duration
	// DecodeCloudEvents flattens structured CloudEvent values into properties.
	DecodeCloudEvents bool
}

const (
	defaultBatchSize      = 500
	defaultReceiveTimeout = 30 * time.Second
)

func (c ConsumerConfig) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return defaultBatchSize
}

func (c ConsumerConfig) receiveTimeout() time.Duration {
	if c.ReceiveTimeout > 0 {
		return c.ReceiveTimeout
	}
	return defaultReceiveTimeout
}

// newSaramaConfig builds the consumer-group configuration.
// Offsets are only ever committed explicitly after a durable write.
func newSaramaConfig(cfg ConsumerConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V2_8_0_0
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(cfg.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false

	if cfg.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(cfg.SessionTimeoutMS) * time.Millisecond
	}
	if cfg.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond
	}

	// A stalled processor must not be mistaken for a dead member.
	if cfg.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(cfg.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, cfg); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return saramaConfig, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
