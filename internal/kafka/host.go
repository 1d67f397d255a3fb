package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// MetricsCollector defines metrics operations for the partition host.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncMessagesSkipped(topic string, partition int32)
	IncRebalances(groupID string)
	IncOffsetCommits(topic string, partition int32, status string)
	ObserveCommitLatency(topic string, partition int32, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// Host drives one processor per claimed partition.
type Host struct {
	group   sarama.ConsumerGroup
	config  ConsumerConfig
	factory consumer.ProcessorFactory
	ledger  Ledger
	logger  *slog.Logger
	metrics MetricsCollector

	ready     atomic.Bool
	closeOnce sync.Once
}

// NewHost creates a consumer-group host. ledger may be nil.
func NewHost(
	config ConsumerConfig,
	factory consumer.ProcessorFactory,
	ledger Ledger,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Host, error) {
	if len(config.Topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	saramaConfig, err := newSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka host created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"topics", config.Topics,
		"batch_size", config.batchSize(),
		"receive_timeout", config.receiveTimeout(),
	)

	return newHost(group, config, factory, ledger, logger, metrics), nil
}

func newHost(
	group sarama.ConsumerGroup,
	config ConsumerConfig,
	factory consumer.ProcessorFactory,
	ledger Ledger,
	logger *slog.Logger,
	metrics MetricsCollector,
) *Host {
	return &Host{
		group:   group,
		config:  config,
		factory: factory,
		ledger:  ledger,
		logger:  logger,
		metrics: metrics,
	}
}

// Run joins the group and processes claims until ctx is cancelled or the
// group fails. Cancelling ctx is a shutdown: open processors flush before
// their claims are released.
func (h *Host) Run(ctx context.Context) error {
	handler := &claimHandler{host: h, shutdown: ctx}

	go h.logErrors()

	for {
		if err := h.group.Consume(ctx, h.config.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consumer group error: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		h.logger.Info("consumer group session ended, rejoining")
	}
}

// Ready reports whether the host has joined the group at least once.
func (h *Host) Ready() bool { return h.ready.Load() }

// Close leaves the group. It is idempotent.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.logger.Info("closing kafka host")
		if cerr := h.group.Close(); cerr != nil {
			err = fmt.Errorf("failed to close consumer group: %w", cerr)
			return
		}
		h.logger.Info("kafka host closed")
	})
	return err
}

func (h *Host) logErrors() {
	for err := range h.group.Errors() {
		h.logger.Error("consumer group error", "error", err)
	}
}

// claimHandler implements sarama.ConsumerGroupHandler.
type claimHandler struct {
	host     *Host
	shutdown context.Context
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *claimHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.host.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if m := h.host.metrics; m != nil {
		m.IncRebalances(h.host.config.GroupID)
		for _, topic := range h.host.config.Topics {
			m.SetPartitionsAssigned(topic, float64(len(session.Claims()[topic])))
		}
	}

	h.host.ready.Store(true)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *claimHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.host.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
	)
	return nil
}

// ConsumeClaim runs one partition lease from open to close.
func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	partition := event.PartitionID{Topic: claim.Topic(), Partition: claim.Partition()}
	logger := h.host.logger.With("topic", partition.Topic, "partition", partition.Partition)

	proc, err := h.host.factory.NewProcessor(partition)
	if err != nil {
		return fmt.Errorf("failed to create processor for %s: %w", partition, err)
	}

	lease := newClaimLease(session, claim, h.host.ledger, h.shutdown, h.host.metrics, logger)
	floor := h.resumeFloor(partition, logger)

	logger.Info("partition lease obtained",
		"generation_id", session.GenerationID(),
		"initial_offset", claim.InitialOffset(),
		"resume_floor", floor,
	)

	if err := proc.Open(session.Context(), lease); err != nil {
		return fmt.Errorf("failed to open processor for %s: %w", partition, err)
	}

	runErr := h.consume(session, claim, proc, lease, floor, logger)

	reason := event.CloseReasonLeaseLost
	if h.shutdown.Err() != nil && runErr == nil {
		reason = event.CloseReasonShutdown
	}

	logger.Info("partition lease ending", "reason", reason.String())

	// The session context is already done here; close runs on its own.
	closeErr := proc.Close(context.WithoutCancel(session.Context()), lease, reason)
	return errors.Join(runErr, closeErr)
}

// resumeFloor returns the highest offset known to be persisted, or -1.
func (h *claimHandler) resumeFloor(partition event.PartitionID, logger *slog.Logger) int64 {
	if h.host.ledger == nil {
		return -1
	}
	offset, ok, err := h.host.ledger.Load(partition)
	if err != nil {
		logger.Warn("failed to read checkpoint ledger, not skipping", "error", err)
		return -1
	}
	if !ok {
		return -1
	}
	return offset
}

// consume feeds batches to the processor until the claim ends. A batch is
// whatever is already buffered after the first message, up to BatchSize.
// An idle claim produces an empty batch every ReceiveTimeout.
func (h *claimHandler) consume(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
	proc consumer.EventProcessor,
	lease consumer.LeaseContext,
	floor int64,
	logger *slog.Logger,
) error {
	ctx := session.Context()
	timeout := h.host.config.receiveTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	messages := claim.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			batch, closed := h.collect(msg, messages, floor)
			if len(batch) > 0 {
				if err := h.process(ctx, proc, lease, batch); err != nil {
					return err
				}
				timer.Reset(timeout)
			}
			if closed {
				return nil
			}

		case <-timer.C:
			logger.Debug("receive timeout, signalling empty batch")
			if err := h.process(ctx, proc, lease, nil); err != nil {
				return err
			}
			timer.Reset(timeout)
		}
	}
}

// collect builds a batch from first plus any buffered messages, dropping
// those at or below floor. closed reports that the channel was closed.
func (h *claimHandler) collect(first *sarama.ConsumerMessage, messages <-chan *sarama.ConsumerMessage, floor int64) ([]*event.Event, bool) {
	limit := h.host.config.batchSize()
	batch := make([]*event.Event, 0, min(limit, len(messages)+1))

	add := func(msg *sarama.ConsumerMessage) {
		if msg == nil {
			return
		}
		if msg.Offset <= floor {
			if h.host.metrics != nil {
				h.host.metrics.IncMessagesSkipped(msg.Topic, msg.Partition)
			}
			return
		}
		if h.host.metrics != nil {
			h.host.metrics.IncMessagesConsumed(msg.Topic, msg.Partition)
		}
		batch = append(batch, toEvent(msg, h.host.config.DecodeCloudEvents))
	}

	add(first)
	for len(batch) < limit {
		select {
		case msg, ok := <-messages:
			if !ok {
				return batch, true
			}
			add(msg)
		default:
			return batch, false
		}
	}
	return batch, false
}

// process hands a batch to the processor. A breaker stall interrupted by the
// end of the session is not an error.
func (h *claimHandler) process(ctx context.Context, proc consumer.EventProcessor, lease consumer.LeaseContext, batch []*event.Event) error {
	err := proc.ProcessEvents(ctx, lease, batch)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return fmt.Errorf("failed to process events for %s: %w", lease.Partition(), err)
}
