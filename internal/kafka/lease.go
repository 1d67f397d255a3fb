package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.LeaseContext = (*claimLease)(nil)

// Ledger records persisted offsets locally, ahead of the broker commit.
type Ledger interface {
	Save(partition event.PartitionID, offset int64) error
	Load(partition event.PartitionID) (int64, bool, error)
}

// claimLease is the lease over one partition claim of a consumer-group session.
type claimLease struct {
	session   sarama.ConsumerGroupSession
	partition event.PartitionID
	info      consumer.LeaseInfo
	ledger    Ledger
	shutdown  context.Context
	metrics   MetricsCollector
	logger    *slog.Logger
}

func newClaimLease(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
	ledger Ledger,
	shutdown context.Context,
	metrics MetricsCollector,
	logger *slog.Logger,
) *claimLease {
	return &claimLease{
		session:   session,
		partition: event.PartitionID{Topic: claim.Topic(), Partition: claim.Partition()},
		info: consumer.LeaseInfo{
			Owner:         session.MemberID(),
			Token:         strconv.FormatInt(int64(session.GenerationID()), 10),
			InitialOffset: claim.InitialOffset(),
		},
		ledger:   ledger,
		shutdown: shutdown,
		metrics:  metrics,
		logger:   logger,
	}
}

func (l *claimLease) Partition() event.PartitionID { return l.partition }

func (l *claimLease) Lease() consumer.LeaseInfo { return l.info }

// Checkpoint commits the offset after e. The ledger is written first so a
// failed broker commit still leaves a local record of what is durable.
//
// Once the session has ended for a rebalance the generation is stale and the
// commit would be rejected, so ErrLeaseLost is returned instead. During
// shutdown the session ends too, but the member still owns the claim until
// the handler returns, so the commit goes ahead.
func (l *claimLease) Checkpoint(ctx context.Context, e *event.Event) error {
	if l.sessionEnded() && l.shutdown.Err() == nil {
		return apperrors.ErrLeaseLost
	}

	if l.ledger != nil {
		if err := l.ledger.Save(l.partition, e.Offset); err != nil {
			return fmt.Errorf("failed to record checkpoint locally: %w", err)
		}
	}

	start := time.Now()
	l.session.MarkOffset(l.partition.Topic, l.partition.Partition, e.Offset+1, "")
	l.session.Commit()

	if l.metrics != nil {
		l.metrics.ObserveCommitLatency(l.partition.Topic, l.partition.Partition, time.Since(start).Seconds())
		l.metrics.IncOffsetCommits(l.partition.Topic, l.partition.Partition, "success")
	}

	l.logger.Debug("offset committed", "offset", e.Offset+1)
	return nil
}

func (l *claimLease) sessionEnded() bool {
	select {
	case <-l.session.Context().Done():
		return true
	default:
		return false
	}
}
