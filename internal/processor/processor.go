// Package processor implements the per-partition ingestion engine: frame
// accumulation, admission control and the write-then-checkpoint protocol.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jittakal/kafcoldstore/internal/breaker"
	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/internal/frame"
	"github.com/jittakal/kafcoldstore/pkg/buffer"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/encoder"
	"github.com/jittakal/kafcoldstore/pkg/event"
	"github.com/jittakal/kafcoldstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.EventProcessor = (*Processor)(nil)

// State is the processor lifecycle state.
type State int32

const (
	StateOpening State = iota
	StateActive
	StateStalling
	StateClosing
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateStalling:
		return "stalling"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds per-partition engine settings.
type Config struct {
	// MaxFrameSize is the capacity of every frame in bytes.
	MaxFrameSize int
	// Breaker configures admission control.
	Breaker breaker.Config
	// WriteTimeout bounds a single blob write or checkpoint. Zero means no bound.
	WriteTimeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize)
	}
	return c.Breaker.Validate()
}

// Status is a point-in-time view of a processor, safe to read concurrently.
type Status struct {
	Partition      event.PartitionID
	State          State
	Breaker        breaker.State
	PendingFrames  int
	LastCheckpoint int64
}

// BreakerObserver receives breaker regime changes for metrics.
type BreakerObserver interface {
	BreakerStateChanged(state breaker.State)
}

// Processor drives one partition's lease.
//
// The host serializes Open, ProcessEvents and Close for a partition. Status
// may be called from any goroutine.
type Processor struct {
	partition event.PartitionID
	cfg       Config
	pool      buffer.Pool
	encoder   encoder.Encoder
	writers   storage.WriterFactory
	instr     consumer.Instrumentation
	dlq       consumer.DLQPublisher
	logger    *slog.Logger

	acc     *frame.Accumulator
	coord   *coordinator
	breaker *breaker.Breaker

	state        atomic.Int32
	breakerState atomic.Int32
}

// Option configures a Processor.
type Option func(*Processor)

// WithDLQ publishes events that fail serialization.
func WithDLQ(dlq consumer.DLQPublisher) Option {
	return func(p *Processor) { p.dlq = dlq }
}

// WithBreakerOptions passes options through to the circuit breaker.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(p *Processor) {
		p.breaker = breaker.New(p.cfg.Breaker, p.logger, append(p.breakerOptions(), opts...)...)
	}
}

// New creates a processor for partition in the Opening state.
func New(
	partition event.PartitionID,
	cfg Config,
	pool buffer.Pool,
	enc encoder.Encoder,
	writers storage.WriterFactory,
	instr consumer.Instrumentation,
	logger *slog.Logger,
	opts ...Option,
) *Processor {
	if instr == nil {
		instr = consumer.NoopInstrumentation{}
	}
	logger = logger.With("topic", partition.Topic, "partition", partition.Partition)

	p := &Processor{
		partition: partition,
		cfg:       cfg,
		pool:      pool,
		encoder:   enc,
		writers:   writers,
		instr:     instr,
		logger:    logger,
		acc:       frame.NewAccumulator(pool, cfg.MaxFrameSize),
		coord:     newCoordinator(partition, pool, instr, logger, cfg.WriteTimeout),
	}
	p.breaker = breaker.New(cfg.Breaker, logger, p.breakerOptions()...)
	for _, opt := range opts {
		opt(p)
	}
	p.setState(StateOpening)
	return p
}

func (p *Processor) breakerOptions() []breaker.Option {
	return []breaker.Option{breaker.WithObserver(p.onBreakerChange)}
}

func (p *Processor) onBreakerChange(_, to breaker.State) {
	p.breakerState.Store(int32(to))
	switch to {
	case breaker.StateOpen:
		p.state.CompareAndSwap(int32(StateActive), int32(StateStalling))
	default:
		p.state.CompareAndSwap(int32(StateStalling), int32(StateActive))
	}
	if obs, ok := p.instr.(BreakerObserver); ok {
		obs.BreakerStateChanged(to)
	}
}

func (p *Processor) setState(s State) { p.state.Store(int32(s)) }

// State returns the lifecycle state.
func (p *Processor) State() State { return State(p.state.Load()) }

// Status returns a snapshot for health reporting.
func (p *Processor) Status() Status {
	return Status{
		Partition:      p.partition,
		State:          p.State(),
		Breaker:        breaker.State(p.breakerState.Load()),
		PendingFrames:  int(p.coord.depth.Load()),
		LastCheckpoint: p.coord.lastCheckpoint.Load(),
	}
}

// Open prepares the processor for a new lease.
func (p *Processor) Open(ctx context.Context, lease consumer.LeaseContext) error {
	switch p.State() {
	case StateOpening, StateClosed:
	default:
		return fmt.Errorf("%w: open called while %s", apperrors.ErrInvalidState, p.State())
	}
	p.setState(StateOpening)

	writer, err := p.writers(p.partition)
	if err != nil {
		p.setState(StateClosed)
		return fmt.Errorf("failed to create blob writer: %w", err)
	}
	p.coord.writer = writer

	if err := p.acc.Renew(ctx); err != nil {
		_ = writer.Close()
		p.coord.writer = nil
		p.setState(StateClosed)
		return err
	}

	p.breaker.Reset()
	p.setState(StateActive)
	p.instr.LeaseObtained()

	info := lease.Lease()
	p.logger.Info("partition lease obtained",
		"owner", info.Owner,
		"token", info.Token,
		"initial_offset", info.InitialOffset)
	return nil
}

// ProcessEvents handles a batch. An empty batch is a receive timeout and
// flushes whatever has been accumulated.
func (p *Processor) ProcessEvents(ctx context.Context, lease consumer.LeaseContext, events []*event.Event) error {
	switch p.State() {
	case StateActive, StateStalling:
	case StateClosing, StateClosed:
		return apperrors.ErrProcessorClosed
	default:
		return fmt.Errorf("%w: process called while %s", apperrors.ErrInvalidState, p.State())
	}

	if len(events) == 0 {
		p.queueCurrent()
		p.logger.Debug("receive timeout, flushing pending frames", "pending", p.coord.pending())
		if err := p.coord.flushAndCheckpoint(ctx, lease); err != nil {
			return err
		}
		return p.renew(ctx, lease)
	}

	flush := func(ctx context.Context) error { return p.coord.flushAndCheckpoint(ctx, lease) }
	if err := p.breaker.Admit(ctx, p.coord.pending, flush); err != nil {
		return err
	}

	appended, skipped := 0, 0
	for _, e := range events {
		record, err := p.encoder.Encode(e)
		if err == nil && len(record) > p.cfg.MaxFrameSize {
			err = fmt.Errorf("%w: %d bytes, frame size %d", apperrors.ErrRecordTooLarge, len(record), p.cfg.MaxFrameSize)
		}
		if err != nil {
			skipped++
			p.skip(ctx, e, err)
			continue
		}

		if !p.acc.Fits(len(record)) {
			p.queueCurrent()
			if err := p.coord.flushAndCheckpoint(ctx, lease); err != nil {
				return err
			}
			if err := p.renew(ctx, lease); err != nil {
				return err
			}
		}

		if err := p.acc.Append(record, e); err != nil {
			return fmt.Errorf("failed to append record at offset %d: %w", e.Offset, err)
		}
		appended++
	}

	if skipped > 0 {
		p.instr.EventsSkipped(skipped)
	}
	p.instr.EventsProcessed(appended)
	return nil
}

// queueCurrent moves a non-empty current frame into the pending queue. The
// caller renews the current frame after flushing so that a flush can hand
// buffers back before a new one is taken.
func (p *Processor) queueCurrent() {
	if f, ok := p.acc.Finalize(); ok {
		p.coord.enqueue(f)
	}
}

// renew takes a fresh current frame. While this partition holds pending
// frames, the wait for a buffer is bounded by the stall interval and the queue
// is flushed again each time it expires, since those frames may be the buffers
// the pool is waiting on.
func (p *Processor) renew(ctx context.Context, lease consumer.LeaseContext) error {
	for {
		if p.coord.pending() == 0 || p.cfg.Breaker.StallInterval <= 0 {
			return p.acc.Renew(ctx)
		}

		wctx, cancel := context.WithTimeout(ctx, p.cfg.Breaker.StallInterval)
		err := p.acc.Renew(wctx)
		expired := wctx.Err() != nil
		cancel()
		if err == nil || ctx.Err() != nil || !expired || !errors.Is(err, apperrors.ErrPoolExhausted) {
			return err
		}

		p.logger.Debug("buffer pool exhausted with frames pending, flushing again", "pending", p.coord.pending())
		if err := p.coord.flushAndCheckpoint(ctx, lease); err != nil {
			return err
		}
	}
}

func (p *Processor) skip(ctx context.Context, e *event.Event, cause error) {
	serErr := &apperrors.SerializationError{PartitionID: p.partition, Offset: e.Offset, Err: cause}
	p.logger.Warn("could not serialize event, skipping", "offset", e.Offset, "error", cause)

	if p.dlq == nil {
		return
	}
	if err := p.dlq.Publish(ctx, e, serErr.Error()); err != nil {
		p.logger.Error("failed to publish event to DLQ", "offset", e.Offset, "error", err)
	}
}

// Close ends the lease. Shutdown persists pending frames once; lease loss
// drops them. Every buffer is back in the pool when Close returns.
func (p *Processor) Close(ctx context.Context, lease consumer.LeaseContext, reason event.CloseReason) error {
	switch p.State() {
	case StateClosed, StateClosing:
		return nil
	case StateOpening:
		p.setState(StateClosed)
		return nil
	}
	p.setState(StateClosing)

	var errs []error
	p.queueCurrent()
	if err := p.acc.Release(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release current frame: %w", err))
	}

	switch reason {
	case event.CloseReasonLeaseLost:
		p.instr.LeaseLost()
		n, err := p.coord.discard()
		if err != nil {
			errs = append(errs, err)
		}
		p.logger.Info("partition lease lost, pending frames discarded", "frames", n)
	default:
		if p.coord.pending() > 0 {
			if err := p.coord.flushAndCheckpoint(ctx, lease); err != nil {
				errs = append(errs, err)
			}
		}
		if n, err := p.coord.discard(); n > 0 || err != nil {
			p.logger.Error("pending frames not persisted at shutdown, they will be replayed from the last checkpoint",
				"frames", n)
			if err != nil {
				errs = append(errs, err)
			}
		}
		p.logger.Info("partition processor shut down", "last_checkpoint", p.coord.lastCheckpoint.Load())
	}

	if p.coord.writer != nil {
		if err := p.coord.writer.Close(); err != nil {
			p.logger.Warn("failed to close blob writer", "error", err)
		}
		p.coord.writer = nil
	}

	p.setState(StateClosed)
	return errors.Join(errs...)
}
