package processor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jittakal/kafcoldstore/pkg/buffer"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/encoder"
	"github.com/jittakal/kafcoldstore/pkg/event"
	"github.com/jittakal/kafcoldstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.ProcessorFactory = (*Factory)(nil)

// InstrumentationFactory returns the instrumentation for a partition.
type InstrumentationFactory func(partitionID event.PartitionID) consumer.Instrumentation

// Factory creates processors that share one buffer pool and encoder.
// It also keeps track of live processors for health reporting.
type Factory struct {
	cfg     Config
	pool    buffer.Pool
	encoder encoder.Encoder
	writers storage.WriterFactory
	instr   InstrumentationFactory
	logger  *slog.Logger
	opts    []Option

	mu         sync.RWMutex
	processors map[event.PartitionID]*Processor
}

// NewFactory creates a processor factory.
func NewFactory(
	cfg Config,
	pool buffer.Pool,
	enc encoder.Encoder,
	writers storage.WriterFactory,
	instr InstrumentationFactory,
	logger *slog.Logger,
	opts ...Option,
) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}
	if stats := pool.Stats(); stats.BlockSize < cfg.MaxFrameSize {
		return nil, fmt.Errorf("pool block size %d is smaller than frame size %d", stats.BlockSize, cfg.MaxFrameSize)
	}
	return &Factory{
		cfg:        cfg,
		pool:       pool,
		encoder:    enc,
		writers:    writers,
		instr:      instr,
		logger:     logger,
		opts:       opts,
		processors: make(map[event.PartitionID]*Processor),
	}, nil
}

// NewProcessor returns the processor for a partition, reusing a closed one
// left over from a previous lease.
func (f *Factory) NewProcessor(partitionID event.PartitionID) (consumer.EventProcessor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.processors[partitionID]; ok {
		if p.State() != StateClosed {
			return nil, fmt.Errorf("processor for %s is still %s", partitionID, p.State())
		}
		return p, nil
	}

	var instr consumer.Instrumentation
	if f.instr != nil {
		instr = f.instr(partitionID)
	}
	p := New(partitionID, f.cfg, f.pool, f.encoder, f.writers, instr, f.logger, f.opts...)
	f.processors[partitionID] = p
	return p, nil
}

// Statuses returns a snapshot of every processor that is not closed.
func (f *Factory) Statuses() []Status {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Status, 0, len(f.processors))
	for _, p := range f.processors {
		if s := p.Status(); s.State != StateClosed {
			out = append(out, s)
		}
	}
	return out
}
