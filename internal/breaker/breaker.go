// Package breaker throttles ingestion when a partition's pending frames back up.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the admission regime derived from the pending-queue depth.
type State int

const (
	StateClosed State = iota
	StateWarning
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateWarning:
		return "warning"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds the breaker thresholds.
type Config struct {
	// WarningLevel is the queue depth at which warnings are logged.
	WarningLevel int
	// TripLevel is the queue depth at which admission stops.
	TripLevel int
	// StallInterval is the wait between flush attempts while open.
	StallInterval time.Duration
	// LogCooldownInterval is the minimum gap between repeated log lines.
	LogCooldownInterval time.Duration
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.WarningLevel < 1 {
		return fmt.Errorf("warning level must be at least 1, got %d", c.WarningLevel)
	}
	if c.TripLevel <= c.WarningLevel {
		return fmt.Errorf("trip level (%d) must be greater than warning level (%d)", c.TripLevel, c.WarningLevel)
	}
	if c.StallInterval <= 0 {
		return fmt.Errorf("stall interval must be positive")
	}
	if c.LogCooldownInterval < 0 {
		return fmt.Errorf("log cooldown interval must not be negative")
	}
	return nil
}

// Observer is told about every regime change.
type Observer func(from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithObserver registers a regime change callback.
func WithObserver(o Observer) Option {
	return func(b *Breaker) { b.observer = o }
}

// Breaker is a per-partition admission gate over pending-queue depth.
// It is not safe for concurrent use.
type Breaker struct {
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	observer Observer

	state              State
	nextWarningLogTime time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the last evaluated regime.
func (b *Breaker) State() State { return b.state }

// Reset clears warning suppression, as on a fresh lease.
func (b *Breaker) Reset() {
	b.nextWarningLogTime = time.Time{}
	b.transition(StateClosed)
}

// Classify maps a queue depth onto a regime.
func (b *Breaker) Classify(level int) State {
	switch {
	case level >= b.cfg.TripLevel:
		return StateOpen
	case level >= b.cfg.WarningLevel:
		return StateWarning
	default:
		return StateClosed
	}
}

// Admit decides whether the next batch may be processed.
//
// level reports the current pending-queue depth and flush attempts to drain
// the queue. When the depth is at or above the trip level Admit blocks,
// calling flush every stall interval until the depth falls below the warning
// level. It returns nil when the batch may proceed, ctx.Err() if the context
// ends while waiting, or the first error returned by flush.
func (b *Breaker) Admit(ctx context.Context, level func() int, flush func(context.Context) error) error {
	depth := level()

	switch b.Classify(depth) {
	case StateClosed:
		b.nextWarningLogTime = time.Time{}
		b.transition(StateClosed)
		return nil
	case StateWarning:
		b.transition(StateWarning)
		now := b.now()
		if b.nextWarningLogTime.IsZero() || !now.Before(b.nextWarningLogTime) {
			b.logger.Warn("pending frame queue above warning level",
				"depth", depth,
				"warning_level", b.cfg.WarningLevel,
				"trip_level", b.cfg.TripLevel)
			b.nextWarningLogTime = now.Add(b.cfg.LogCooldownInterval)
		}
		return nil
	}

	return b.stall(ctx, depth, level, flush)
}

func (b *Breaker) stall(ctx context.Context, depth int, level func() int, flush func(context.Context) error) error {
	b.transition(StateOpen)
	b.logger.Error("circuit breaker tripped, ingestion stalled",
		"depth", depth,
		"trip_level", b.cfg.TripLevel,
		"stall_interval", b.cfg.StallInterval)
	nextErrorLogTime := b.now().Add(b.cfg.LogCooldownInterval)

	timer := time.NewTimer(b.cfg.StallInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := flush(ctx); err != nil {
			return err
		}

		depth = level()
		if depth < b.cfg.WarningLevel {
			b.logger.Info("circuit breaker restored, ingestion resumed", "depth", depth)
			b.nextWarningLogTime = time.Time{}
			b.transition(StateClosed)
			return nil
		}

		if now := b.now(); !now.Before(nextErrorLogTime) {
			b.logger.Error("circuit breaker still tripped",
				"depth", depth,
				"warning_level", b.cfg.WarningLevel)
			nextErrorLogTime = now.Add(b.cfg.LogCooldownInterval)
		}

		timer.Reset(b.cfg.StallInterval)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.observer != nil {
		b.observer(from, to)
	}
}
