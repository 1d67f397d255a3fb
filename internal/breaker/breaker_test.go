package breaker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) Count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Count(l.buf.String(), msg)
}

func newTestBreaker(cfg Config, opts ...Option) (*Breaker, *logBuffer, *fakeClock) {
	logs := &logBuffer{}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(cfg, logger, opts...), logs, clock
}

func testConfig() Config {
	return Config{
		WarningLevel:        3,
		TripLevel:           5,
		StallInterval:       time.Millisecond,
		LogCooldownInterval: time.Minute,
	}
}

func noFlush(context.Context) error { return nil }

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero warning", func(c *Config) { c.WarningLevel = 0 }, true},
		{"trip equals warning", func(c *Config) { c.TripLevel = 3 }, true},
		{"zero stall", func(c *Config) { c.StallInterval = 0 }, true},
		{"negative cooldown", func(c *Config) { c.LogCooldownInterval = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestBreaker_Classify(t *testing.T) {
	b, _, _ := newTestBreaker(testConfig())
	assert.Equal(t, StateClosed, b.Classify(0))
	assert.Equal(t, StateClosed, b.Classify(2))
	assert.Equal(t, StateWarning, b.Classify(3))
	assert.Equal(t, StateWarning, b.Classify(4))
	assert.Equal(t, StateOpen, b.Classify(5))
	assert.Equal(t, StateOpen, b.Classify(9))
}

func TestBreaker_ClosedAdmitsWithoutFlush(t *testing.T) {
	b, logs, _ := newTestBreaker(testConfig())
	flushed := 0
	err := b.Admit(context.Background(), func() int { return 2 }, func(context.Context) error {
		flushed++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, flushed)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, logs.Count("warning level"))
}

func TestBreaker_WarningLogCooldown(t *testing.T) {
	b, logs, clock := newTestBreaker(testConfig())
	ctx := context.Background()
	depth := func() int { return 4 }
	const msg = "pending frame queue above warning level"

	require.NoError(t, b.Admit(ctx, depth, noFlush))
	assert.Equal(t, 1, logs.Count(msg))
	assert.Equal(t, StateWarning, b.State())

	clock.Advance(30 * time.Second)
	require.NoError(t, b.Admit(ctx, depth, noFlush))
	require.NoError(t, b.Admit(ctx, depth, noFlush))
	assert.Equal(t, 1, logs.Count(msg), "second warning inside cooldown must be suppressed")

	clock.Advance(30 * time.Second)
	require.NoError(t, b.Admit(ctx, depth, noFlush))
	assert.Equal(t, 2, logs.Count(msg))
}

func TestBreaker_ClosedClearsWarningSuppression(t *testing.T) {
	b, logs, _ := newTestBreaker(testConfig())
	ctx := context.Background()
	const msg = "pending frame queue above warning level"

	require.NoError(t, b.Admit(ctx, func() int { return 3 }, noFlush))
	require.NoError(t, b.Admit(ctx, func() int { return 1 }, noFlush))
	require.NoError(t, b.Admit(ctx, func() int { return 3 }, noFlush))

	assert.Equal(t, 2, logs.Count(msg))
}

func TestBreaker_StallFlushesUntilBelowWarning(t *testing.T) {
	var transitions []State
	b, logs, _ := newTestBreaker(testConfig(), WithObserver(func(_, to State) {
		transitions = append(transitions, to)
	}))

	depth := 5
	flushes := 0
	err := b.Admit(context.Background(), func() int { return depth }, func(context.Context) error {
		flushes++
		depth--
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, flushes, "depth 5 needs three flushes to drop below 3")
	assert.Equal(t, 2, depth)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateClosed}, transitions)
	assert.Equal(t, 1, logs.Count("circuit breaker tripped"))
	assert.Equal(t, 1, logs.Count("circuit breaker restored"))
}

func TestBreaker_StallStaysClosedWhileFlushesFail(t *testing.T) {
	b, logs, clock := newTestBreaker(testConfig())

	depth := 6
	attempts := 0
	err := b.Admit(context.Background(), func() int { return depth }, func(context.Context) error {
		attempts++
		clock.Advance(25 * time.Second)
		if attempts == 10 {
			depth = 0
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 10, attempts)
	// 9 unsuccessful iterations over 225s of fake time with a 60s cooldown.
	assert.Equal(t, 3, logs.Count("circuit breaker still tripped"))
}

func TestBreaker_StallCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.StallInterval = time.Hour
	b, _, _ := newTestBreaker(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Admit(ctx, func() int { return 5 }, noFlush)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stall did not observe cancellation")
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StallPropagatesFatalFlush(t *testing.T) {
	b, _, _ := newTestBreaker(testConfig())
	fatal := errors.New("checkpoint rejected")

	err := b.Admit(context.Background(), func() int { return 5 }, func(context.Context) error {
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
}

func TestBreaker_Reset(t *testing.T) {
	b, logs, _ := newTestBreaker(testConfig())
	ctx := context.Background()
	const msg = "pending frame queue above warning level"

	require.NoError(t, b.Admit(ctx, func() int { return 3 }, noFlush))
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Admit(ctx, func() int { return 3 }, noFlush))
	assert.Equal(t, 2, logs.Count(msg))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "warning", StateWarning.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
