package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/kafcoldstore/internal/errors"
)

func TestNewPool_Validation(t *testing.T) {
	tests := []struct {
		name      string
		maxBlocks int
		blockSize int
		wantErr   bool
	}{
		{"valid", 4, 128, false},
		{"zero blocks", 0, 128, true},
		{"negative size", 4, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.maxBlocks, tt.blockSize, PolicyBlock)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, p)

	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}

func TestPool_TakeReturnReuses(t *testing.T) {
	pool, err := NewPool(2, 64, PolicyFail)
	require.NoError(t, err)
	ctx := context.Background()

	buf, err := pool.Take(ctx, 64)
	require.NoError(t, err)
	assert.Len(t, buf, 64)
	assert.Equal(t, 64, cap(buf))

	require.NoError(t, pool.Return(buf))

	again, err := pool.Take(ctx, 10)
	require.NoError(t, err)
	assert.Same(t, &buf[0], &again[0], "returned buffer should be reused")

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Allocated)
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, uint64(2), stats.Takes)
	assert.Equal(t, uint64(1), stats.Returns)
}

func TestPool_TakeTooLarge(t *testing.T) {
	pool, err := NewPool(1, 64, PolicyFail)
	require.NoError(t, err)

	_, err = pool.Take(context.Background(), 65)
	assert.ErrorIs(t, err, errors.ErrBufferTooLarge)
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestPool_FailPolicyExhausted(t *testing.T) {
	pool, err := NewPool(2, 32, PolicyFail)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = pool.Take(ctx, 32)
	require.NoError(t, err)
	_, err = pool.Take(ctx, 32)
	require.NoError(t, err)

	_, err = pool.Take(ctx, 32)
	assert.ErrorIs(t, err, errors.ErrPoolExhausted)
	assert.Equal(t, 2, pool.Stats().Allocated)
}

func TestPool_BlockPolicyWaitsForReturn(t *testing.T) {
	pool, err := NewPool(1, 32, PolicyBlock)
	require.NoError(t, err)
	ctx := context.Background()

	held, err := pool.Take(ctx, 32)
	require.NoError(t, err)

	got := make(chan []byte, 1)
	go func() {
		buf, err := pool.Take(ctx, 32)
		if err == nil {
			got <- buf
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Take returned while the pool was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, pool.Return(held))

	select {
	case buf, ok := <-got:
		require.True(t, ok, "blocked Take failed")
		assert.Same(t, &held[0], &buf[0])
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Take did not resume after Return")
	}
}

func TestPool_BlockPolicyHonoursContext(t *testing.T) {
	pool, err := NewPool(1, 32, PolicyBlock)
	require.NoError(t, err)

	_, err = pool.Take(context.Background(), 32)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Take(ctx, 32)
	assert.ErrorIs(t, err, errors.ErrPoolExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_ReturnRejectsForeignAndDouble(t *testing.T) {
	pool, err := NewPool(2, 32, PolicyFail)
	require.NoError(t, err)

	buf, err := pool.Take(context.Background(), 32)
	require.NoError(t, err)

	assert.ErrorIs(t, pool.Return(make([]byte, 32)), errors.ErrBufferNotOwned)
	assert.ErrorIs(t, pool.Return(make([]byte, 8)), errors.ErrBufferNotOwned)

	require.NoError(t, pool.Return(buf))
	assert.ErrorIs(t, pool.Return(buf), errors.ErrBufferNotOwned)

	stats := pool.Stats()
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, 1, stats.Free)
}

func TestPool_ReturnAcceptsResliced(t *testing.T) {
	pool, err := NewPool(1, 32, PolicyFail)
	require.NoError(t, err)

	buf, err := pool.Take(context.Background(), 32)
	require.NoError(t, err)
	assert.NoError(t, pool.Return(buf[:5]))
}

func TestPool_ConcurrentCeiling(t *testing.T) {
	const maxBlocks = 4
	pool, err := NewPool(maxBlocks, 16, PolicyBlock)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf, err := pool.Take(context.Background(), 16)
				if !assert.NoError(t, err) {
					return
				}
				assert.LessOrEqual(t, pool.Stats().InUse, maxBlocks)
				if !assert.NoError(t, pool.Return(buf)) {
					return
				}
			}
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	assert.LessOrEqual(t, stats.Allocated, maxBlocks)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, stats.Takes, stats.Returns)
}
