// Package buffer implements the bounded buffer pool shared by partition processors.
package buffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.Pool = (*Pool)(nil)

// Policy selects what Take does when every block is in use.
type Policy int

const (
	// PolicyBlock waits for a buffer to be returned.
	PolicyBlock Policy = iota
	// PolicyFail returns ErrPoolExhausted immediately.
	PolicyFail
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "block":
		return PolicyBlock, nil
	case "fail":
		return PolicyFail, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown pool policy %q", s)
	}
}

// Pool is a bounded arena of fixed-size byte buffers.
//
// At most maxBlocks buffers are ever outstanding or cached, so the memory held
// by the pool never exceeds maxBlocks*blockSize. Returned buffers are reused
// before new ones are allocated.
type Pool struct {
	blockSize int
	maxBlocks int
	policy    Policy
	slots     *semaphore.Weighted

	mu          sync.Mutex
	free        [][]byte
	outstanding map[*byte]struct{}
	allocated   int

	takes   atomic.Uint64
	returns atomic.Uint64
}

// NewPool creates a pool of maxBlocks buffers of blockSize bytes.
// Buffers are allocated lazily.
func NewPool(maxBlocks, blockSize int, policy Policy) (*Pool, error) {
	if maxBlocks <= 0 {
		return nil, fmt.Errorf("max blocks must be positive, got %d", maxBlocks)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	return &Pool{
		blockSize:   blockSize,
		maxBlocks:   maxBlocks,
		policy:      policy,
		slots:       semaphore.NewWeighted(int64(maxBlocks)),
		free:        make([][]byte, 0, maxBlocks),
		outstanding: make(map[*byte]struct{}, maxBlocks),
	}, nil
}

// Take returns a buffer with len and cap equal to the block size.
func (p *Pool) Take(ctx context.Context, size int) ([]byte, error) {
	if size > p.blockSize {
		return nil, fmt.Errorf("%w: requested %d, block size %d", errors.ErrBufferTooLarge, size, p.blockSize)
	}

	switch p.policy {
	case PolicyFail:
		if !p.slots.TryAcquire(1) {
			return nil, fmt.Errorf("%w: %d of %d blocks in use", errors.ErrPoolExhausted, p.maxBlocks, p.maxBlocks)
		}
	default:
		if err := p.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrPoolExhausted, err)
		}
	}

	p.mu.Lock()
	var buf []byte
	if n := len(p.free); n > 0 {
		buf = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		buf = make([]byte, p.blockSize)
		p.allocated++
	}
	p.outstanding[&buf[0]] = struct{}{}
	p.mu.Unlock()

	p.takes.Add(1)
	return buf, nil
}

// Return hands a buffer back. Foreign and double returns are rejected.
func (p *Pool) Return(buf []byte) error {
	if cap(buf) != p.blockSize {
		return fmt.Errorf("%w: capacity %d, block size %d", errors.ErrBufferNotOwned, cap(buf), p.blockSize)
	}
	buf = buf[:cap(buf)]
	key := &buf[0]

	p.mu.Lock()
	if _, ok := p.outstanding[key]; !ok {
		p.mu.Unlock()
		return errors.ErrBufferNotOwned
	}
	delete(p.outstanding, key)
	p.free = append(p.free, buf)
	p.mu.Unlock()

	p.returns.Add(1)
	p.slots.Release(1)
	return nil
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() buffer.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return buffer.Stats{
		BlockSize: p.blockSize,
		MaxBlocks: p.maxBlocks,
		Allocated: p.allocated,
		InUse:     len(p.outstanding),
		Free:      len(p.free),
		Takes:     p.takes.Load(),
		Returns:   p.returns.Load(),
	}
}

// BlockSize returns the capacity of every buffer.
func (p *Pool) BlockSize() int { return p.blockSize }
