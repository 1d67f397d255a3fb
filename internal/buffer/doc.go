// Package buffer provides the bounded buffer pool that backs frames.
//
// # Pool
//
// Pool hands out byte buffers of one fixed size. A weighted semaphore caps
// the number of buffers in circulation, so the memory held by every
// partition's current and pending frames is bounded by maxBlocks*blockSize:
//
//	pool, err := buffer.NewPool(64, 4<<20, buffer.PolicyBlock)
//
//	buf, err := pool.Take(ctx, 4<<20)
//	if errors.Is(err, apperrors.ErrPoolExhausted) {
//	    // every block is held by unflushed frames
//	}
//	defer pool.Return(buf)
//
// # Exhaustion policy
//
// PolicyBlock makes Take wait until a buffer is returned or the context is
// done. PolicyFail makes Take fail immediately. Either way the caller sees an
// error wrapping ErrPoolExhausted.
//
// # Ownership
//
// The pool tracks every outstanding buffer by its backing array. Return
// rejects buffers it did not issue and buffers returned twice with
// ErrBufferNotOwned, leaving the pool state unchanged.
//
// # Thread Safety
//
// Take, Return and Stats are safe for concurrent use by many processors.
package buffer
