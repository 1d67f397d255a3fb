// Package buffer defines the interface for the shared frame buffer pool.
//
// Every partition processor draws its frame buffers from one pool so that the
// total memory held by unflushed frames stays under a fixed ceiling.
package buffer

import "context"

// Pool hands out fixed-capacity byte buffers.
// All implementations must be safe for concurrent use.
type Pool interface {
	// Take returns a buffer able to hold at least size bytes.
	// It may block until a buffer is returned, or fail when the pool is exhausted.
	Take(ctx context.Context, size int) ([]byte, error)

	// Return hands a buffer obtained from Take back to the pool.
	// Returning a buffer twice, or one the pool never issued, is an error.
	Return(buf []byte) error

	// Stats returns a snapshot of pool usage.
	Stats() Stats
}

// Stats describes pool usage.
type Stats struct {
	BlockSize int
	MaxBlocks int
	Allocated int
	InUse     int
	Free      int
	Takes     uint64
	Returns   uint64
}
