// Package pool provides reusable byte buffers for file copy loops, keeping
// large transient allocations away from the garbage collector while many
// workers copy concurrently.
package pool

import "sync"

// BufferPool hands out fixed-size byte buffers backed by a sync.Pool. It is
// safe for concurrent use; buffers of a different size handed to Put are
// dropped instead of pooled.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size in bytes.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a buffer from the pool, allocating a fresh one if needed.
func (p *BufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool for reuse.
func (p *BufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) != p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}
