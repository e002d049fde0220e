package optimize

import (
	"sync"
)

// BytePool is a pool of byte scratch buffers to reduce allocations on
// per-packet paths. Get returns a zero-length slice with at least the
// pool's base capacity; callers append into it and Put it back.
type BytePool struct {
	pool    sync.Pool
	baseCap int
	maxCap  int
}

// NewBytePool creates a new byte pool with the given base capacity.
// Buffers grown beyond four times the base capacity are dropped on Put
// so one oversized frame cannot pin memory.
func NewBytePool(baseCap int) *BytePool {
	return &BytePool{
		baseCap: baseCap,
		maxCap:  baseCap * 4,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, baseCap)
			},
		},
	}
}

// Get gets a zero-length buffer from the pool
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)[:0]
}

// Put returns a buffer to the pool
func (p *BytePool) Put(b []byte) {
	if cap(b) < p.baseCap || cap(b) > p.maxCap {
		return
	}
	p.pool.Put(b[:0])
}
