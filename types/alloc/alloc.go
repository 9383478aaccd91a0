// Package alloc contains the buffer allocation strategies used for datagram receive buffers.
package alloc

import "sync"

// Allocator hands out byte buffers, and takes them back once the caller is done with them.
//
// Implementations must be safe for concurrent use.
type Allocator interface {
	// Alloc returns a buffer of length n.
	Alloc(n int) []byte

	// Free returns a buffer obtained from Alloc, the caller must not touch it afterwards.
	Free(b []byte)
}

// Heap is the pass-through allocator, it leaves all bookkeeping to the garbage collector.
var Heap Allocator = heap{}

type heap struct{}

func (heap) Alloc(n int) []byte { return make([]byte, n) }

func (heap) Free([]byte) {}

// Pool recycles buffers of a fixed capacity through a sync.Pool.
//
// Requests larger than the pool size fall back to the heap, and are not recycled.
type Pool struct {
	size int
	p    sync.Pool
}

func NewPool(size int) *Pool {
	pl := &Pool{size: size}
	pl.p.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return pl
}

func (pl *Pool) Alloc(n int) []byte {
	if n > pl.size {
		return make([]byte, n)
	}

	b := pl.p.Get().(*[]byte)
	return (*b)[:n]
}

func (pl *Pool) Free(b []byte) {
	if cap(b) != pl.size {
		return
	}

	b = b[:pl.size]
	pl.p.Put(&b)
}
