// ABOUTME: Lock-free single-producer single-consumer float32 ring buffer
// ABOUTME: Moves decoded audio from the prefetch goroutine to the audio thread
package source

import "sync/atomic"

// Ring is a wait-free SPSC queue of samples. Exactly one goroutine may
// call Write and exactly one may call Read.
type Ring struct {
	buf  []float32
	mask uint64
	head atomic.Uint64 // next write index, owned by the producer
	tail atomic.Uint64 // next read index, owned by the consumer
}

// NewRing allocates a ring holding at least capacity samples, rounded up
// to a power of two.
func NewRing(capacity int) *Ring {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{buf: make([]float32, size), mask: uint64(size - 1)}
}

// Cap returns the ring size in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples ready to read.
func (r *Ring) Len() int { return int(r.head.Load() - r.tail.Load()) }

// Free returns the number of samples that can be written.
func (r *Ring) Free() int { return len(r.buf) - r.Len() }

// Write copies as much of p as fits and returns the count.
func (r *Ring) Write(p []float32) int {
	head := r.head.Load()
	free := len(r.buf) - int(head-r.tail.Load())
	n := min(len(p), free)
	if n == 0 {
		return 0
	}
	start := int(head & r.mask)
	c := copy(r.buf[start:], p[:n])
	copy(r.buf, p[c:n])
	r.head.Store(head + uint64(n))
	return n
}

// Read copies up to len(p) samples out and returns the count.
func (r *Ring) Read(p []float32) int {
	tail := r.tail.Load()
	n := min(len(p), int(r.head.Load()-tail))
	if n == 0 {
		return 0
	}
	start := int(tail & r.mask)
	c := copy(p[:n], r.buf[start:])
	copy(p[c:n], r.buf)
	r.tail.Store(tail + uint64(n))
	return n
}
