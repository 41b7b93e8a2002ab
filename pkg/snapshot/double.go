// ABOUTME: Two-slot publication buffer with per-slot reader counts
// ABOUTME: Wait-free for the single writer, bounded retry for readers
package snapshot

import "sync/atomic"

// loadAttempts bounds reader retries against a writer flipping the front.
const loadAttempts = 4

// DoubleBuffer publishes values of T from a single writer. The zero value
// is ready to use and holds nothing until the first Publish.
type DoubleBuffer[T any] struct {
	bufs    [2]T
	readers [2]atomic.Int32
	front   atomic.Uint32
	seq     atomic.Uint64
	skipped atomic.Uint64
}

// Publish copies v into the back slot and makes it current. It returns
// false, leaving the current value in place, when a reader still holds
// the back slot. Only one goroutine may call Publish.
func (d *DoubleBuffer[T]) Publish(v *T) bool {
	back := 1 - d.front.Load()
	if d.readers[back].Load() > 0 {
		d.skipped.Add(1)
		return false
	}
	d.bufs[back] = *v
	d.front.Store(back)
	d.seq.Add(1)
	return true
}

// Load copies the current value into dst. It returns false before the
// first Publish or when the writer kept flipping under the reader.
func (d *DoubleBuffer[T]) Load(dst *T) bool {
	for range loadAttempts {
		if d.seq.Load() == 0 {
			return false
		}
		f := d.front.Load()
		d.readers[f].Add(1)
		if d.front.Load() != f {
			d.readers[f].Add(-1)
			continue
		}
		*dst = d.bufs[f]
		d.readers[f].Add(-1)
		return true
	}
	return false
}

// Seq is the number of successful publishes.
func (d *DoubleBuffer[T]) Seq() uint64 { return d.seq.Load() }

// Skipped is the number of publishes dropped because a reader held the
// back slot.
func (d *DoubleBuffer[T]) Skipped() uint64 { return d.skipped.Load() }
