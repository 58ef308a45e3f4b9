// Package ringchan provides a bounded, channel-backed queue that never blocks
// producers: when full, the oldest element is discarded to make room.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers call Push from any goroutine. A single consumer reads C() or
// Receive(). Push after Close is a no-op.
type Ring[T any] struct {
	mu     sync.Mutex // serializes producers so a drop-then-send never blocks
	ch     chan T
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	processed   atomic.Int64
	rejected    atomic.Int64
}

// Metrics is a snapshot of Ring counters.
type Metrics struct {
	Written     int64 // accepted by Push
	Overwritten int64 // discarded to make room
	Processed   int64 // taken by Receive
	Rejected    int64 // pushed after Close
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// Push inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was discarded and whether v was accepted.
func (r *Ring[T]) Push(v T) (dropped, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.rejected.Add(1)
		return false, false
	}

	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch:
			r.overwritten.Add(1)
			dropped = true
		default:
			// the consumer drained it meanwhile
		}
		r.ch <- v
	}
	r.written.Add(1)
	return dropped, true
}

// C returns the receive side. Reads through C are not counted as Processed.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Receive blocks until a value is available or the ring is closed and drained.
func (r *Ring[T]) Receive() (v T, ok bool) {
	v, ok = <-r.ch
	if ok {
		r.processed.Add(1)
	}
	return
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close stops accepting values. Buffered values remain readable. Close is idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// Metrics returns a snapshot of the counters.
func (r *Ring[T]) Metrics() Metrics {
	return Metrics{
		Written:     r.written.Load(),
		Overwritten: r.overwritten.Load(),
		Processed:   r.processed.Load(),
		Rejected:    r.rejected.Load(),
	}
}
