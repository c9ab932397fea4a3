// Package queue implements the bounded, lossy, drop-oldest queue used
// by both the publication engine's per-subscriber fan-out and the
// subscription engine's per-subscriber-handle buffer (spec.md §5, §9:
// "Drop-oldest queue"). Modeled on the teacher's pkg/minilog Ring,
// which is the same "fixed capacity, push always succeeds by evicting
// the oldest slot" shape, generalized here from a string log line to
// any value and given a blocking Pop instead of a point-in-time Dump.
package queue

import (
	"context"
	"sync"
)

// Lossy is a bounded queue with drop-oldest semantics: Push never
// blocks and never fails; when full it evicts the front element
// before appending. Pop blocks until an element is available, the
// queue is closed, or the context is done.
type Lossy[T any] struct {
	mu     sync.Mutex
	items  []T
	cap    int
	closed bool

	notify chan struct{}

	dropped int64
}

// NewLossy creates a queue with the given capacity. A non-positive
// capacity is treated as 1, since a zero-capacity drop-oldest queue
// would drop every push.
func NewLossy[T any](capacity int) *Lossy[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Lossy[T]{
		items:  make([]T, 0, capacity),
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

// Push appends v, evicting the oldest element first if the queue is
// already at capacity. It is a no-op after Close.
func (q *Lossy[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until an element is available, the queue closes (returns
// zero, false), or ctx is done (returns zero, false).
func (q *Lossy[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, false
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Close marks the queue closed; pending Pop calls return immediately
// once drained, and further Push calls are ignored.
func (q *Lossy[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of currently queued elements.
func (q *Lossy[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports the cumulative number of elements evicted by
// drop-oldest pushes.
func (q *Lossy[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Snapshot returns a copy of the currently queued elements, oldest
// first, without consuming them. Used by tests asserting ordering.
func (q *Lossy[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
