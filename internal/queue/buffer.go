// Package queue provides the hand-off buffer between the ingestion cycle
// and the batching writer. The buffer grows instead of dropping, so a slow
// database stalls flushes rather than losing observations.
package queue

import "sync"

// Buffer is a thread-safe FIFO ring that doubles its capacity when full.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	tail   int
	count  int
	closed bool

	enqueued int64
	dequeued int64
	grows    int
}

// New creates a buffer with the given initial capacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{ring: make([]T, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends item to the buffer, growing it if necessary.
// Returns false if the buffer has been closed.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.count == len(b.ring) {
		b.grow()
	}
	b.ring[b.tail] = item
	b.tail = (b.tail + 1) % len(b.ring)
	b.count++
	b.enqueued++
	b.cond.Signal()
	return true
}

// Pop blocks until an item is available or the buffer is closed and
// drained. The second return is false only in the latter case.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.take(), true
}

// TryPop removes an item without blocking.
func (b *Buffer[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.take(), true
}

// Drain removes up to max items (all of them when max <= 0) and returns
// them in FIFO order. Returns nil when the buffer is empty.
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.take()
	}
	return out
}

// Close stops further pushes. Items already buffered can still be
// popped or drained.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats describes buffer activity since creation.
type Stats struct {
	Depth    int
	Capacity int
	Enqueued int64
	Dequeued int64
	Grows    int
}

func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Depth:    b.count,
		Capacity: len(b.ring),
		Enqueued: b.enqueued,
		Dequeued: b.dequeued,
		Grows:    b.grows,
	}
}

// take must be called with the lock held and count > 0.
func (b *Buffer[T]) take() T {
	item := b.ring[b.head]
	var zero T
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.dequeued++
	return item
}

// grow must be called with the lock held.
func (b *Buffer[T]) grow() {
	next := make([]T, len(b.ring)*2)
	if b.head < b.tail {
		copy(next, b.ring[b.head:b.tail])
	} else {
		n := copy(next, b.ring[b.head:])
		copy(next[n:], b.ring[:b.tail])
	}
	b.head = 0
	b.tail = b.count
	b.ring = next
	b.grows++
}
