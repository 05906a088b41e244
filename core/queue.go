package core

import (
	"iter"
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// WorkQueue is an unbounded FIFO with any number of producers and a single
// consumer. Once closed, appends fail and Drain yields what is left before
// ending.
type WorkQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func NewWorkQueue[T any]() *WorkQueue[T] {
	q := &WorkQueue[T]{
		items: make([]T, 0, defaultQueueCap),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Append adds item to the tail of the queue. It never blocks and fails only
// with ErrQueueClosed.
func (q *WorkQueue[T]) Append(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// Close marks the queue as complete for adding. It is idempotent.
func (q *WorkQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

func (q *WorkQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *WorkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain returns a sequence that blocks for the next item and ends once the
// queue is closed and empty. Only one goroutine may consume the queue.
func (q *WorkQueue[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			item, ok := q.take()
			if !ok {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}

// take waits for the head item. ok is false when the queue is closed and empty.
func (q *WorkQueue[T]) take() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return item, false
	}

	item = q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *WorkQueue[T]) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]T, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}
