// Package queue provides the FIFO buffers the archive writers drain in batches.
package queue

import (
	"sync"
)

// Queue is a FIFO safe for concurrent producers and one batch consumer.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends items at the tail.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Requeue puts items back at the head, ahead of anything pushed since they
// were taken.
func (q *Queue[T]) Requeue(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
}

// Empty reports whether nothing is queued.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len is the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take removes and returns up to max items from the head. max <= 0 takes all.
func (q *Queue[T]) Take(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max >= len(q.items) {
		out := q.items
		q.items = nil
		return out
	}
	out := make([]T, max)
	copy(out, q.items[:max])
	q.items = q.items[max:]
	return out
}
