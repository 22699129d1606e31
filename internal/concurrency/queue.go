package concurrency

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO shared between goroutines. Get suspends a cooperative task
// instead of blocking the scheduler, and blocks a plain goroutine.
type Queue[T any] struct {
	name string

	mu      sync.Mutex
	items   []T
	waiters map[uint64]func()
	seq     uint64
}

// NewQueue creates an empty queue.
func NewQueue[T any](name string) *Queue[T] {
	return &Queue[T]{name: name, waiters: make(map[uint64]func())}
}

// Name returns the queue name.
func (q *Queue[T]) Name() string {
	return q.name
}

// Put appends v and wakes waiting readers.
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	wake := make([]func(), 0, len(q.waiters))
	for _, w := range q.waiters {
		wake = append(wake, w)
	}
	q.mu.Unlock()

	for _, w := range wake {
		w()
	}
}

// Get removes and returns the oldest item, waiting until one is available or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryGet(); ok {
			return v, nil
		}
		if err := suspend(ctx, q.watch); err != nil {
			var zero T
			return zero, err
		}
	}
}

// TryGet removes and returns the oldest item if there is one.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

func (q *Queue[T]) watch(fn func()) func() {
	q.mu.Lock()
	q.seq++
	id := q.seq
	q.waiters[id] = fn
	ready := len(q.items) > 0
	q.mu.Unlock()

	if ready {
		fn()
	}
	return func() {
		q.mu.Lock()
		delete(q.waiters, id)
		q.mu.Unlock()
	}
}
