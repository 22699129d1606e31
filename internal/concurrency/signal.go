package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is a named, settable flag that tasks and goroutines can wait on.
// Setting a set signal and clearing a clear one are no-ops. It is safe across goroutines,
// so the same type backs cooperative flags, cross-worker flags and thread signals.
type Signal struct {
	name string

	mu      sync.Mutex
	set     bool
	waiters map[uint64]func()
	seq     uint64
}

// NewSignal creates a cleared signal.
func NewSignal(name string) *Signal {
	return &Signal{name: name, waiters: make(map[uint64]func())}
}

// Name returns the signal name.
func (s *Signal) Name() string {
	return s.name
}

// Set raises the signal and wakes every waiter.
func (s *Signal) Set() {
	s.mu.Lock()
	if s.set {
		s.mu.Unlock()
		return
	}
	s.set = true
	wake := make([]func(), 0, len(s.waiters))
	for _, w := range s.waiters {
		wake = append(wake, w)
	}
	s.mu.Unlock()

	for _, w := range wake {
		w()
	}
}

// Clear lowers the signal.
func (s *Signal) Clear() {
	s.mu.Lock()
	s.set = false
	s.mu.Unlock()
}

// IsSet reports whether the signal is raised.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Consume clears the signal and reports whether it was set.
func (s *Signal) Consume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.set
	s.set = false
	return was
}

// Wait suspends until the signal is set.
func (s *Signal) Wait(ctx context.Context) error {
	_, err := WaitAny(ctx, 0, s)
	return err
}

// watch calls fn on every Set until the returned cancel runs. fn runs immediately when the
// signal is already set.
func (s *Signal) watch(fn func()) func() {
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.waiters[id] = fn
	set := s.set
	s.mu.Unlock()

	if set {
		fn()
	}
	return func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}
}

// IndexSlot holds the latest requested index, or -1 when nothing is pending.
// Take reads and resets in one atomic step.
type IndexSlot struct {
	name string
	v    atomic.Int64
}

// NewIndexSlot creates an empty slot.
func NewIndexSlot(name string) *IndexSlot {
	s := &IndexSlot{name: name}
	s.v.Store(-1)
	return s
}

// Name returns the slot name.
func (s *IndexSlot) Name() string {
	return s.name
}

// Set stores an index, replacing any pending one. Negative values empty the slot.
func (s *IndexSlot) Set(i int) {
	if i < 0 {
		i = -1
	}
	s.v.Store(int64(i))
}

// Take returns the pending index and empties the slot.
func (s *IndexSlot) Take() (int, bool) {
	old := s.v.Swap(-1)
	return int(old), old >= 0
}

// Peek returns the pending index without consuming it (-1 when empty).
func (s *IndexSlot) Peek() int {
	return int(s.v.Load())
}
