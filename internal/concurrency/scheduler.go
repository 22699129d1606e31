// Package concurrency owns the named concurrency primitives of the player: the cooperative
// scheduler and its tasks, OS-level threads (goroutines outside the scheduler), queues,
// signals and the select-index slot.
//
// The scheduler is single-threaded in the cooperative sense: every task is a goroutine, but a
// task only runs while it holds the scheduler's baton, and it hands the baton back whenever it
// suspends (Sleep, Yield, WaitAny, Queue.Get, Task.Wait) or returns. Tasks therefore never run
// in parallel with each other and may share state without locks, exactly like coroutines on
// one event loop. Ready tasks run in FIFO order.
package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// TaskFunc is the body of a cooperative task.
type TaskFunc func(ctx context.Context) error

// Scheduler is the single cooperative event loop.
type Scheduler struct {
	logger *slog.Logger

	mu       sync.Mutex
	ready    []*Task
	live     int
	running  bool
	stopping bool
	onStart  []func()

	// notify wakes the loop when ready grows or the last task exits
	notify chan struct{}

	// baton is sent by the running task when it suspends or exits
	baton chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. Nothing runs until Run is called.
func NewScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		notify: make(chan struct{}, 1),
		baton:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ScheduleOnStart registers fn to run on the loop before any task, once Run starts.
// After Run started, fn is queued as a task instead.
func (s *Scheduler) ScheduleOnStart(fn func()) {
	s.mu.Lock()
	if !s.running {
		s.onStart = append(s.onStart, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if _, err := s.Spawn("on start", func(context.Context) error {
		fn()
		return nil
	}, nil); err != nil {
		s.logger.Warn("on-start function dropped", slog.Any("error", err))
	}
}

// Spawn creates a task and appends it to the ready queue. It is safe to call from any
// goroutine, including other tasks. onExit, when non-nil, runs after the task finished.
func (s *Scheduler) Spawn(name string, fn TaskFunc, onExit func()) (*Task, error) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil, domain.ErrSchedulerStopped
	}
	t := newTask(s, name, fn, onExit)
	s.live++
	s.ready = append(s.ready, t)
	s.mu.Unlock()

	go t.main()
	s.wakeLoop()
	return t, nil
}

// Run drives the loop until Stop is called (or ctx is cancelled) and every task has exited.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ErrAlreadyInitialized
	}
	s.running = true
	starters := s.onStart
	s.onStart = nil
	s.mu.Unlock()
	defer close(s.done)

	stopWatch := context.AfterFunc(ctx, s.Stop)
	defer stopWatch()

	s.logger.Debug("scheduler started", slog.Int("on_start", len(starters)))
	for _, fn := range starters {
		s.callOnStart(fn)
	}

	for {
		t := s.next()
		if t == nil {
			s.logger.Debug("scheduler stopped")
			return nil
		}
		if !t.state.CompareAndSwap(taskPending, taskRunning) && t.state.Load() != taskParked {
			// discarded before it ever ran
			continue
		}
		t.state.Store(taskRunning)
		t.resume <- struct{}{}
		<-s.baton
	}
}

// Stop cancels every task context and lets Run return once all tasks exited.
// Tasks that never started are discarded. Safe to call more than once and from tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.mu.Unlock()

	s.cancel()
	s.wakeLoop()
}

// Done is closed when Run returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stopping reports whether Stop was called.
func (s *Scheduler) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Scheduler) next() *Task {
	for {
		s.mu.Lock()
		if len(s.ready) > 0 {
			t := s.ready[0]
			s.ready[0] = nil
			s.ready = s.ready[1:]
			s.mu.Unlock()
			return t
		}
		if s.stopping && s.live == 0 {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		<-s.notify
	}
}

func (s *Scheduler) enqueue(t *Task) {
	s.mu.Lock()
	s.ready = append(s.ready, t)
	s.mu.Unlock()
	s.wakeLoop()
}

func (s *Scheduler) taskExited() {
	s.mu.Lock()
	s.live--
	s.mu.Unlock()
	s.wakeLoop()
}

func (s *Scheduler) wakeLoop() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) callOnStart(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("on-start function panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

const (
	taskPending int32 = iota
	taskRunning
	taskParked
	taskDone
)

type taskKey struct{}

// Task is a cooperative task hosted by a Scheduler.
type Task struct {
	name   string
	sched  *Scheduler
	fn     TaskFunc
	ctx    context.Context
	onExit func()

	resume chan struct{}
	state  atomic.Int32
	done   *Signal
	err    error
}

func newTask(s *Scheduler, name string, fn TaskFunc, onExit func()) *Task {
	t := &Task{
		name:   name,
		sched:  s,
		fn:     fn,
		onExit: onExit,
		resume: make(chan struct{}),
		done:   NewSignal(name + " done"),
	}
	t.ctx = context.WithValue(s.ctx, taskKey{}, t)
	return t
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Done returns the signal that is set when the task finished.
func (t *Task) Done() *Signal {
	return t.done
}

// Finished reports whether the task has finished.
func (t *Task) Finished() bool {
	return t.done.IsSet()
}

// Err returns the task's result; only meaningful once Finished.
func (t *Task) Err() error {
	if !t.done.IsSet() {
		return nil
	}
	return t.err
}

// Wait suspends until the task finished and returns its result.
func (t *Task) Wait(ctx context.Context) error {
	if err := t.done.Wait(ctx); err != nil {
		return err
	}
	return t.err
}

func (t *Task) main() {
	select {
	case <-t.resume:
	case <-t.sched.ctx.Done():
		if t.state.CompareAndSwap(taskPending, taskDone) {
			t.finish(context.Canceled, false)
			return
		}
		// the loop already claimed the task and is about to resume it
		<-t.resume
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %q panicked: %v", t.name, r)
				t.sched.logger.Error("task panicked", slog.String("task", t.name), slog.Any("panic", r))
			}
		}()
		err = t.fn(t.ctx)
	}()
	t.state.Store(taskDone)
	t.finish(err, true)
}

func (t *Task) finish(err error, holdsBaton bool) {
	t.err = err
	t.sched.taskExited()
	t.done.Set()
	if t.onExit != nil {
		t.onExit()
	}
	if holdsBaton {
		t.sched.baton <- struct{}{}
	}
}

// park hands the baton back and blocks until wake is called or ctx is done.
func (t *Task) park(ctx context.Context, arm armFunc) error {
	var fired atomic.Bool
	wake := func() {
		if fired.CompareAndSwap(false, true) {
			t.sched.enqueue(t)
		}
	}
	disarm := arm(wake)
	stopCtx := context.AfterFunc(ctx, wake)

	t.state.Store(taskParked)
	t.sched.baton <- struct{}{}
	<-t.resume

	stopCtx()
	disarm()
	return ctx.Err()
}

// taskFrom returns the task owning ctx, or nil outside the scheduler.
func taskFrom(ctx context.Context) *Task {
	t, _ := ctx.Value(taskKey{}).(*Task)
	return t
}

// InTask reports whether ctx belongs to a cooperative task.
func InTask(ctx context.Context) bool {
	return taskFrom(ctx) != nil
}
