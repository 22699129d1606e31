package concurrency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// Well-known primitive names.
const (
	ProgramCloseSignal    = "Program Close"
	WindowCloseSafeSignal = "Window Close Safe"
	MainLoopTask          = "Main Loop"
	ShutdownTask          = "Shutdown Orchestrator"
)

// Registry is the single owner of named concurrency primitives.
//
// Protocol violations never fail hard: creating a name twice logs a warning and returns the
// existing primitive together with domain.ErrNameTaken, and looking up a missing name logs a
// warning and returns nil.
type Registry struct {
	logger *slog.Logger
	sched  *Scheduler

	mu            sync.Mutex
	threads       map[string]*Thread
	tasks         map[string]*Task
	queues        map[string]any
	crossFlags    map[string]*Signal
	coopFlags     map[string]*Signal
	threadSignals map[string]*Signal
	slots         map[string]*IndexSlot
	shutdownSteps []shutdownStep

	threadCtx    context.Context
	threadCancel context.CancelFunc
	threadWG     sync.WaitGroup

	programClose *Signal
	closeSafe    *Signal
}

type shutdownStep struct {
	task bool
	name string
}

// NewRegistry creates a registry with its own scheduler.
func NewRegistry(logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		logger:        logger,
		sched:         NewScheduler(logger.With(slog.String("component", "scheduler"))),
		threads:       make(map[string]*Thread),
		tasks:         make(map[string]*Task),
		queues:        make(map[string]any),
		crossFlags:    make(map[string]*Signal),
		coopFlags:     make(map[string]*Signal),
		threadSignals: make(map[string]*Signal),
		slots:         make(map[string]*IndexSlot),
		threadCtx:     ctx,
		threadCancel:  cancel,
	}
	r.programClose, _ = r.CreateCooperativeFlag(ProgramCloseSignal)
	r.closeSafe, _ = r.CreateThreadSignal(WindowCloseSafeSignal)
	return r
}

// Scheduler returns the cooperative scheduler.
func (r *Registry) Scheduler() *Scheduler {
	return r.sched
}

// ProgramClose returns the signal that starts the shutdown protocol.
func (r *Registry) ProgramClose() *Signal {
	return r.programClose
}

// WindowCloseSafe returns the signal set once shutdown finished waiting on everything.
func (r *Registry) WindowCloseSafe() *Signal {
	return r.closeSafe
}

// Thread is a named goroutine outside the scheduler, used to bridge blocking work.
type Thread struct {
	name string
	done *Signal
	err  error
}

// Name returns the thread name.
func (t *Thread) Name() string {
	return t.name
}

// Done returns the signal set when the thread function returned.
func (t *Thread) Done() *Signal {
	return t.done
}

// Err returns the thread's result once Done is set.
func (t *Thread) Err() error {
	if !t.done.IsSet() {
		return nil
	}
	return t.err
}

// CreateThread starts fn on its own goroutine. The context is cancelled by Close.
// A name can be reused once the previous thread returned.
func (r *Registry) CreateThread(name string, fn func(ctx context.Context) error) (*Thread, error) {
	r.mu.Lock()
	if existing, ok := r.threads[name]; ok && !existing.done.IsSet() {
		r.mu.Unlock()
		r.logger.Warn("thread already exists", slog.String("name", name))
		return existing, domain.ErrNameTaken
	}
	t := &Thread{name: name, done: NewSignal(name + " done")}
	r.threads[name] = t
	r.threadWG.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.threadWG.Done()
		defer t.done.Set()
		defer func() {
			if rec := recover(); rec != nil {
				t.err = fmt.Errorf("thread %q panicked: %v", name, rec)
				r.logger.Error("thread panicked", slog.String("name", name), slog.Any("panic", rec))
			}
		}()

		r.logger.Debug("thread started", slog.String("name", name))
		t.err = fn(r.threadCtx)
		if t.err != nil && !errors.Is(t.err, context.Canceled) {
			r.logger.Error("thread failed", slog.String("name", name), slog.Any("error", t.err))
		}
	}()
	return t, nil
}

// Thread returns a thread by name, or nil with a warning.
func (r *Registry) Thread(name string) *Thread {
	r.mu.Lock()
	t, ok := r.threads[name]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("thread not found", slog.String("name", name))
		return nil
	}
	return t
}

// CreateTask schedules a cooperative task. It may be called from any goroutine; the task
// always runs on the scheduler. A name is free again once its task finished.
func (r *Registry) CreateTask(name string, fn TaskFunc) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tasks[name]; ok {
		r.logger.Warn("task already exists", slog.String("name", name))
		return existing, domain.ErrNameTaken
	}

	var t *Task
	t, err := r.sched.Spawn(name, fn, func() {
		r.mu.Lock()
		if r.tasks[name] == t {
			delete(r.tasks, name)
		}
		r.mu.Unlock()
	})
	if err != nil {
		r.logger.Warn("task not scheduled", slog.String("name", name), slog.Any("error", err))
		return nil, err
	}
	r.tasks[name] = t
	return t, nil
}

// Task returns a running task by name, or nil with a warning.
func (r *Registry) Task(name string) *Task {
	t, ok := r.lookupTask(name)
	if !ok {
		r.logger.Warn("task not found", slog.String("name", name))
		return nil
	}
	return t
}

// HasTask reports, without logging, whether a task with the name is alive.
func (r *Registry) HasTask(name string) bool {
	_, ok := r.lookupTask(name)
	return ok
}

func (r *Registry) lookupTask(name string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[name]
	return t, ok
}

// CreateQueue registers a named queue of T.
func CreateQueue[T any](r *Registry, name string) (*Queue[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.queues[name]; ok {
		r.logger.Warn("queue already exists", slog.String("name", name))
		q, _ := existing.(*Queue[T])
		return q, domain.ErrNameTaken
	}
	q := NewQueue[T](name)
	r.queues[name] = q
	return q, nil
}

// LookupQueue returns a named queue of T, or nil with a warning.
func LookupQueue[T any](r *Registry, name string) *Queue[T] {
	r.mu.Lock()
	existing, ok := r.queues[name]
	r.mu.Unlock()

	q, typed := existing.(*Queue[T])
	if !ok || !typed {
		r.logger.Warn("queue not found", slog.String("name", name))
		return nil
	}
	return q
}

// CreateCrossProcessFlag registers a flag shared with the download worker.
func (r *Registry) CreateCrossProcessFlag(name string) (*Signal, error) {
	return r.createSignal(r.crossFlags, "cross-process flag", name)
}

// CrossProcessFlag returns a cross-process flag, or nil with a warning.
func (r *Registry) CrossProcessFlag(name string) *Signal {
	return r.lookupSignal(r.crossFlags, "cross-process flag", name)
}

// CreateCooperativeFlag registers a flag awaited by cooperative tasks.
func (r *Registry) CreateCooperativeFlag(name string) (*Signal, error) {
	return r.createSignal(r.coopFlags, "cooperative flag", name)
}

// CooperativeFlag returns a cooperative flag, or nil with a warning.
func (r *Registry) CooperativeFlag(name string) *Signal {
	return r.lookupSignal(r.coopFlags, "cooperative flag", name)
}

// CreateThreadSignal registers a signal set by a thread and awaited by tasks.
func (r *Registry) CreateThreadSignal(name string) (*Signal, error) {
	return r.createSignal(r.threadSignals, "thread signal", name)
}

// ThreadSignal returns a thread signal, or nil with a warning.
func (r *Registry) ThreadSignal(name string) *Signal {
	return r.lookupSignal(r.threadSignals, "thread signal", name)
}

// CreateIndexSlot registers a latest-value index slot.
func (r *Registry) CreateIndexSlot(name string) (*IndexSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.slots[name]; ok {
		r.logger.Warn("index slot already exists", slog.String("name", name))
		return existing, domain.ErrNameTaken
	}
	s := NewIndexSlot(name)
	r.slots[name] = s
	return s, nil
}

// IndexSlot returns a slot, or nil with a warning.
func (r *Registry) IndexSlot(name string) *IndexSlot {
	r.mu.Lock()
	s, ok := r.slots[name]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("index slot not found", slog.String("name", name))
		return nil
	}
	return s
}

func (r *Registry) createSignal(table map[string]*Signal, kind, name string) (*Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := table[name]; ok {
		r.logger.Warn(kind+" already exists", slog.String("name", name))
		return existing, domain.ErrNameTaken
	}
	s := NewSignal(name)
	table[name] = s
	return s, nil
}

func (r *Registry) lookupSignal(table map[string]*Signal, kind, name string) *Signal {
	r.mu.Lock()
	s, ok := table[name]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn(kind+" not found", slog.String("name", name))
		return nil
	}
	return s
}

// ScheduleOnStart defers fn until the scheduler loop runs.
func (r *Registry) ScheduleOnStart(fn func()) {
	r.sched.ScheduleOnStart(fn)
}

// AwaitOnShutdown makes the shutdown orchestrator wait for the named task, if it is alive.
// Steps are awaited in registration order.
func (r *Registry) AwaitOnShutdown(taskName string) {
	r.mu.Lock()
	r.shutdownSteps = append(r.shutdownSteps, shutdownStep{task: true, name: taskName})
	r.mu.Unlock()
}

// AwaitSignalOnShutdown makes the shutdown orchestrator wait for a thread signal.
func (r *Registry) AwaitSignalOnShutdown(signalName string) {
	r.mu.Lock()
	r.shutdownSteps = append(r.shutdownSteps, shutdownStep{name: signalName})
	r.mu.Unlock()
}

// Run drives the scheduler until the shutdown protocol completes or ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	if _, err := r.CreateTask(MainLoopTask, r.mainLoop); err != nil {
		return err
	}
	return r.sched.Run(ctx)
}

// Close cancels every thread context, waits for the threads and stops the scheduler.
func (r *Registry) Close() {
	r.threadCancel()
	r.threadWG.Wait()
	r.sched.Stop()
}

func (r *Registry) mainLoop(ctx context.Context) error {
	if err := r.programClose.Wait(ctx); err != nil {
		return err
	}
	r.logger.Info("program close requested")

	t, err := r.CreateTask(ShutdownTask, r.shutdown)
	if err == nil {
		if err := t.Wait(ctx); err != nil {
			r.logger.Warn("shutdown orchestrator failed", slog.Any("error", err))
		}
	}

	r.closeSafe.Set()
	r.sched.Stop()
	return nil
}

func (r *Registry) shutdown(ctx context.Context) error {
	r.mu.Lock()
	steps := append([]shutdownStep(nil), r.shutdownSteps...)
	r.mu.Unlock()

	for _, step := range steps {
		if step.task {
			t, ok := r.lookupTask(step.name)
			if !ok {
				continue
			}
			r.logger.Debug("shutdown waiting for task", slog.String("name", step.name))
			if err := t.Wait(ctx); err != nil && ctx.Err() != nil {
				return err
			}
			continue
		}

		s := r.ThreadSignal(step.name)
		if s == nil {
			continue
		}
		r.logger.Debug("shutdown waiting for signal", slog.String("name", step.name))
		if err := s.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
