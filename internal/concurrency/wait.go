package concurrency

import (
	"context"
	"time"
)

// TimedOut is the index WaitAny returns when its timeout elapsed first.
const TimedOut = -1

// armFunc registers wake with whatever should end a suspension and returns the undo.
type armFunc func(wake func()) (disarm func())

// suspend parks the current task until wake or ctx. Outside a task it blocks the goroutine.
func suspend(ctx context.Context, arm armFunc) error {
	if t := taskFrom(ctx); t != nil {
		return t.park(ctx, arm)
	}

	ch := make(chan struct{}, 1)
	disarm := arm(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	defer disarm()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sleep suspends for d. It returns early with ctx's error when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return Yield(ctx)
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		err := suspend(ctx, func(wake func()) func() {
			timer := time.AfterFunc(remaining, wake)
			return func() { timer.Stop() }
		})
		if err != nil {
			return err
		}
	}
}

// Yield lets every other ready task run once before the caller continues.
func Yield(ctx context.Context) error {
	if !InTask(ctx) {
		return ctx.Err()
	}
	return suspend(ctx, func(wake func()) func() {
		wake()
		return func() {}
	})
}

// WaitAny suspends until one of the signals is set and returns the index of the first set
// signal in argument order. A positive timeout bounds the wait; TimedOut is returned when
// it elapses. Signals are not cleared.
func WaitAny(ctx context.Context, timeout time.Duration, signals ...*Signal) (int, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if i := firstSet(signals); i >= 0 {
			return i, nil
		}
		if err := ctx.Err(); err != nil {
			return TimedOut, err
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return TimedOut, nil
		}

		err := suspend(ctx, func(wake func()) func() {
			cancels := make([]func(), 0, len(signals))
			for _, s := range signals {
				cancels = append(cancels, s.watch(wake))
			}
			var timer *time.Timer
			if timeout > 0 {
				timer = time.AfterFunc(time.Until(deadline), wake)
			}
			return func() {
				for _, c := range cancels {
					c()
				}
				if timer != nil {
					timer.Stop()
				}
			}
		})
		if err != nil {
			return TimedOut, err
		}
	}
}

func firstSet(signals []*Signal) int {
	for i, s := range signals {
		if s.IsSet() {
			return i
		}
	}
	return -1
}
