package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

const (
	defaultMaxRestarts    = 3
	defaultRestartBackoff = time.Second
)

// Loop is a restartable command loop. *Worker implements it.
type Loop interface {
	Run(ctx context.Context) error

	// Interrupted returns, and forgets, the command that was running when Run died.
	Interrupted() (domain.Command, bool)
}

// Supervisor keeps the worker loop alive. When the loop dies for any reason other than the
// shutdown sentinel or cancellation, the interrupted command gets its failure response and
// the loop is started again after a growing pause. Once the restart budget is spent the
// caller is told the worker is gone.
type Supervisor struct {
	logger  *slog.Logger
	loop    Loop
	ch      *Channels
	budget  int
	backoff time.Duration
}

// NewSupervisor wraps a loop. A zero budget or backoff selects the defaults.
func NewSupervisor(logger *slog.Logger, loop Loop, ch *Channels, maxRestarts int, backoff time.Duration) *Supervisor {
	if maxRestarts <= 0 {
		maxRestarts = defaultMaxRestarts
	}
	if backoff <= 0 {
		backoff = defaultRestartBackoff
	}
	return &Supervisor{logger: logger, loop: loop, ch: ch, budget: maxRestarts, backoff: backoff}
}

// Run drives the worker until it acknowledged the sentinel or ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	for restarts := 0; ; restarts++ {
		err := s.runOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if cmd, ok := s.loop.Interrupted(); ok {
			s.ch.Responses.Put(failureResponse(cmd, s.ch.Commands.Empty()))
		}
		if restarts >= s.budget {
			s.logger.Error("download worker gave up", slog.Int("restarts", restarts), slog.Any("error", err))
			s.ch.Responses.Put(domain.WorkerClosed{})
			return err
		}

		pause := s.backoff * time.Duration(restarts+1)
		s.logger.Warn("download worker crashed, restarting",
			slog.Any("error", err), slog.Int("restart", restarts+1), slog.Duration("backoff", pause))
		if err := concurrency.Sleep(ctx, pause); err != nil {
			return err
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("download worker panicked: %v", r)
		}
	}()
	return s.loop.Run(ctx)
}
