package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// ActivityThreadName is the registry name of the thread talking to the activity sink.
const ActivityThreadName = "Activity Publisher"

const disconnectTimeout = 5 * time.Second

// ActivityConfig tunes how often the activity is sent.
type ActivityConfig struct {
	// MinInterval is the least time between two updates; status services rate limit
	MinInterval time.Duration

	// Poll is how often the thread looks for a changed activity
	Poll time.Duration
}

// ActivityService follows the sequencer's track events and mirrors the playing track to an
// ActivitySink. Bus handlers only record the change; a dedicated thread sends it, so a slow
// status service never holds up the scheduler.
//
// Thread-safety: All operations are thread-safe via sync.Mutex.
type ActivityService struct {
	// Dependencies (injected)
	logger *slog.Logger
	reg    *concurrency.Registry
	bus    ports.EventBus
	sink   ports.ActivitySink
	cfg    ActivityConfig
	now    func() time.Time

	// State
	mu       sync.Mutex
	track    domain.Activity // the loaded track, unpaused; idle when none
	pausedAt time.Time
	changed  bool
	sentAt   time.Time
	subs     []domain.SubscriptionID

	closing *concurrency.Signal
	wake    *concurrency.Signal
}

// NewActivityService creates an activity service. Call Start to subscribe it.
func NewActivityService(logger *slog.Logger, reg *concurrency.Registry, bus ports.EventBus, sink ports.ActivitySink, cfg ActivityConfig) *ActivityService {
	if cfg.Poll <= 0 {
		cfg.Poll = 3 * time.Second
	}
	return &ActivityService{
		logger:  logger,
		reg:     reg,
		bus:     bus,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
		track:   domain.IdleActivity(),
		changed: true,
		closing: concurrency.NewSignal("Activity Closing"),
		wake:    concurrency.NewSignal("Activity Changed"),
	}
}

// Start subscribes the handlers. Run is the body of the publisher thread.
func (s *ActivityService) Start() error {
	handlers := map[domain.Topic]func(context.Context, domain.Event){
		domain.TopicAudioTrackStart:  s.onTrackStart,
		domain.TopicAudioTrackPause:  s.onPause,
		domain.TopicAudioTrackResume: s.onResume,
		domain.TopicAudioTrackEnd:    s.onIdle,
		domain.TopicAudioManagerEnd:  s.onIdle,
		domain.TopicProgramClose:     func(context.Context, domain.Event) { s.closing.Set() },
	}

	var errs []error
	subs := make([]domain.SubscriptionID, 0, len(handlers))
	for _, topic := range domain.AllTopics() {
		handler, ok := handlers[topic]
		if !ok {
			continue
		}
		id, err := s.bus.Subscribe(topic, ports.SubscriberFunc(handler))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		subs = append(subs, id)
	}

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Shutdown removes the subscriptions. The thread ends on program close.
func (s *ActivityService) Shutdown() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, id := range subs {
		s.bus.Unsubscribe(id)
	}
}

// Activity returns what the sink shows, or will show once the next update goes out.
func (s *ActivityService) Activity() domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *ActivityService) currentLocked() domain.Activity {
	a := s.track
	if !s.pausedAt.IsZero() {
		a.Paused = true
		a.Start, a.End = time.Time{}, time.Time{}
	}
	return a
}

func (s *ActivityService) onTrackStart(_ context.Context, e domain.Event) {
	te, ok := e.(domain.TrackEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = domain.TrackActivity(te.Playlist, te.Track, s.now())
	s.pausedAt = time.Time{}
	s.markChangedLocked()
}

func (s *ActivityService) onPause(_ context.Context, _ domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track.Idle() || !s.pausedAt.IsZero() {
		return
	}
	s.pausedAt = s.now()
	s.markChangedLocked()
}

func (s *ActivityService) onResume(_ context.Context, _ domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pausedAt.IsZero() {
		return
	}
	// the track did not move while paused
	shift := s.now().Sub(s.pausedAt)
	s.track.Start = s.track.Start.Add(shift)
	if !s.track.End.IsZero() {
		s.track.End = s.track.End.Add(shift)
	}
	s.pausedAt = time.Time{}
	s.markChangedLocked()
}

func (s *ActivityService) onIdle(_ context.Context, _ domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track.Idle() {
		return
	}
	s.track = domain.IdleActivity()
	s.pausedAt = time.Time{}
	s.markChangedLocked()
}

func (s *ActivityService) markChangedLocked() {
	s.changed = true
	s.wake.Set()
}

// Run connects the sink and sends changes until program close.
func (s *ActivityService) Run(ctx context.Context) error {
	if err := s.sink.Connect(ctx); err != nil {
		return fmt.Errorf("connect activity sink: %w", err)
	}
	s.logger.Info("activity sink connected")
	defer s.disconnect()

	for {
		s.flush(ctx)
		i, err := concurrency.WaitAny(ctx, s.cfg.Poll, s.closing, s.reg.ProgramClose(), s.wake)
		switch {
		case err != nil, i == 0, i == 1:
			return nil
		case i == 2:
			s.wake.Clear()
		}
	}
}

// flush sends the activity if it changed and the last update is old enough.
func (s *ActivityService) flush(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	if !s.changed || (!s.sentAt.IsZero() && now.Sub(s.sentAt) < s.cfg.MinInterval) {
		s.mu.Unlock()
		return
	}
	activity := s.currentLocked()
	s.changed = false
	s.sentAt = now
	s.mu.Unlock()

	if err := s.sink.Update(ctx, activity); err != nil {
		s.logger.Warn("activity update failed", slog.Any("error", err))
		return
	}
	s.logger.Debug("activity updated", slog.String("details", activity.Details), slog.Bool("paused", activity.Paused))
}

func (s *ActivityService) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := s.sink.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear activity", slog.Any("error", err))
	}
	if err := s.sink.Close(); err != nil {
		s.logger.Warn("failed to close activity sink", slog.Any("error", err))
	}
}
