// Package service holds the orchestration layer: the playback sequencer and the playlist
// service that routes front-end actions and downloader results.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// Registry names of the sequencer primitives.
const (
	SequencerTaskName     = "Playlist Manager"
	SkipFlagName          = "Audio Skip"
	PreviousFlagName      = "Audio Previous"
	ShuffleFlagName       = "Audio Shuffle"
	StopFlagName          = "Audio Stop"
	SelectFlagName        = "Audio Select"
	SelectSlotName        = "Audio Select Index"
	TrackAvailableFlag    = "Audio Track Available"
	TrackFinishedSignal   = "Audio Track Finished"
	defaultProgressPeriod = 500 * time.Millisecond
	defaultDownloadPoll   = 500 * time.Millisecond
)

// TrackPaths resolves the audio file of a track. storage.Layout implements it.
type TrackPaths interface {
	TrackPath(id domain.ID) string
}

// DownloadState reports whether the download worker has a session. *downloader.Client implements it.
type DownloadState interface {
	IsDownloading() bool
}

// SequencerConfig tunes the sequencer.
type SequencerConfig struct {
	// ProgressInterval is the period of AUDIO_TRACK_PROGRESS while a track plays
	ProgressInterval time.Duration

	// DownloadPoll bounds a wait for a track file between download notifications
	DownloadPoll time.Duration

	// PauseFirstTrack loads the first track of a session paused
	PauseFirstTrack bool

	// Volume is the initial volume (0.0 to 1.0)
	Volume float64
}

// DefaultSequencerConfig returns the defaults used when no configuration is loaded.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		ProgressInterval: defaultProgressPeriod,
		DownloadPoll:     defaultDownloadPoll,
		PauseFirstTrack:  true,
		Volume:           0.8,
	}
}

// Sequencer walks the loaded playlist in order, one cooperative task per session. It waits
// for tracks that are still downloading, skips the ones nobody is downloading, and reacts to
// skip, previous, shuffle, select and stop requests raised through its flags.
//
// Thread-safety: controls may be called from any goroutine. The walk itself only runs on
// the scheduler.
type Sequencer struct {
	// Dependencies (injected)
	logger    *slog.Logger
	reg       *concurrency.Registry
	engine    ports.AudioEngine
	bus       ports.EventBus
	presence  ports.FilePresence
	paths     TrackPaths
	downloads DownloadState
	cfg       SequencerConfig

	// Requests
	skip      *concurrency.Signal
	previous  *concurrency.Signal
	shuffle   *concurrency.Signal
	stop      *concurrency.Signal
	selectReq *concurrency.Signal
	selected  *concurrency.IndexSlot
	available *concurrency.Signal
	finished  *concurrency.Signal

	state  atomic.Int32
	index  atomic.Int64
	active atomic.Int64 // handle watched by the finished callback

	// mu guards the playback state below
	mu       sync.Mutex
	playlist *domain.Playlist
	track    domain.Track
	handle   domain.TrackHandle
	paused   bool
	volume   float64
	muted    bool
	looping  bool
}

// NewSequencer creates an idle sequencer and registers its flags. Flags that already exist
// in the registry are reused.
func NewSequencer(
	logger *slog.Logger,
	reg *concurrency.Registry,
	engine ports.AudioEngine,
	bus ports.EventBus,
	presence ports.FilePresence,
	paths TrackPaths,
	downloads DownloadState,
	cfg SequencerConfig,
) (*Sequencer, error) {
	defaults := DefaultSequencerConfig()
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaults.ProgressInterval
	}
	if cfg.DownloadPoll <= 0 {
		cfg.DownloadPoll = defaults.DownloadPoll
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		return nil, domain.NewValidationError("volume", cfg.Volume, "must be between 0.0 and 1.0")
	}

	s := &Sequencer{
		logger:    logger,
		reg:       reg,
		engine:    engine,
		bus:       bus,
		presence:  presence,
		paths:     paths,
		downloads: downloads,
		cfg:       cfg,
		handle:    domain.InvalidTrackHandle,
		volume:    cfg.Volume,
	}

	var errs []error
	flag := func(create func(string) (*concurrency.Signal, error), name string) *concurrency.Signal {
		sig, err := create(name)
		if err != nil && !errors.Is(err, domain.ErrNameTaken) {
			errs = append(errs, err)
		}
		return sig
	}
	s.skip = flag(reg.CreateCooperativeFlag, SkipFlagName)
	s.previous = flag(reg.CreateCooperativeFlag, PreviousFlagName)
	s.shuffle = flag(reg.CreateCooperativeFlag, ShuffleFlagName)
	s.stop = flag(reg.CreateCooperativeFlag, StopFlagName)
	s.selectReq = flag(reg.CreateCooperativeFlag, SelectFlagName)
	s.available = flag(reg.CreateCooperativeFlag, TrackAvailableFlag)
	s.finished = flag(reg.CreateThreadSignal, TrackFinishedSignal)
	slot, err := reg.CreateIndexSlot(SelectSlotName)
	if err != nil && !errors.Is(err, domain.ErrNameTaken) {
		errs = append(errs, err)
	}
	s.selected = slot
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s.index.Store(-1)
	s.state.Store(int32(domain.StateIdle))
	engine.OnFinished(func(h domain.TrackHandle) {
		if domain.TrackHandle(s.active.Load()) == h {
			s.finished.Set()
		}
	})

	logger.Debug("sequencer initialized")
	return s, nil
}

// Load starts a session over playlist. The playlist is walked in place, so a shuffle
// reorders the caller's playlist.
func (s *Sequencer) Load(playlist *domain.Playlist) error {
	if playlist == nil || len(playlist.Tracks) == 0 {
		return domain.ErrPlaylistEmpty
	}
	if s.Running() {
		s.logger.Warn("playlist load refused, sequencer busy", slog.String("playlist", playlist.Name))
		return domain.ErrSequencerBusy
	}

	for _, sig := range []*concurrency.Signal{s.skip, s.previous, s.shuffle, s.stop, s.selectReq, s.available, s.finished} {
		sig.Clear()
	}
	s.selected.Take()

	s.mu.Lock()
	s.playlist = playlist
	s.paused = false
	s.mu.Unlock()
	s.index.Store(-1)
	s.setState(domain.StateAdvancingIndex)

	if _, err := s.reg.CreateTask(SequencerTaskName, func(ctx context.Context) error {
		s.run(ctx, playlist)
		return nil
	}); err != nil {
		if errors.Is(err, domain.ErrNameTaken) {
			return domain.ErrSequencerBusy
		}
		return domain.NewServiceError("Sequencer", "Load", "cannot start playlist task", err)
	}
	s.logger.Info("playlist loaded", slog.String("playlist", playlist.Name), slog.Int("tracks", len(playlist.Tracks)))
	return nil
}

// Running reports whether a session is active.
func (s *Sequencer) Running() bool {
	return s.reg.HasTask(SequencerTaskName)
}

// Playlist returns the name of the playlist being walked, "" when idle.
func (s *Sequencer) Playlist() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playlist == nil {
		return ""
	}
	return s.playlist.Name
}

// State returns the current sequencer state.
func (s *Sequencer) State() domain.SequencerState {
	return domain.SequencerState(s.state.Load())
}

// Index returns the current track index, -1 when idle.
func (s *Sequencer) Index() int {
	return int(s.index.Load())
}

// Skip ends the current track and moves to the next one.
func (s *Sequencer) Skip() {
	if s.Running() {
		s.skip.Set()
	}
}

// Previous moves back one track.
func (s *Sequencer) Previous() {
	if s.Running() {
		s.previous.Set()
	}
}

// Shuffle reorders the playlist and restarts the walk from the first track.
// It returns false when no session is active.
func (s *Sequencer) Shuffle() bool {
	if !s.Running() {
		return false
	}
	s.shuffle.Set()
	return true
}

// Select jumps to track index i.
func (s *Sequencer) Select(i int) error {
	s.mu.Lock()
	p := s.playlist
	s.mu.Unlock()

	if p == nil || !s.Running() {
		return domain.ErrNoTrackLoaded
	}
	if i < 0 || i >= len(p.Tracks) {
		return domain.ErrInvalidIndex
	}
	s.selected.Set(i)
	s.selectReq.Set()
	s.publish(domain.NewSelectEvent(i))
	return nil
}

// Stop ends the session without playing the rest of the playlist.
func (s *Sequencer) Stop() {
	if s.Running() {
		s.stop.Set()
	}
}

// NotifyDownload wakes a walk waiting for a track file.
func (s *Sequencer) NotifyDownload() {
	s.available.Set()
}

// TogglePause pauses a playing track or resumes a paused one.
func (s *Sequencer) TogglePause() error {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()

	if paused {
		return s.Resume()
	}
	return s.Pause()
}

// Pause pauses the current track.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == domain.InvalidTrackHandle {
		return domain.ErrNoTrackLoaded
	}
	if s.paused {
		return nil
	}
	if err := s.engine.Pause(s.handle); err != nil {
		return err
	}
	s.paused = true
	s.publish(domain.NewTrackEvent(domain.TopicAudioTrackPause, s.playlist.Name, s.track, s.Index()))
	return nil
}

// Resume resumes the current track.
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == domain.InvalidTrackHandle {
		return domain.ErrNoTrackLoaded
	}
	if !s.paused {
		return nil
	}
	if err := s.engine.Play(s.handle); err != nil {
		return err
	}
	s.paused = false
	s.publish(domain.NewTrackEvent(domain.TopicAudioTrackResume, s.playlist.Name, s.track, s.Index()))
	return nil
}

// Paused reports whether the current track is paused.
func (s *Sequencer) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetVolume sets the playback volume (0.0 to 1.0). While muted the value is kept for unmute.
func (s *Sequencer) SetVolume(volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if volume < 0.0 || volume > 1.0 {
		return domain.ErrInvalidVolume
	}
	s.volume = volume
	if err := s.applyVolumeLocked(); err != nil {
		return err
	}
	s.publish(domain.NewVolumeChangedEvent(s.volume, s.muted))
	return nil
}

// Volume returns the volume (0.0 to 1.0), ignoring mute.
func (s *Sequencer) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// ToggleMute mutes or unmutes playback and returns the new mute state.
func (s *Sequencer) ToggleMute() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.muted = !s.muted
	if err := s.applyVolumeLocked(); err != nil {
		s.muted = !s.muted
		return s.muted, err
	}
	s.publish(domain.NewVolumeChangedEvent(s.volume, s.muted))
	return s.muted, nil
}

// ToggleLoop switches repeating the current track and returns the new state.
// The flag is dropped whenever the track ends for another reason than its natural end.
func (s *Sequencer) ToggleLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.looping = !s.looping
	s.publish(domain.NewLoopEvent(s.looping))
	return s.looping
}

// Looping reports whether the current track repeats.
func (s *Sequencer) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.looping
}

// Seek sets the playback position of the current track.
func (s *Sequencer) Seek(position time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == domain.InvalidTrackHandle {
		return domain.ErrNoTrackLoaded
	}
	if err := s.engine.Seek(s.handle, position); err != nil {
		return err
	}
	duration, err := s.engine.Duration(s.handle)
	if err != nil {
		duration = 0
	}
	s.publish(domain.NewTrackProgressEvent(s.Index(), position, duration))
	return nil
}

type passResult int

const (
	passDone passResult = iota
	passStopped
	passShuffled
)

type stepResult int

const (
	stepNext stepResult = iota
	stepReady
	stepStopped
	stepShuffled
)

// run is the body of the playlist task.
func (s *Sequencer) run(ctx context.Context, p *domain.Playlist) {
	first := true
	stopped := false

sweep:
	for {
		result := s.pass(ctx, p, &first)
		if result == passDone && s.shuffle.IsSet() {
			// a shuffle raised while the last track was finishing restarts the playlist
			result = passShuffled
		}
		switch result {
		case passStopped:
			stopped = true
			break sweep
		case passShuffled:
			s.shuffle.Clear()
			p.Shuffle()
			s.logger.Info("playlist shuffled, restarting", slog.String("playlist", p.Name))
			s.publish(domain.NewPlaylistShuffleEvent(p.Name))
		default:
			break sweep
		}
	}

	s.teardown(p, stopped)
}

// pass walks the playlist once from the first index.
func (s *Sequencer) pass(ctx context.Context, p *domain.Playlist, first *bool) passResult {
	s.index.Store(-1)
	for {
		s.setState(domain.StateAdvancingIndex)
		i := int(s.index.Add(1))
		if i >= len(p.Tracks) {
			return passDone
		}
		if i < 0 {
			i = 0
			s.index.Store(0)
		}
		track := p.Tracks[i]

		if !s.presence.IsTrackDownloaded(track.ID) {
			if !*first && !s.downloads.IsDownloading() {
				s.skipUndownloaded(p, i, track)
				continue
			}
			switch s.waitForDownload(ctx, p, i, track, *first) {
			case stepStopped:
				return passStopped
			case stepShuffled:
				return passShuffled
			case stepNext:
				continue
			}
		}

		switch s.play(ctx, p, i, track, first) {
		case stepStopped:
			return passStopped
		case stepShuffled:
			return passShuffled
		}
	}
}

// waitForDownload suspends until the track file exists or a request moves the walk.
func (s *Sequencer) waitForDownload(ctx context.Context, p *domain.Playlist, i int, track domain.Track, first bool) stepResult {
	s.setState(domain.StateWaitingForDownload)
	s.publish(domain.NewTrackEvent(domain.TopicAudioTrackWait, p.Name, track, i))
	s.logger.Debug("waiting for download", slog.Int("index", i), slog.String("track", track.Name))

	for {
		idx, err := concurrency.WaitAny(ctx, s.cfg.DownloadPoll,
			s.stop, s.shuffle, s.selectReq, s.skip, s.previous, s.available)
		if err != nil {
			return stepStopped
		}
		switch idx {
		case 0:
			return stepStopped
		case 1:
			return stepShuffled
		case 2:
			s.selectReq.Clear()
			s.jumpToSelected(p)
			return stepNext
		case 3:
			s.skip.Clear()
			s.publish(domain.NewTrackEvent(domain.TopicAudioTrackSkipped, p.Name, track, i))
			return stepNext
		case 4:
			s.previous.Clear()
			s.index.Add(-2)
			return stepNext
		case 5:
			s.available.Clear()
		}

		if s.presence.IsTrackDownloaded(track.ID) {
			return stepReady
		}
		if !first && !s.downloads.IsDownloading() {
			s.skipUndownloaded(p, i, track)
			return stepNext
		}
	}
}

// play loads the track and suspends until it ends or a request interrupts it.
func (s *Sequencer) play(ctx context.Context, p *domain.Playlist, i int, track domain.Track, first *bool) stepResult {
	path := s.paths.TrackPath(track.ID)
	pauseNow := *first && s.cfg.PauseFirstTrack

	if !s.start(p, i, track, path, pauseNow) {
		return stepNext
	}
	*first = false

	natural := false
wait:
	for {
		idx, err := concurrency.WaitAny(ctx, s.cfg.ProgressInterval,
			s.stop, s.skip, s.shuffle, s.previous, s.selectReq, s.finished)
		if err != nil {
			s.unload()
			return stepStopped
		}

		switch idx {
		case concurrency.TimedOut:
			if !s.ended() {
				s.publishProgress(i)
				continue
			}
		case 5:
		default:
			break wait
		}

		s.finished.Clear()
		if s.replay(path) {
			continue
		}
		natural = true
		break
	}

	if s.stop.IsSet() {
		s.unload()
		return stepStopped
	}

	s.mu.Lock()
	if s.looping {
		s.looping = false
		s.publish(domain.NewLoopEvent(false))
	}
	s.mu.Unlock()
	s.unload()
	s.publish(domain.NewTrackEvent(domain.TopicAudioTrackEnd, p.Name, track, i))
	s.logger.Debug("track ended", slog.Int("index", i), slog.Bool("natural", natural))

	if s.shuffle.IsSet() {
		return stepShuffled
	}
	if s.previous.Consume() {
		s.index.Add(-2)
	}
	s.skip.Clear()
	if s.selectReq.Consume() {
		s.jumpToSelected(p)
	}
	return stepNext
}

// start loads a track and starts it, or leaves it paused at session start.
// A track that cannot be loaded is logged and reported as not started.
func (s *Sequencer) start(p *domain.Playlist, i int, track domain.Track, path string, pauseNow bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		s.paused = false
		s.publish(domain.NewTrackEvent(domain.TopicAudioTrackResume, p.Name, track, i))
	}

	handle, err := s.engine.Load(path)
	if err != nil {
		s.logger.Warn("track failed to load", slog.String("track", track.Name), slog.Any("error", err))
		return false
	}
	s.handle = handle
	s.track = track
	s.active.Store(int64(handle))
	s.finished.Clear()

	if err := s.applyVolumeLocked(); err != nil {
		s.logger.Warn("failed to set volume", slog.Any("error", err))
	}
	if !pauseNow {
		if err := s.engine.Play(handle); err != nil {
			s.logger.Warn("track failed to play", slog.String("track", track.Name), slog.Any("error", err))
			s.unloadLocked()
			return false
		}
	}

	s.setState(domain.StatePlaying)
	s.publish(domain.NewTrackEvent(domain.TopicAudioTrackStart, p.Name, track, i))
	if pauseNow {
		s.paused = true
		s.publish(domain.NewTrackEvent(domain.TopicAudioTrackPause, p.Name, track, i))
	}
	s.logger.Info("track started", slog.Int("index", i), slog.String("track", track.DisplayName))
	return true
}

// replay restarts a finished track when looping is on.
func (s *Sequencer) replay(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.looping || s.handle == domain.InvalidTrackHandle {
		return false
	}
	if err := s.engine.Play(s.handle); err != nil {
		s.logger.Warn("failed to replay track", slog.String("path", path), slog.Any("error", err))
		return false
	}
	return true
}

// ended reports a natural end the engine did not announce through its callback.
func (s *Sequencer) ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == domain.InvalidTrackHandle || s.paused {
		return false
	}
	status, err := s.engine.Status(s.handle)
	return err == nil && status == domain.StatusStopped
}

func (s *Sequencer) publishProgress(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.handle == domain.InvalidTrackHandle {
		return
	}
	position, err := s.engine.Position(s.handle)
	if err != nil {
		return
	}
	duration, err := s.engine.Duration(s.handle)
	if err != nil {
		return
	}
	s.publish(domain.NewTrackProgressEvent(i, position, duration))
}

func (s *Sequencer) skipUndownloaded(p *domain.Playlist, i int, track domain.Track) {
	s.logger.Info("skipping undownloaded track", slog.Int("index", i), slog.String("track", track.Name))
	s.publish(domain.NewTrackEvent(domain.TopicAudioTrackSkipped, p.Name, track, i))
}

// jumpToSelected positions the index so the next advance lands on the selected track.
func (s *Sequencer) jumpToSelected(p *domain.Playlist) {
	i, ok := s.selected.Take()
	if !ok || i < 0 || i >= len(p.Tracks) {
		s.logger.Warn("ignoring select without a valid index", slog.Int("index", i))
		return
	}
	s.index.Store(int64(i - 1))
}

func (s *Sequencer) teardown(p *domain.Playlist, stopped bool) {
	s.unload()

	s.mu.Lock()
	s.playlist = nil
	s.paused = false
	s.mu.Unlock()
	s.index.Store(-1)
	s.setState(domain.StateFinished)

	if !stopped {
		s.logger.Info("playlist done", slog.String("playlist", p.Name))
	}
	s.publish(domain.NewSequencerEndEvent(p.Name, stopped))
}

func (s *Sequencer) unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
}

func (s *Sequencer) unloadLocked() {
	if s.handle == domain.InvalidTrackHandle {
		return
	}
	if err := s.engine.Unload(s.handle); err != nil {
		s.logger.Warn("failed to unload track", slog.Any("error", err))
	}
	s.handle = domain.InvalidTrackHandle
	s.active.Store(int64(domain.InvalidTrackHandle))
	s.track = domain.Track{}
}

func (s *Sequencer) applyVolumeLocked() error {
	if s.handle == domain.InvalidTrackHandle {
		return nil
	}
	volume := s.volume
	if s.muted {
		volume = 0
	}
	return s.engine.SetVolume(s.handle, volume)
}

func (s *Sequencer) setState(state domain.SequencerState) {
	s.state.Store(int32(state))
}

func (s *Sequencer) publish(event domain.Event) {
	if err := s.bus.Publish(event); err != nil {
		s.logger.Debug("event not published", slog.String("topic", string(event.Topic())), slog.Any("error", err))
	}
}
