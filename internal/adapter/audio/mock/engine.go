// Package mock provides a mock implementation of the AudioEngine interface.
// This is used for testing the sequencer without an audio device.
package mock

import (
	"sync"
	"time"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// DefaultDuration is the length of every track loaded by the mock.
const DefaultDuration = 3 * time.Minute

// Engine is a mock implementation of the AudioEngine interface.
// It simulates audio playback in memory without actually playing audio.
//
// Thread-safety: This implementation is thread-safe. The finished callback is
// always invoked without the engine lock held.
type Engine struct {
	mu sync.RWMutex

	initialized bool
	sampleRate  int

	// Track state
	tracks     map[domain.TrackHandle]*mockTrack
	nextHandle domain.TrackHandle
	duration   time.Duration
	loads      []string
	onFinished func(domain.TrackHandle)

	// Behavior configuration (for testing error scenarios)
	failInitialize bool
	failLoad       map[string]bool
	failAllLoads   bool
	failPlay       bool
}

// mockTrack represents a loaded track in the mock engine.
type mockTrack struct {
	filePath string
	duration time.Duration
	position time.Duration
	volume   float64
	status   domain.PlaybackStatus
}

// NewEngine creates a new mock audio engine.
func NewEngine() *Engine {
	return &Engine{
		tracks:     make(map[domain.TrackHandle]*mockTrack),
		nextHandle: 1,
		duration:   DefaultDuration,
		failLoad:   make(map[string]bool),
	}
}

// SetFailInitialize configures the mock to fail initialization (for testing).
func (m *Engine) SetFailInitialize(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInitialize = fail
}

// SetFailLoad configures the mock to fail loading every track (for testing).
func (m *Engine) SetFailLoad(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAllLoads = fail
}

// SetFailLoadPath makes loading one path fail (for testing).
func (m *Engine) SetFailLoadPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoad[path] = true
}

// SetFailPlay configures the mock to fail playback (for testing).
func (m *Engine) SetFailPlay(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay = fail
}

// SetDuration changes the duration of tracks loaded from now on.
func (m *Engine) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// Initialize initializes the mock audio engine.
func (m *Engine) Initialize(sampleRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInitialize {
		return domain.NewAudioEngineError("initialize", "", -1, "mock initialization failed", nil)
	}
	if m.initialized {
		return domain.ErrAlreadyInitialized
	}

	m.initialized = true
	m.sampleRate = sampleRate
	return nil
}

// Shutdown shuts down the mock audio engine.
func (m *Engine) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	m.initialized = false
	m.tracks = make(map[domain.TrackHandle]*mockTrack)
	return nil
}

// IsInitialized returns true if the engine is initialized.
func (m *Engine) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Load loads an audio file and returns a handle. The track starts paused.
func (m *Engine) Load(filePath string) (domain.TrackHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.InvalidTrackHandle, domain.ErrNotInitialized
	}
	if filePath == "" {
		return domain.InvalidTrackHandle, domain.ErrFileNotFound
	}
	if m.failAllLoads || m.failLoad[filePath] {
		return domain.InvalidTrackHandle, domain.NewAudioEngineError("load", filePath, -1, "mock load failed", nil)
	}

	handle := m.nextHandle
	m.nextHandle++
	m.tracks[handle] = &mockTrack{
		filePath: filePath,
		duration: m.duration,
		volume:   1.0,
		status:   domain.StatusPaused,
	}
	m.loads = append(m.loads, filePath)
	return handle, nil
}

// Unload unloads a previously loaded track.
func (m *Engine) Unload(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.trackLocked(handle); err != nil {
		return err
	}
	delete(m.tracks, handle)
	return nil
}

// Play starts or resumes playback. A finished track restarts from the beginning.
func (m *Engine) Play(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return err
	}
	if m.failPlay {
		return domain.NewAudioEngineError("play", track.filePath, -1, "mock play failed", nil)
	}

	if track.status == domain.StatusStopped {
		track.position = 0
	}
	track.status = domain.StatusPlaying
	return nil
}

// Pause pauses playback.
func (m *Engine) Pause(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return err
	}
	if track.status == domain.StatusPlaying {
		track.status = domain.StatusPaused
	}
	return nil
}

// Status returns the playback status.
func (m *Engine) Status(handle domain.TrackHandle) (domain.PlaybackStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return domain.StatusStopped, err
	}
	return track.status, nil
}

// Position returns the current playback position.
func (m *Engine) Position(handle domain.TrackHandle) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return 0, err
	}
	return track.position, nil
}

// Duration returns the total track duration.
func (m *Engine) Duration(handle domain.TrackHandle) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return 0, err
	}
	return track.duration, nil
}

// Seek sets the playback position.
func (m *Engine) Seek(handle domain.TrackHandle, position time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return err
	}
	if position < 0 || position > track.duration {
		return domain.ErrInvalidPosition
	}
	track.position = position
	return nil
}

// SetVolume sets the playback volume.
func (m *Engine) SetVolume(handle domain.TrackHandle, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return err
	}
	if volume < 0.0 || volume > 1.0 {
		return domain.ErrInvalidVolume
	}
	track.volume = volume
	return nil
}

// GetVolume returns the volume of a loaded track.
func (m *Engine) GetVolume(handle domain.TrackHandle) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	track, err := m.trackLocked(handle)
	if err != nil {
		return 0, err
	}
	return track.volume, nil
}

// OnFinished registers the natural-end callback.
func (m *Engine) OnFinished(fn func(handle domain.TrackHandle)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinished = fn
}

// GetLoadedTracks returns the number of currently loaded tracks (for testing).
func (m *Engine) GetLoadedTracks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracks)
}

// Loads returns every path passed to a successful Load, oldest first (for testing).
func (m *Engine) Loads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.loads...)
}

// Current returns the most recently loaded track that is still loaded (for testing).
func (m *Engine) Current() (domain.TrackHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest domain.TrackHandle
	for h := range m.tracks {
		if h > latest {
			latest = h
		}
	}
	return latest, latest != domain.InvalidTrackHandle
}

// SimulateProgress advances a playing track by delta (for testing).
// Reaching the end stops the track and fires the finished callback.
func (m *Engine) SimulateProgress(handle domain.TrackHandle, delta time.Duration) error {
	m.mu.Lock()
	track, err := m.trackLocked(handle)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if track.status != domain.StatusPlaying {
		m.mu.Unlock()
		return nil
	}

	track.position += delta
	finished := track.position >= track.duration
	if finished {
		track.position = track.duration
		track.status = domain.StatusStopped
	}
	callback := m.onFinished
	m.mu.Unlock()

	if finished && callback != nil {
		callback(handle)
	}
	return nil
}

// Finish plays a track to its end regardless of its status (for testing).
func (m *Engine) Finish(handle domain.TrackHandle) error {
	m.mu.Lock()
	track, err := m.trackLocked(handle)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	track.position = track.duration
	track.status = domain.StatusStopped
	callback := m.onFinished
	m.mu.Unlock()

	if callback != nil {
		callback(handle)
	}
	return nil
}

func (m *Engine) trackLocked(handle domain.TrackHandle) (*mockTrack, error) {
	if !m.initialized {
		return nil, domain.ErrNotInitialized
	}
	track, ok := m.tracks[handle]
	if !ok {
		return nil, domain.ErrInvalidTrackHandle
	}
	return track, nil
}

var _ ports.AudioEngine = (*Engine)(nil)
