// Package beepengine implements the AudioEngine interface on faiface/beep and its speaker.
package beepengine

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// resampleQuality is the beep resampler quality used when a file's rate differs from the device.
const resampleQuality = 4

// Output is the sink the engine mixes into. The speaker package is the production output.
type Output interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
	Clear()
	Close()
}

type speakerOutput struct{}

func (speakerOutput) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}
func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Lock()                   { speaker.Lock() }
func (speakerOutput) Unlock()                 { speaker.Unlock() }
func (speakerOutput) Clear()                  { speaker.Clear() }
func (speakerOutput) Close()                  { speaker.Close() }

// SpeakerOutput returns the system audio device.
func SpeakerOutput() Output { return speakerOutput{} }

// Engine plays decoded files through an Output.
//
// Thread-safety: mu guards the track table. Streamer state is only touched with the output
// locked. The finished callback runs on its own goroutine, never under either lock.
type Engine struct {
	// Dependencies (injected)
	logger *slog.Logger
	fs     afero.Fs
	out    Output

	mu          sync.Mutex
	initialized bool
	rate        beep.SampleRate
	tracks      map[domain.TrackHandle]*track
	nextHandle  domain.TrackHandle
	onFinished  atomic.Pointer[func(domain.TrackHandle)]
}

// track is one loaded file.
type track struct {
	handle   domain.TrackHandle
	path     string
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	status   atomic.Int32
	unloaded atomic.Bool
}

// NewEngine creates an engine reading files from fs and mixing into out.
func NewEngine(logger *slog.Logger, fs afero.Fs, out Output) *Engine {
	return &Engine{
		logger:     logger,
		fs:         fs,
		out:        out,
		tracks:     make(map[domain.TrackHandle]*track),
		nextHandle: 1,
	}
}

// Initialize opens the output at sampleRate.
func (e *Engine) Initialize(sampleRate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return domain.ErrAlreadyInitialized
	}
	rate := beep.SampleRate(sampleRate)
	if err := e.out.Init(rate, rate.N(time.Second/10)); err != nil {
		return domain.NewAudioEngineError("initialize", "", 0, "cannot open audio output", err)
	}
	e.rate = rate
	e.initialized = true
	e.logger.Info("audio output initialized", slog.Int("sample_rate", sampleRate))
	return nil
}

// Shutdown unloads every track and closes the output.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrNotInitialized
	}
	for handle, t := range e.tracks {
		e.release(t)
		delete(e.tracks, handle)
	}
	e.out.Clear()
	e.out.Close()
	e.initialized = false
	return nil
}

// Load decodes filePath and queues it on the output, paused.
func (e *Engine) Load(filePath string) (domain.TrackHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.InvalidTrackHandle, domain.ErrNotInitialized
	}
	if filePath == "" {
		return domain.InvalidTrackHandle, domain.ErrFileNotFound
	}

	file, err := e.fs.Open(filePath)
	if err != nil {
		return domain.InvalidTrackHandle, domain.NewAudioEngineError("load", filePath, 0, "cannot open file", err)
	}
	streamer, format, err := Decode(file, filePath)
	if err != nil {
		_ = file.Close()
		return domain.InvalidTrackHandle, domain.NewAudioEngineError("load", filePath, 0, "cannot decode file", err)
	}

	t := &track{
		handle:   e.nextHandle,
		path:     filePath,
		streamer: streamer,
		format:   format,
		ctrl:     &beep.Ctrl{Streamer: streamer, Paused: true},
	}
	var source beep.Streamer = t.ctrl
	if format.SampleRate != e.rate {
		source = beep.Resample(resampleQuality, format.SampleRate, e.rate, t.ctrl)
	}
	t.volume = &effects.Volume{Streamer: source, Base: 2}
	t.status.Store(int32(domain.StatusPaused))

	e.tracks[t.handle] = t
	e.nextHandle++
	e.out.Play(e.sequence(t))
	return t.handle, nil
}

// sequence plays t and reports its natural end.
func (e *Engine) sequence(t *track) beep.Streamer {
	return beep.Seq(t.volume, beep.Callback(func() {
		if t.unloaded.Load() {
			return
		}
		t.status.Store(int32(domain.StatusStopped))
		if fn := e.onFinished.Load(); fn != nil {
			go (*fn)(t.handle)
		}
	}))
}

// Unload removes the track from the output and closes its file.
func (e *Engine) Unload(handle domain.TrackHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tracks[handle]
	if !ok {
		return domain.ErrInvalidTrackHandle
	}
	e.release(t)
	delete(e.tracks, handle)
	return nil
}

func (e *Engine) release(t *track) {
	t.unloaded.Store(true)
	e.out.Lock()
	t.ctrl.Streamer = nil
	e.out.Unlock()
	if err := t.streamer.Close(); err != nil {
		e.logger.Debug("closing track failed", slog.String("path", t.path), slog.Any("error", err))
	}
	t.status.Store(int32(domain.StatusStopped))
}

// Play starts or resumes a track. A track that played to its end starts over.
func (e *Engine) Play(handle domain.TrackHandle) error {
	t, err := e.track(handle)
	if err != nil {
		return err
	}

	if domain.PlaybackStatus(t.status.Load()) == domain.StatusStopped {
		e.out.Lock()
		err := t.streamer.Seek(0)
		t.ctrl.Paused = false
		e.out.Unlock()
		if err != nil {
			return domain.NewAudioEngineError("play", t.path, 0, "cannot rewind", err)
		}
		t.status.Store(int32(domain.StatusPlaying))
		e.out.Play(e.sequence(t))
		return nil
	}

	e.out.Lock()
	t.ctrl.Paused = false
	e.out.Unlock()
	t.status.Store(int32(domain.StatusPlaying))
	return nil
}

// Pause pauses a track; its position is kept.
func (e *Engine) Pause(handle domain.TrackHandle) error {
	t, err := e.track(handle)
	if err != nil {
		return err
	}
	if domain.PlaybackStatus(t.status.Load()) != domain.StatusPlaying {
		return nil
	}
	e.out.Lock()
	t.ctrl.Paused = true
	e.out.Unlock()
	t.status.Store(int32(domain.StatusPaused))
	return nil
}

// Status returns the playback status of a track.
func (e *Engine) Status(handle domain.TrackHandle) (domain.PlaybackStatus, error) {
	t, err := e.track(handle)
	if err != nil {
		return domain.StatusStopped, err
	}
	return domain.PlaybackStatus(t.status.Load()), nil
}

// Position returns the playback position of a track.
func (e *Engine) Position(handle domain.TrackHandle) (time.Duration, error) {
	t, err := e.track(handle)
	if err != nil {
		return 0, err
	}
	e.out.Lock()
	defer e.out.Unlock()
	return t.format.SampleRate.D(t.streamer.Position()), nil
}

// Duration returns the length of a track.
func (e *Engine) Duration(handle domain.TrackHandle) (time.Duration, error) {
	t, err := e.track(handle)
	if err != nil {
		return 0, err
	}
	e.out.Lock()
	defer e.out.Unlock()
	return t.format.SampleRate.D(t.streamer.Len()), nil
}

// Seek moves a track to position.
func (e *Engine) Seek(handle domain.TrackHandle, position time.Duration) error {
	t, err := e.track(handle)
	if err != nil {
		return err
	}

	e.out.Lock()
	defer e.out.Unlock()
	sample := t.format.SampleRate.N(position)
	if position < 0 || sample > t.streamer.Len() {
		return domain.ErrInvalidPosition
	}
	if err := t.streamer.Seek(sample); err != nil {
		return domain.NewAudioEngineError("seek", t.path, 0, "seek failed", err)
	}
	return nil
}

// SetVolume sets a track's gain. 1.0 is unity gain and 0.0 is silence.
func (e *Engine) SetVolume(handle domain.TrackHandle, volume float64) error {
	if volume < 0 || volume > 1 {
		return domain.ErrInvalidVolume
	}
	t, err := e.track(handle)
	if err != nil {
		return err
	}

	e.out.Lock()
	defer e.out.Unlock()
	t.volume.Silent = volume == 0
	if volume > 0 {
		t.volume.Volume = math.Log2(volume)
	}
	return nil
}

// OnFinished registers the callback for tracks reaching their natural end.
func (e *Engine) OnFinished(fn func(handle domain.TrackHandle)) {
	e.onFinished.Store(&fn)
}

func (e *Engine) track(handle domain.TrackHandle) (*track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, domain.ErrNotInitialized
	}
	t, ok := e.tracks[handle]
	if !ok {
		return nil, domain.ErrInvalidTrackHandle
	}
	return t, nil
}

// Decode picks a decoder from the file extension. A trailing ".part" is ignored so files
// can be measured before they are renamed into place.
func Decode(rc io.ReadCloser, path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".part")))
	switch ext {
	case ".mp3":
		return mp3.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	case ".flac":
		return flac.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
}

// Probe returns a length probe reading files from fs.
func Probe(fs afero.Fs) func(path string) (domain.Seconds, error) {
	return func(path string) (domain.Seconds, error) {
		file, err := fs.Open(path)
		if err != nil {
			return 0, err
		}
		streamer, format, err := Decode(file, path)
		if err != nil {
			_ = file.Close()
			return 0, err
		}
		defer streamer.Close()
		return domain.Seconds(format.SampleRate.D(streamer.Len()).Seconds()), nil
	}
}

var _ ports.AudioEngine = (*Engine)(nil)
