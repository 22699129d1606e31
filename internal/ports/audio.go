// Package ports define interfaces for dependency inversion.
// These interfaces allow the orchestration core to remain independent of external tools and libraries.
package ports

import (
	"time"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// AudioEngine is the interface for audio playback engines.
// This abstracts the underlying audio library and allows for testing with mocks.
//
// Implementations must be thread-safe as they may be called from multiple goroutines.
type AudioEngine interface {
	// Initialize prepares the output device with the given sample rate.
	Initialize(sampleRate int) error

	// Shutdown releases all audio engine resources.
	Shutdown() error

	// Load opens an audio file and returns a handle to it. The track starts paused.
	Load(filePath string) (domain.TrackHandle, error)

	// Unload stops and releases a previously loaded track.
	Unload(handle domain.TrackHandle) error

	// Play starts or resumes playback of the specified track.
	Play(handle domain.TrackHandle) error

	// Pause pauses playback; the position is preserved.
	Pause(handle domain.TrackHandle) error

	// Status returns the current playback status of the specified track.
	// A track that played to its end reports domain.StatusStopped.
	Status(handle domain.TrackHandle) (domain.PlaybackStatus, error)

	// Position returns the current playback position within the track.
	Position(handle domain.TrackHandle) (time.Duration, error)

	// Duration returns the total duration of the specified track.
	Duration(handle domain.TrackHandle) (time.Duration, error)

	// Seek sets the playback position, which must be within [0, Duration].
	Seek(handle domain.TrackHandle, position time.Duration) error

	// SetVolume sets the playback volume from 0.0 (silent) to 1.0 (full volume).
	SetVolume(handle domain.TrackHandle, volume float64) error

	// OnFinished registers the callback invoked, from any goroutine, when a
	// track plays to its natural end. A later call replaces the callback.
	OnFinished(fn func(handle domain.TrackHandle))
}
