// Package ports define the View interface for front-end abstraction.
// This interface allows the presenter to update a front end without depending on it directly.
package ports

import (
	"time"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// View is the interface for the user-facing layer.
//
// The presenter receives events from the event bus and calls these methods.
// Input travels the other way as ACTION_* events published on the bus.
type View interface {
	// ShowTrack displays the track that started, waits for its download, or ended.
	ShowTrack(state string, index int, track domain.Track)

	// ShowProgress displays the playback position of the active track.
	ShowProgress(index int, position, duration time.Duration)

	// ShowDownload displays a track download transition.
	ShowDownload(playlist string, index int, track domain.Track, done, success bool)

	// ShowPlaylists lists the known playlists and marks the current one.
	ShowPlaylists(names []string, current string)

	// ShowVolume displays the volume and mute state.
	ShowVolume(volume float64, muted bool)

	// ShowMessage displays a free-form status line.
	ShowMessage(msg string)

	// ShowError displays an error line.
	ShowError(msg string)
}
