package domain

import "time"

// Activity is the "now playing" status the player shares with an external status service.
type Activity struct {
	// Details is the track display name, or IdleDetails when nothing plays
	Details string

	// State names the artist when the album lookup found one
	State string

	Album    string
	Playlist string
	Paused   bool

	// Start and End bound the track on the wall clock; both are zero while paused
	Start time.Time
	End   time.Time
}

// IdleDetails is shown while no track is loaded.
const IdleDetails = "browsing the library"

// IdleActivity is the activity of a player with no track loaded.
func IdleActivity() Activity {
	return Activity{Details: IdleDetails}
}

// Idle reports whether the activity describes no track.
func (a Activity) Idle() bool {
	return a.Playlist == ""
}

// TrackActivity describes track playing in playlist from start on.
func TrackActivity(playlist string, track Track, start time.Time) Activity {
	a := Activity{
		Details:  track.DisplayName,
		State:    "(unknown artist)",
		Playlist: playlist,
		Start:    start,
	}
	if link, ok := track.Album.Get(); ok {
		if link.Artist != "" {
			a.State = link.Artist
		}
		a.Album = link.DisplayName
	}
	if track.Length > 0 {
		a.End = start.Add(time.Duration(float64(track.Length) * float64(time.Second)))
	}
	return a
}
