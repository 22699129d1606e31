// Package domain contains core business models and logic with no infrastructure dependencies.
// This package defines the fundamental entities of the TubeTune playlist player.
package domain

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
	"github.com/samber/mo"
)

// ID is a stable numeric identifier derived from a name.
// The same name always yields the same ID, across process restarts.
type ID uint64

// String renders the ID the way it appears in file names.
func (id ID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// IDKind selects the namespace an ID is allocated in.
type IDKind int

const (
	// KindTrack identifies audio tracks.
	KindTrack IDKind = iota

	// KindAlbum identifies albums (and their artwork).
	KindAlbum

	// KindThumbnail identifies playlist thumbnails.
	KindThumbnail
)

// String returns a human-readable representation of the kind.
func (k IDKind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindAlbum:
		return "album"
	case KindThumbnail:
		return "thumbnail"
	default:
		return "unknown"
	}
}

// Seconds is a track length in seconds.
type Seconds float64

// AlbumLink ties a track to an entry of its playlist's album cache.
type AlbumLink struct {
	// Name is the sanitized album name, the key into Playlist.Albums
	Name string

	// DisplayName is the album title as reported by the metadata service
	DisplayName string

	// Artist is the performing artist name
	Artist string

	// ID is the album's stable ID, also used for the artwork file
	ID ID
}

// Album is the cached metadata for one album of a playlist.
type Album struct {
	Name              string
	DisplayName       string
	Artist            string
	ID                ID
	ReleaseID         string
	ArtworkURL        string
	ArtworkDownloaded bool
}

// Link returns the AlbumLink pointing at this album.
func (a Album) Link() AlbumLink {
	return AlbumLink{Name: a.Name, DisplayName: a.DisplayName, Artist: a.Artist, ID: a.ID}
}

// Track represents a single entry of a playlist.
// Whether a track is downloaded is derived from the file presence scan and is not stored here.
type Track struct {
	// ID is derived deterministically from Name
	ID ID

	// SourceURL is the remote locator of the video
	SourceURL string

	// Name is the sanitized, filesystem-safe title
	Name string

	// DisplayName is the human-readable title
	DisplayName string

	// Index is the ordinal position assigned at initialization; it never changes
	Index int

	// Length is the converted audio length (0 until downloaded)
	Length Seconds

	// Album is the optional album linkage set after a metadata lookup
	Album mo.Option[AlbumLink]
}

// Playlist represents an ordered collection of tracks fetched from a remote source.
// The sanitized Name is the playlist's identity.
type Playlist struct {
	Name                string
	DisplayName         string
	SourceURL           string
	Length              int
	Downloaded          bool
	ThumbnailURL        string
	ThumbnailID         ID
	ThumbnailDownloaded bool

	// Albums caches metadata per sanitized album name to avoid redundant lookups
	Albums map[string]Album

	// Tracks is the playback order
	Tracks []Track
}

// NewPlaylistStub creates an uninitialized playlist that only knows its source.
func NewPlaylistStub(sourceURL string) *Playlist {
	return &Playlist{
		Name:        "Untitled",
		DisplayName: "Untitled",
		SourceURL:   sourceURL,
		Albums:      make(map[string]Album),
	}
}

// SetTracks replaces the track list and keeps Length in sync.
func (p *Playlist) SetTracks(tracks []Track) {
	p.Tracks = tracks
	p.Length = len(tracks)
}

// Validate checks the playlist invariants.
func (p *Playlist) Validate() error {
	if p.Name == "" {
		return NewValidationError("name", p.Name, "playlist name is empty")
	}
	if len(p.Tracks) != p.Length {
		return NewValidationError("length", p.Length, fmt.Sprintf("playlist has %d tracks", len(p.Tracks)))
	}
	return nil
}

// Clone returns a deep copy that can be handed to another goroutine.
func (p *Playlist) Clone() *Playlist {
	if p == nil {
		return nil
	}
	c := *p
	c.Tracks = append([]Track(nil), p.Tracks...)
	c.Albums = make(map[string]Album, len(p.Albums))
	for k, v := range p.Albums {
		c.Albums[k] = v
	}
	return &c
}

// TrackIndex returns the position of the track with the given ID in the current order.
func (p *Playlist) TrackIndex(id ID) (int, bool) {
	_, idx, ok := lo.FindIndexOf(p.Tracks, func(t Track) bool { return t.ID == id })
	return idx, ok
}

// ReconcileTrack folds the fields the downloader is allowed to change back into the owned track.
// It returns false when no track with that ID exists.
func (p *Playlist) ReconcileTrack(update Track) bool {
	idx, ok := p.TrackIndex(update.ID)
	if !ok {
		return false
	}
	t := &p.Tracks[idx]
	t.Length = update.Length
	t.Album = update.Album
	if update.DisplayName != "" {
		t.DisplayName = update.DisplayName
	}
	return true
}

// MergeAlbums adds albums that are not cached yet and refreshes existing ones.
func (p *Playlist) MergeAlbums(albums map[string]Album) {
	if p.Albums == nil {
		p.Albums = make(map[string]Album, len(albums))
	}
	for name, album := range albums {
		p.Albums[name] = album
	}
}

// Shuffle randomizes the track order in place. Ordinal indices move with their tracks.
func (p *Playlist) Shuffle() {
	mutable.Shuffle(p.Tracks)
}

// TrackIDs returns the IDs in playback order.
func (p *Playlist) TrackIDs() []ID {
	return lo.Map(p.Tracks, func(t Track, _ int) ID { return t.ID })
}

// DownloadParams carries the download parameters from configuration to the worker.
type DownloadParams struct {
	// Format is the target audio container (e.g. "mp3")
	Format string

	// Bitrate is the target bitrate understood by the transcoder (e.g. "192k")
	Bitrate string

	// UseMetadataLookup enables album linkage and artwork lookups
	UseMetadataLookup bool

	// MaxPasses caps full sweeps per Download command; 0 means unbounded
	MaxPasses int

	// RetryCooldown is the pause before the second pass
	RetryCooldown time.Duration

	// RetryExponent multiplies the cooldown for every further pass
	RetryExponent float64

	// RetryCooldownMax caps the cooldown
	RetryCooldownMax time.Duration
}

// PlaybackStatus represents the current playback state of a loaded track.
type PlaybackStatus int

const (
	// StatusStopped indicates playback is stopped
	StatusStopped PlaybackStatus = iota

	// StatusPlaying indicates playback is active
	StatusPlaying

	// StatusPaused indicates playback is paused
	StatusPaused
)

// String returns a human-readable representation of the playback status.
func (s PlaybackStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// TrackHandle represents a handle to an audio track in the audio engine.
type TrackHandle int64

const (
	// InvalidTrackHandle represents an invalid or uninitialized track handle
	InvalidTrackHandle TrackHandle = 0
)

// SequencerState is the state of the playback sequencer.
type SequencerState int

const (
	// StateIdle means no playlist is loaded.
	StateIdle SequencerState = iota

	// StateAdvancingIndex means the sequencer is moving to the next index.
	StateAdvancingIndex

	// StateWaitingForDownload means the sequencer waits for the current track's file.
	StateWaitingForDownload

	// StatePlaying means a track is loaded and active (possibly paused).
	StatePlaying

	// StateFinished means the session has torn down.
	StateFinished
)

// String returns a human-readable representation of the state.
func (s SequencerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvancingIndex:
		return "advancing"
	case StateWaitingForDownload:
		return "waiting_for_download"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
