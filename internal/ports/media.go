package ports

import (
	"context"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// RemoteEntry is one video of a remote playlist.
type RemoteEntry struct {
	URL   string
	Title string
}

// RemotePlaylist is the flat metadata of a remote playlist.
type RemotePlaylist struct {
	Title        string
	ThumbnailURL string
	Entries      []RemoteEntry
}

// MediaSource talks to the remote video source.
// Calls may run for minutes and must honor ctx.
type MediaSource interface {
	// Extract fetches the playlist metadata without downloading media.
	Extract(ctx context.Context, url string) (*RemotePlaylist, error)

	// FetchAudio downloads the best audio stream of a video into dir and returns the file path.
	FetchAudio(ctx context.Context, url, dir string) (string, error)
}

// Transcoder converts downloaded media into the target audio container.
type Transcoder interface {
	// Transcode converts src into dst using the container and bitrate from params.
	Transcode(ctx context.Context, src, dst string, params domain.DownloadParams) error

	// Length measures a converted file.
	Length(path string) (domain.Seconds, error)
}

// EmbeddedTags are tags found inside a downloaded media file.
type EmbeddedTags struct {
	Title  string
	Artist string
	Album  string
}

// TrackTags are written into a converted file.
type TrackTags struct {
	Title   string
	Artist  string
	Album   string
	Artwork []byte
}

// Tagger reads and writes audio file tags.
type Tagger interface {
	ReadTags(path string) (EmbeddedTags, error)
	WriteTags(path string, tags TrackTags) error
}

// AlbumMatch is the album found for a track by the metadata service.
type AlbumMatch struct {
	Title      string
	Artist     string
	ReleaseID  string
	ArtworkURL string
}

// MetadataLookup queries a music metadata service for album linkage and artwork.
type MetadataLookup interface {
	// LookupAlbum finds the album of a recording. domain.ErrNoMetadata means no match.
	LookupAlbum(ctx context.Context, artist, title string) (AlbumMatch, error)
}

// ImageFetcher downloads an image, resizes it to fit within size pixels and stores it as JPEG.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url, dest string, size int) error
}
