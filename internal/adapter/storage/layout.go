// Package storage implements persistence on an afero filesystem: the output folder layout,
// file presence checks, playlist snapshots and the ID table.
package storage

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// Layout maps IDs and names to paths below the output folder.
//
//	<root>/playlists/<name>.json
//	<root>/tracks/<id>.<format>
//	<root>/albums/<id>.jpg
//	<root>/thumbnails/<id>.jpg
//	<root>/cache/
//	<root>/tmp/
//	<root>/iddata.json
type Layout struct {
	Root   string
	Format string
}

// NewLayout creates a layout for converted files of the given container format.
func NewLayout(root, format string) Layout {
	if format == "" {
		format = "mp3"
	}
	return Layout{Root: root, Format: format}
}

// PlaylistsDir holds one snapshot per playlist.
func (l Layout) PlaylistsDir() string { return filepath.Join(l.Root, "playlists") }

// TracksDir holds converted audio files.
func (l Layout) TracksDir() string { return filepath.Join(l.Root, "tracks") }

// AlbumsDir holds album artwork.
func (l Layout) AlbumsDir() string { return filepath.Join(l.Root, "albums") }

// ThumbnailsDir holds playlist thumbnails.
func (l Layout) ThumbnailsDir() string { return filepath.Join(l.Root, "thumbnails") }

// CacheDir holds lookup caches.
func (l Layout) CacheDir() string { return filepath.Join(l.Root, "cache") }

// TempDir holds raw downloads before conversion.
func (l Layout) TempDir() string { return filepath.Join(l.Root, "tmp") }

// IDTablePath is the persisted ID table.
func (l Layout) IDTablePath() string { return filepath.Join(l.Root, "iddata.json") }

// PlaylistPath returns the snapshot path of a playlist.
func (l Layout) PlaylistPath(name string) string {
	return filepath.Join(l.PlaylistsDir(), name+".json")
}

// TrackPath returns the converted audio file of a track.
func (l Layout) TrackPath(id domain.ID) string {
	return filepath.Join(l.TracksDir(), id.String()+"."+l.Format)
}

// AlbumArtPath returns the artwork file of an album.
func (l Layout) AlbumArtPath(id domain.ID) string {
	return filepath.Join(l.AlbumsDir(), id.String()+".jpg")
}

// ThumbnailPath returns the thumbnail file of a playlist.
func (l Layout) ThumbnailPath(id domain.ID) string {
	return filepath.Join(l.ThumbnailsDir(), id.String()+".jpg")
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure(fs afero.Fs) error {
	for _, dir := range []string{
		l.PlaylistsDir(), l.TracksDir(), l.AlbumsDir(), l.ThumbnailsDir(), l.CacheDir(), l.TempDir(),
	} {
		if err := fs.MkdirAll(dir, os.ModePerm); err != nil {
			return domain.NewRepositoryError("Ensure", "layout", "cannot create "+dir, err)
		}
	}
	return nil
}
