package storage

import (
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// Presence derives downloaded state from the files in the layout.
// It keeps no state of its own, so it is safe for concurrent use.
type Presence struct {
	fs     afero.Fs
	layout Layout
}

// NewPresence creates a presence checker over fs.
func NewPresence(fs afero.Fs, layout Layout) *Presence {
	return &Presence{fs: fs, layout: layout}
}

// IsTrackDownloaded reports whether the converted file of a track exists.
func (p *Presence) IsTrackDownloaded(id domain.ID) bool {
	return p.nonEmpty(p.layout.TrackPath(id))
}

// IsAlbumArtDownloaded reports whether the artwork of an album exists.
func (p *Presence) IsAlbumArtDownloaded(id domain.ID) bool {
	return p.nonEmpty(p.layout.AlbumArtPath(id))
}

// IsThumbnailDownloaded reports whether the thumbnail of a playlist exists.
func (p *Presence) IsThumbnailDownloaded(id domain.ID) bool {
	return p.nonEmpty(p.layout.ThumbnailPath(id))
}

// DownloadedMapFor returns the presence of every track of the playlist.
func (p *Presence) DownloadedMapFor(playlist *domain.Playlist) map[domain.ID]bool {
	return lo.SliceToMap(playlist.Tracks, func(t domain.Track) (domain.ID, bool) {
		return t.ID, p.IsTrackDownloaded(t.ID)
	})
}

// nonEmpty treats zero-byte leftovers of an interrupted conversion as missing.
func (p *Presence) nonEmpty(path string) bool {
	info, err := p.fs.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Verify interface implementation
var _ ports.FilePresence = (*Presence)(nil)
