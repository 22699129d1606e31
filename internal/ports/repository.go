// Package ports define repository interfaces for data persistence abstraction.
// These interfaces enable the repository pattern and allow swapping persistence mechanisms.
package ports

import (
	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// PlaylistRepository persists playlist snapshots, one per playlist.
//
// Thread-safety: Implementations must be thread-safe.
type PlaylistRepository interface {
	// Save writes the snapshot, replacing an existing one with the same name.
	Save(playlist *domain.Playlist) error

	// Load reads a snapshot by playlist name.
	// Missing snapshots return domain.ErrPlaylistNotFound.
	Load(name string) (*domain.Playlist, error)

	// LoadAll reads every snapshot found. Unreadable snapshots are skipped and logged.
	LoadAll() ([]*domain.Playlist, error)

	// Delete removes a snapshot. Missing snapshots are a no-op.
	Delete(name string) error

	// Exists reports whether a snapshot is stored under the name.
	Exists(name string) bool
}

// IDAllocator hands out stable numeric IDs for names.
//
// Thread-safety: Implementations must be thread-safe.
type IDAllocator interface {
	// IDFor returns the ID for name, allocating and persisting it on first use.
	// The same name always yields the same ID.
	IDFor(name string, kind domain.IDKind) (domain.ID, error)

	// AlreadyMaterialized reports whether the ID has been handed out before.
	AlreadyMaterialized(id domain.ID) bool
}

// FilePresence answers whether the files behind IDs exist.
// Downloaded state is always derived from here and never stored on a Track.
type FilePresence interface {
	IsTrackDownloaded(id domain.ID) bool
	IsAlbumArtDownloaded(id domain.ID) bool
	IsThumbnailDownloaded(id domain.ID) bool

	// DownloadedMapFor returns the presence of every track of the playlist.
	DownloadedMapFor(playlist *domain.Playlist) map[domain.ID]bool
}
