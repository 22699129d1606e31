package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// playlistRecord is the on-disk form of a playlist. The keys are shared with snapshots written
// by earlier releases and must not change.
type playlistRecord struct {
	Name                string                 `json:"name"`
	DisplayName         string                 `json:"displayName"`
	PlaylistURL         string                 `json:"playlistURL"`
	Length              int                    `json:"length"`
	Downloaded          bool                   `json:"downloaded"`
	ThumbnailURL        string                 `json:"thumbnailURL"`
	ThumbnailID         domain.ID              `json:"thumbnailID,omitempty"`
	ThumbnailDownloaded bool                   `json:"thumbnailDownloaded"`
	Albums              map[string]albumRecord `json:"albums"`
	Tracks              []trackRecord          `json:"tracks"`
}

type trackRecord struct {
	VideoURL         string         `json:"video url"`
	Name             string         `json:"name"`
	DisplayName      string         `json:"display name"`
	ID               domain.ID      `json:"pid"`
	Index            int            `json:"index"`
	Length           domain.Seconds `json:"length"`
	AlbumName        string         `json:"album name,omitempty"`
	AlbumDisplayName string         `json:"album display name,omitempty"`
	ArtistName       string         `json:"artist name,omitempty"`
	AlbumID          domain.ID      `json:"album id,omitempty"`
}

type albumRecord struct {
	Name              string    `json:"name"`
	DisplayName       string    `json:"display name"`
	Artist            string    `json:"artist name"`
	ID                domain.ID `json:"id"`
	ReleaseID         string    `json:"release id,omitempty"`
	ArtworkURL        string    `json:"artwork url,omitempty"`
	ArtworkDownloaded bool      `json:"artwork downloaded"`
}

// EncodeSnapshot renders a playlist in snapshot form.
func EncodeSnapshot(p *domain.Playlist) ([]byte, error) {
	rec := playlistRecord{
		Name:                p.Name,
		DisplayName:         p.DisplayName,
		PlaylistURL:         p.SourceURL,
		Length:              p.Length,
		Downloaded:          p.Downloaded,
		ThumbnailURL:        p.ThumbnailURL,
		ThumbnailID:         p.ThumbnailID,
		ThumbnailDownloaded: p.ThumbnailDownloaded,
		Albums: lo.MapValues(p.Albums, func(a domain.Album, _ string) albumRecord {
			return albumRecord(a)
		}),
		Tracks: lo.Map(p.Tracks, func(t domain.Track, _ int) trackRecord {
			r := trackRecord{
				VideoURL:    t.SourceURL,
				Name:        t.Name,
				DisplayName: t.DisplayName,
				ID:          t.ID,
				Index:       t.Index,
				Length:      t.Length,
			}
			if link, ok := t.Album.Get(); ok {
				r.AlbumName = link.Name
				r.AlbumDisplayName = link.DisplayName
				r.ArtistName = link.Artist
				r.AlbumID = link.ID
			}
			return r
		}),
	}
	return json.MarshalIndent(rec, "", "  ")
}

// DecodeSnapshot parses snapshot data and validates the result.
func DecodeSnapshot(data []byte) (*domain.Playlist, error) {
	var rec playlistRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	p := &domain.Playlist{
		Name:                rec.Name,
		DisplayName:         rec.DisplayName,
		SourceURL:           rec.PlaylistURL,
		Downloaded:          rec.Downloaded,
		ThumbnailURL:        rec.ThumbnailURL,
		ThumbnailID:         rec.ThumbnailID,
		ThumbnailDownloaded: rec.ThumbnailDownloaded,
		Albums: lo.MapValues(rec.Albums, func(a albumRecord, _ string) domain.Album {
			return domain.Album(a)
		}),
		Length: rec.Length,
		Tracks: lo.Map(rec.Tracks, func(r trackRecord, _ int) domain.Track {
			t := domain.Track{
				ID:          r.ID,
				SourceURL:   r.VideoURL,
				Name:        r.Name,
				DisplayName: r.DisplayName,
				Index:       r.Index,
				Length:      r.Length,
				Album:       mo.None[domain.AlbumLink](),
			}
			if r.AlbumName != "" {
				t.Album = mo.Some(domain.AlbumLink{
					Name:        r.AlbumName,
					DisplayName: r.AlbumDisplayName,
					Artist:      r.ArtistName,
					ID:          r.AlbumID,
				})
			}
			return t
		}),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SnapshotRepository stores one JSON snapshot per playlist in the playlists directory.
//
// Thread-safe: All operations protected by sync.RWMutex.
type SnapshotRepository struct {
	fs     afero.Fs
	layout Layout
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(fs afero.Fs, layout Layout, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{fs: fs, layout: layout, logger: logger}
}

// Save writes the snapshot through a temporary file, replacing the previous one.
func (r *SnapshotRepository) Save(playlist *domain.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return domain.NewRepositoryError("Save", "playlist", "invalid playlist", err)
	}
	data, err := EncodeSnapshot(playlist)
	if err != nil {
		return domain.NewRepositoryError("Save", "playlist", "failed to marshal playlist", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.MkdirAll(r.layout.PlaylistsDir(), os.ModePerm); err != nil {
		return domain.NewRepositoryError("Save", "playlist", "failed to create playlists directory", err)
	}
	path := r.layout.PlaylistPath(playlist.Name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return domain.NewRepositoryError("Save", "playlist", "failed to write snapshot", err)
	}
	if err := r.fs.Rename(tmp, path); err != nil {
		return domain.NewRepositoryError("Save", "playlist", "failed to replace snapshot", err)
	}
	return nil
}

// Load reads a snapshot by playlist name.
func (r *SnapshotRepository) Load(name string) (*domain.Playlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(r.layout.PlaylistPath(name))
}

func (r *SnapshotRepository) load(path string) (*domain.Playlist, error) {
	data, err := afero.ReadFile(r.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrPlaylistNotFound
	}
	if err != nil {
		return nil, domain.NewRepositoryError("Load", "playlist", "failed to read snapshot", err)
	}
	p, err := DecodeSnapshot(data)
	if err != nil {
		return nil, domain.NewRepositoryError("Load", "playlist", "failed to unmarshal playlist", err)
	}
	return p, nil
}

// LoadAll reads every snapshot in the playlists directory, sorted by name.
// Corrupted snapshots are skipped.
func (r *SnapshotRepository) LoadAll() ([]*domain.Playlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := afero.ReadDir(r.fs, r.layout.PlaylistsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return []*domain.Playlist{}, nil
	}
	if err != nil {
		return nil, domain.NewRepositoryError("LoadAll", "playlist", "failed to list snapshots", err)
	}

	playlists := make([]*domain.Playlist, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		p, err := r.load(filepath.Join(r.layout.PlaylistsDir(), entry.Name()))
		if err != nil {
			r.logger.Warn("playlist snapshot corrupted", slog.String("file", entry.Name()), slog.Any("error", err))
			continue
		}
		playlists = append(playlists, p)
	}
	sort.Slice(playlists, func(i, j int) bool { return playlists[i].Name < playlists[j].Name })
	return playlists, nil
}

// Delete removes a snapshot. Missing snapshots are a no-op.
func (r *SnapshotRepository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.fs.Remove(r.layout.PlaylistPath(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewRepositoryError("Delete", "playlist", "failed to remove snapshot", err)
	}
	return nil
}

// Exists reports whether a snapshot is stored under the name.
func (r *SnapshotRepository) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ok, err := afero.Exists(r.fs, r.layout.PlaylistPath(name))
	return err == nil && ok
}

// Verify interface implementation
var _ ports.PlaylistRepository = (*SnapshotRepository)(nil)
