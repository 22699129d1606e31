package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// pipeline downloads, converts, measures, links and tags one track. The converted file is
// written next to its final path and renamed last, so presence never sees a partial file.
// The returned track carries the fields the worker may change: length, album and display name.
func (w *Worker) pipeline(ctx context.Context, p *domain.Playlist, track domain.Track, params domain.DownloadParams) (domain.Track, error) {
	if err := w.deps.Fs.MkdirAll(w.deps.Paths.TempDir(), os.ModePerm); err != nil {
		return track, err
	}
	raw, err := w.deps.Source.FetchAudio(ctx, track.SourceURL, w.deps.Paths.TempDir())
	if err != nil {
		return track, fmt.Errorf("fetch audio: %w", err)
	}
	defer w.remove(raw)

	embedded := ports.EmbeddedTags{}
	if w.deps.Tagger != nil {
		if embedded, err = w.deps.Tagger.ReadTags(raw); err != nil {
			w.logger.Debug("no embedded tags", slog.String("track", track.Name), slog.Any("error", err))
		}
	}
	// tagged music uploads carry the bare song title next to the artist
	if embedded.Title != "" && embedded.Artist != "" {
		track.DisplayName = embedded.Title
	}

	final := w.deps.Paths.TrackPath(track.ID)
	part := final + ".part"
	if err := w.deps.Transcoder.Transcode(ctx, raw, part, params); err != nil {
		w.remove(part)
		return track, fmt.Errorf("transcode: %w", err)
	}
	length, err := w.deps.Transcoder.Length(part)
	if err != nil {
		w.remove(part)
		return track, fmt.Errorf("measure length: %w", err)
	}
	track.Length = length

	if params.UseMetadataLookup && w.deps.Lookup != nil {
		track = w.linkAlbum(ctx, p, track, embedded)
	}

	if w.deps.Tagger != nil {
		if err := w.deps.Tagger.WriteTags(part, w.tagsFor(p, track, embedded)); err != nil {
			w.logger.Warn("writing tags failed", slog.String("track", track.Name), slog.Any("error", err))
		}
	}

	if err := w.deps.Fs.Rename(part, final); err != nil {
		w.remove(part)
		return track, fmt.Errorf("store track: %w", err)
	}
	return track, nil
}

// linkAlbum attaches the track to an album. Each album name is looked up and its artwork
// fetched at most once per playlist; the Albums cache remembers both.
func (w *Worker) linkAlbum(ctx context.Context, p *domain.Playlist, track domain.Track, embedded ports.EmbeddedTags) domain.Track {
	if embedded.Album != "" {
		if album, ok := p.Albums[domain.SanitizeName(embedded.Album)]; ok {
			track.Album = mo.Some(album.Link())
			return track
		}
	}

	title := embedded.Title
	if title == "" {
		title = track.DisplayName
	}
	match, err := w.deps.Lookup.LookupAlbum(ctx, embedded.Artist, title)
	if err != nil {
		if !errors.Is(err, domain.ErrNoMetadata) {
			w.logger.Warn("metadata lookup failed", slog.String("track", track.Name), slog.Any("error", err))
		}
		return track
	}
	display := lo.CoalesceOrEmpty(embedded.Album, match.Title)
	if display == "" {
		return track
	}
	name := domain.SanitizeName(display)
	album, ok := p.Albums[name]
	if !ok {
		id, err := w.ids.IDFor(ctx, name, domain.KindAlbum)
		if err != nil {
			w.logger.Warn("album id allocation failed", slog.String("album", name), slog.Any("error", err))
			return track
		}
		album = domain.Album{
			Name:        name,
			DisplayName: display,
			Artist:      lo.CoalesceOrEmpty(match.Artist, embedded.Artist),
			ID:          id,
			ReleaseID:   match.ReleaseID,
			ArtworkURL:  match.ArtworkURL,
		}
	}

	if !album.ArtworkDownloaded && album.ArtworkURL != "" {
		path := w.deps.Paths.AlbumArtPath(album.ID)
		if !w.deps.Presence.IsAlbumArtDownloaded(album.ID) {
			if err := w.deps.Images.FetchImage(ctx, album.ArtworkURL, path, artworkSize); err != nil {
				w.logger.Warn("artwork download failed", slog.String("album", name), slog.Any("error", err))
			}
		}
		album.ArtworkDownloaded = w.deps.Presence.IsAlbumArtDownloaded(album.ID)
	}
	p.Albums[name] = album
	track.Album = mo.Some(album.Link())
	return track
}

// tagsFor collects the tags written into the converted file.
func (w *Worker) tagsFor(p *domain.Playlist, track domain.Track, embedded ports.EmbeddedTags) ports.TrackTags {
	tags := ports.TrackTags{Title: track.DisplayName, Artist: embedded.Artist, Album: embedded.Album}
	link, ok := track.Album.Get()
	if !ok {
		return tags
	}
	tags.Album = link.DisplayName
	if link.Artist != "" {
		tags.Artist = link.Artist
	}
	if album, ok := p.Albums[link.Name]; ok && album.ArtworkDownloaded {
		if art, err := afero.ReadFile(w.deps.Fs, w.deps.Paths.AlbumArtPath(album.ID)); err == nil {
			tags.Artwork = art
		}
	}
	return tags
}

func (w *Worker) remove(path string) {
	if err := w.deps.Fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Debug("cleanup failed", slog.String("path", path), slog.Any("error", err))
	}
}
