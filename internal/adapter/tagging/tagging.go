// Package tagging reads the tags yt-dlp embeds in downloads and writes ID3 tags into
// converted tracks.
package tagging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// Tagger implements ports.Tagger. Reading goes through fs; writing uses id3v2 on the real
// filesystem and only applies to mp3 output.
type Tagger struct {
	logger *slog.Logger
	fs     afero.Fs
	format string
}

// NewTagger creates a tagger for converted files of the given container format.
func NewTagger(logger *slog.Logger, fs afero.Fs, format string) *Tagger {
	return &Tagger{logger: logger, fs: fs, format: strings.ToLower(format)}
}

// ReadTags reads title, artist and album from any format dhowden/tag understands.
func (t *Tagger) ReadTags(path string) (ports.EmbeddedTags, error) {
	file, err := t.fs.Open(path)
	if err != nil {
		return ports.EmbeddedTags{}, err
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		return ports.EmbeddedTags{}, fmt.Errorf("read tags: %w", err)
	}
	return ports.EmbeddedTags{
		Title:  strings.TrimSpace(metadata.Title()),
		Artist: strings.TrimSpace(metadata.Artist()),
		Album:  strings.TrimSpace(metadata.Album()),
	}, nil
}

// WriteTags sets title, artist, album and front cover. Empty fields leave existing frames alone.
func (t *Tagger) WriteTags(path string, tags ports.TrackTags) error {
	if t.format != "mp3" {
		t.logger.Debug("skipping id3 tags", slog.String("format", t.format))
		return nil
	}

	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer id3.Close()

	id3.SetDefaultEncoding(id3v2.EncodingUTF8)
	if tags.Title != "" {
		id3.SetTitle(tags.Title)
	}
	if tags.Artist != "" {
		id3.SetArtist(tags.Artist)
	}
	if tags.Album != "" {
		id3.SetAlbum(tags.Album)
	}
	if len(tags.Artwork) > 0 {
		id3.DeleteFrames(id3.CommonID("Attached picture"))
		id3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     tags.Artwork,
		})
	}
	return id3.Save()
}

var _ ports.Tagger = (*Tagger)(nil)
