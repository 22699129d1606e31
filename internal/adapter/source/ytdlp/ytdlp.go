// Package ytdlp implements the media source and transcoder ports on top of the yt-dlp and
// ffmpeg executables. Every call runs a child process bound to the caller's context.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools with os/exec. Failures carry the tool's stderr.
type ExecRunner struct{}

// Run starts name with args and waits for it.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewProcessError(filepath.Base(name), args, stderr.String(), err)
	}
	return out, nil
}

// Source extracts playlists and downloads audio with yt-dlp.
type Source struct {
	logger *slog.Logger
	binary string
	runner Runner
}

// NewSource creates a yt-dlp backed media source. binary is the executable name or path.
func NewSource(logger *slog.Logger, binary string, runner Runner) *Source {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Source{logger: logger, binary: binary, runner: runner}
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// flatPlaylist is the part of `yt-dlp -J --flat-playlist` output we read.
type flatPlaylist struct {
	Title      string      `json:"title"`
	Thumbnail  string      `json:"thumbnail"`
	Thumbnails []thumbnail `json:"thumbnails"`
	Entries    []struct {
		ID    string `json:"id"`
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"entries"`
}

// Extract fetches the playlist title, thumbnail and entries without downloading media.
// Entries without a URL (private or removed videos) are dropped.
func (s *Source) Extract(ctx context.Context, url string) (*ports.RemotePlaylist, error) {
	out, err := s.runner.Run(ctx, s.binary, "--flat-playlist", "-J", "--no-warnings", url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}

	var raw flatPlaylist
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", domain.ErrExtractionFailed, err)
	}
	if raw.Title == "" {
		return nil, fmt.Errorf("%w: no playlist title", domain.ErrExtractionFailed)
	}

	remote := &ports.RemotePlaylist{Title: raw.Title, ThumbnailURL: raw.Thumbnail}
	if len(raw.Thumbnails) > 0 {
		best := lo.MaxBy(raw.Thumbnails, func(a, b thumbnail) bool {
			return a.Width*a.Height > b.Width*b.Height
		})
		if best.URL != "" {
			remote.ThumbnailURL = best.URL
		}
	}
	for _, e := range raw.Entries {
		if e.URL == "" {
			s.logger.Debug("dropping entry without url", slog.String("id", e.ID))
			continue
		}
		remote.Entries = append(remote.Entries, ports.RemoteEntry{URL: e.URL, Title: lo.CoalesceOrEmpty(e.Title, e.ID)})
	}
	s.logger.Debug("playlist extracted", slog.String("title", raw.Title), slog.Int("entries", len(remote.Entries)))
	return remote, nil
}

// FetchAudio downloads the best audio stream of url into dir, embedding the source metadata.
// It returns the path yt-dlp reports for the finished file.
func (s *Source) FetchAudio(ctx context.Context, url, dir string) (string, error) {
	args := []string{
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--embed-metadata",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		"--print", "after_move:filepath",
		url,
	}
	out, err := s.runner.Run(ctx, s.binary, args...)
	if err != nil {
		return "", err
	}
	lines := lo.Compact(strings.Split(strings.TrimSpace(string(out)), "\n"))
	if len(lines) == 0 {
		return "", domain.NewProcessError(s.binary, args, "", fmt.Errorf("no output file reported"))
	}
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// LengthProbe measures an audio file.
type LengthProbe func(path string) (domain.Seconds, error)

// Transcoder converts downloads with ffmpeg.
type Transcoder struct {
	logger *slog.Logger
	binary string
	runner Runner
	probe  LengthProbe
}

// NewTranscoder creates an ffmpeg transcoder. probe measures converted files.
func NewTranscoder(logger *slog.Logger, binary string, runner Runner, probe LengthProbe) *Transcoder {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Transcoder{logger: logger, binary: binary, runner: runner, probe: probe}
}

// Transcode converts src to dst. The container is forced from params since dst may carry a
// temporary extension.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string, params domain.DownloadParams) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", src, "-vn", "-map_metadata", "0"}
	if params.Bitrate != "" {
		args = append(args, "-b:a", params.Bitrate)
	}
	args = append(args, "-f", params.Format, dst)

	if _, err := t.runner.Run(ctx, t.binary, args...); err != nil {
		return err
	}
	t.logger.Debug("transcoded", slog.String("src", filepath.Base(src)), slog.String("format", params.Format))
	return nil
}

// Length measures a converted file with the configured probe.
func (t *Transcoder) Length(path string) (domain.Seconds, error) {
	if t.probe == nil {
		return 0, nil
	}
	return t.probe(path)
}

var (
	_ ports.MediaSource = (*Source)(nil)
	_ ports.Transcoder  = (*Transcoder)(nil)
)
