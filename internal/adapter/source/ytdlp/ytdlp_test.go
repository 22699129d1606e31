package ytdlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	out   []byte
	err   error
	calls []call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return f.out, f.err
}

const flatJSON = `{
  "title": "Road Trip",
  "thumbnail": "https://img.example.com/small.jpg",
  "thumbnails": [
    {"url": "https://img.example.com/small.jpg", "width": 120, "height": 90},
    {"url": "https://img.example.com/large.jpg", "width": 1280, "height": 720}
  ],
  "entries": [
    {"id": "a1", "url": "https://www.youtube.com/watch?v=a1", "title": "First Song"},
    {"id": "gone", "url": "", "title": "[Private video]"},
    {"id": "b2", "url": "https://www.youtube.com/watch?v=b2", "title": ""}
  ]
}`

func TestSource_Extract(t *testing.T) {
	runner := &fakeRunner{out: []byte(flatJSON)}
	src := NewSource(logger.NewTestLogger(), "yt-dlp", runner)

	remote, err := src.Extract(context.Background(), "https://www.youtube.com/playlist?list=x")
	require.NoError(t, err)

	assert.Equal(t, "Road Trip", remote.Title)
	assert.Equal(t, "https://img.example.com/large.jpg", remote.ThumbnailURL)
	require.Len(t, remote.Entries, 2)
	assert.Equal(t, "First Song", remote.Entries[0].Title)
	assert.Equal(t, "b2", remote.Entries[1].Title)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "yt-dlp", runner.calls[0].name)
	assert.Contains(t, runner.calls[0].args, "--flat-playlist")
	assert.Contains(t, runner.calls[0].args, "-J")
}

func TestSource_ExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"process error", &fakeRunner{err: domain.NewProcessError("yt-dlp", nil, "ERROR: not found", errors.New("exit status 1"))}},
		{"bad json", &fakeRunner{out: []byte("not json")}},
		{"no title", &fakeRunner{out: []byte(`{"entries": []}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSource(logger.NewTestLogger(), "yt-dlp", tt.runner)
			_, err := src.Extract(context.Background(), "https://example.com")
			assert.ErrorIs(t, err, domain.ErrExtractionFailed)
		})
	}
}

func TestSource_FetchAudio(t *testing.T) {
	runner := &fakeRunner{out: []byte("\n/tmp/dl/a1.webm\n")}
	src := NewSource(logger.NewTestLogger(), "yt-dlp", runner)

	path, err := src.FetchAudio(context.Background(), "https://www.youtube.com/watch?v=a1", "/tmp/dl")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dl/a1.webm", path)
	assert.Contains(t, runner.calls[0].args, "/tmp/dl/%(id)s.%(ext)s")
	assert.Contains(t, runner.calls[0].args, "--embed-metadata")

	runner.out = nil
	_, err = src.FetchAudio(context.Background(), "https://www.youtube.com/watch?v=a1", "/tmp/dl")
	var procErr *domain.ProcessError
	assert.ErrorAs(t, err, &procErr)
}

func TestTranscoder(t *testing.T) {
	runner := &fakeRunner{}
	lengthOf := func(path string) (domain.Seconds, error) {
		assert.Equal(t, "/music/tracks/7.mp3.part", path)
		return 184, nil
	}
	tc := NewTranscoder(logger.NewTestLogger(), "ffmpeg", runner, lengthOf)

	params := domain.DownloadParams{Format: "mp3", Bitrate: "192k"}
	require.NoError(t, tc.Transcode(context.Background(), "/tmp/a1.webm", "/music/tracks/7.mp3.part", params))

	args := runner.calls[0].args
	assert.Equal(t, []string{"-f", "mp3", "/music/tracks/7.mp3.part"}, args[len(args)-3:])
	assert.Contains(t, args, "192k")

	length, err := tc.Length("/music/tracks/7.mp3.part")
	require.NoError(t, err)
	assert.Equal(t, domain.Seconds(184), length)

	runner.err = errors.New("boom")
	assert.Error(t, tc.Transcode(context.Background(), "/tmp/a1.webm", "/x.part", params))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "tubetune-no-such-tool", "--version")
	var procErr *domain.ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "tubetune-no-such-tool", procErr.Tool)
}
