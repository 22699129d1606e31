package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/hotkey"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/storage"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
)

// execute runs the command line over fs and returns what it wrote to stdout.
func execute(t *testing.T, fs afero.Fs, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", "/config")

	var out, errOut bytes.Buffer
	root := newRootCommand(fs)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "TubeTune dev")

	out, err = execute(t, afero.NewMemMapFs(), "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestIDsCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	id := storage.HashName("Road_Trip")

	out, err := execute(t, fs, "", "ids", "--library", "/lib", "Road Trip")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%-16s  new    Road_Trip\n", id), out)

	table := storage.NewIDTable(fs, storage.NewLayout("/lib", "mp3"), logger.NewTestLogger())
	_, err = table.IDFor("Road_Trip", domain.KindTrack)
	require.NoError(t, err)

	out, err = execute(t, fs, "", "ids", "--library", "/lib", "Road Trip", "Café")
	require.NoError(t, err)
	assert.Contains(t, out, "known  Road_Trip")
	assert.Contains(t, out, "new    Cafe")

	_, err = execute(t, fs, "", "ids")
	assert.Error(t, err)
}

func TestPlaylistsCommand(t *testing.T) {
	fs := afero.NewMemMapFs()

	out, err := execute(t, fs, "", "playlists", "--library", "/lib")
	require.NoError(t, err)
	assert.Equal(t, "no playlists in /lib\n", out)

	layout := storage.NewLayout("/lib", "mp3")
	tracks := []domain.Track{
		{ID: storage.HashName("One"), Name: "One", DisplayName: "One"},
		{ID: storage.HashName("Two"), Name: "Two", DisplayName: "Two", Index: 1},
	}
	playlist := &domain.Playlist{Name: "Mix", DisplayName: "Mix", SourceURL: "https://example.com/list"}
	playlist.SetTracks(tracks)
	require.NoError(t, storage.NewSnapshotRepository(fs, layout, logger.NewTestLogger()).Save(playlist))
	require.NoError(t, fs.MkdirAll(layout.TracksDir(), 0o755))
	require.NoError(t, afero.WriteFile(fs, layout.TrackPath(tracks[0].ID), []byte("audio"), 0o644))

	out, err = execute(t, fs, "", "ls", "--library", "/lib")
	require.NoError(t, err)
	assert.Equal(t, "Mix  1/2  https://example.com/list\n", out)

	// the format decides the track extension, so a wav library sees nothing yet
	out, err = execute(t, fs, "", "playlists", "--library", "/lib", "--format", "wav")
	require.NoError(t, err)
	assert.Equal(t, "Mix  0/2  https://example.com/list\n", out)
}

func TestRunCommand_MockAudio(t *testing.T) {
	fs := afero.NewMemMapFs()

	out, err := execute(t, fs, "help\nlist\nquit\n", "run", "--mock-audio", "--library", "/lib", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "commands:")
	assert.Contains(t, out, "closing")

	exists, err := afero.DirExists(fs, "/lib/playlists")
	require.NoError(t, err)
	assert.True(t, exists, "library prepared")
}

func TestRunCommand_BadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := execute(t, fs, "", "run", "--mock-audio", "--config", "/missing.yaml")
	assert.Error(t, err)

	_, err = execute(t, fs, "", "run", "--mock-audio", "--log-format", "xml")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRunCommand_KeysNeedATerminal(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "", "run", "--keys", "--mock-audio")
	require.Error(t, err)
	assert.ErrorIs(t, err, hotkey.ErrNotTerminal)
}
