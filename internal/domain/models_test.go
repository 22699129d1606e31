package domain

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlaylist() *Playlist {
	p := NewPlaylistStub("https://example.com/list")
	p.Name, p.DisplayName = "Mix", "Mix"
	p.SetTracks([]Track{
		{ID: 11, Name: "One", DisplayName: "One", Index: 0},
		{ID: 22, Name: "Two", DisplayName: "Two", Index: 1},
		{ID: 33, Name: "Three", DisplayName: "Three", Index: 2},
	})
	return p
}

func TestPlaylist_Validate(t *testing.T) {
	p := testPlaylist()
	require.NoError(t, p.Validate())

	p.Length = 5
	var verr *ValidationError
	require.ErrorAs(t, p.Validate(), &verr)
	assert.Equal(t, "length", verr.Field)

	p = testPlaylist()
	p.Name = ""
	require.ErrorAs(t, p.Validate(), &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestPlaylist_CloneIsDeep(t *testing.T) {
	p := testPlaylist()
	p.MergeAlbums(map[string]Album{"Blue": {Name: "Blue", ID: 7}})

	c := p.Clone()
	c.Tracks[0].DisplayName = "changed"
	c.Albums["Red"] = Album{Name: "Red"}

	assert.Equal(t, "One", p.Tracks[0].DisplayName)
	assert.NotContains(t, p.Albums, "Red")
	assert.Nil(t, (*Playlist)(nil).Clone())
}

func TestPlaylist_ReconcileTrack(t *testing.T) {
	p := testPlaylist()
	album := Album{Name: "Blue", DisplayName: "Blue", Artist: "Joni", ID: 7}

	ok := p.ReconcileTrack(Track{ID: 22, Name: "ignored", Index: 9, Length: 180, Album: mo.Some(album.Link())})
	require.True(t, ok)

	got := p.Tracks[1]
	assert.Equal(t, "Two", got.Name, "name is owned by the playlist")
	assert.Equal(t, "Two", got.DisplayName, "empty display names are ignored")
	assert.Equal(t, 1, got.Index, "index never changes")
	assert.Equal(t, Seconds(180), got.Length)
	assert.Equal(t, mo.Some(AlbumLink{Name: "Blue", DisplayName: "Blue", Artist: "Joni", ID: 7}), got.Album)

	assert.False(t, p.ReconcileTrack(Track{ID: 99}))
}

func TestPlaylist_ShuffleKeepsTracks(t *testing.T) {
	p := testPlaylist()
	p.Shuffle()

	assert.ElementsMatch(t, []ID{11, 22, 33}, p.TrackIDs())
	for _, track := range p.Tracks {
		idx, ok := p.TrackIndex(track.ID)
		require.True(t, ok)
		assert.Equal(t, track.ID, p.Tracks[idx].ID)
	}
	_, ok := p.TrackIndex(99)
	assert.False(t, ok)
}

func TestPlaylist_MergeAlbums(t *testing.T) {
	p := &Playlist{Name: "Mix"}
	p.MergeAlbums(map[string]Album{"Blue": {Name: "Blue"}})
	p.MergeAlbums(map[string]Album{"Blue": {Name: "Blue", ArtworkDownloaded: true}, "Red": {Name: "Red"}})

	assert.Len(t, p.Albums, 2)
	assert.True(t, p.Albums["Blue"].ArtworkDownloaded)
}

func TestIDKind_String(t *testing.T) {
	assert.Equal(t, "track", KindTrack.String())
	assert.Equal(t, "album", KindAlbum.String())
	assert.Equal(t, "thumbnail", KindThumbnail.String())
	assert.Equal(t, "42", ID(42).String())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")

	assert.ErrorIs(t, NewAudioEngineError("Load", "/a.mp3", 2, "cannot open", cause), cause)
	assert.ErrorIs(t, NewRepositoryError("Save", "playlist", "write", cause), cause)
	assert.ErrorIs(t, NewServiceError("sequencer", "Play", "failed", cause), cause)

	perr := NewProcessError("yt-dlp", []string{"-J"}, "WARNING: slow\nERROR: video unavailable\n", &exec.ExitError{})
	assert.Contains(t, perr.Error(), "yt-dlp failed")
	assert.Contains(t, perr.Error(), "ERROR: video unavailable")
	assert.NotContains(t, perr.Error(), "WARNING")
	var exitErr *exec.ExitError
	assert.ErrorAs(t, perr, &exitErr)
}
