package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
	"github.com/tejashwikalptaru/tubetune/internal/testutil"
)

func TestSequencer_WaitsForFirstTrackAndSkipsWhenIdle(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	h := newHarness(t, testSequencerConfig())
	defer h.run(t)()

	p := newTestPlaylist(3)
	h.downloads.setDownloading(true)
	require.NoError(t, h.seq.Load(p))

	h.waitIndices(t, domain.TopicAudioTrackWait, 0)
	assert.Equal(t, domain.StateWaitingForDownload, h.seq.State())
	assert.Empty(t, h.rec.indices(domain.TopicAudioTrackStart))

	h.writeTrack(t, p.Tracks[0].ID)
	h.seq.NotifyDownload()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0)
	h.waitIndices(t, domain.TopicAudioTrackPause, 0)
	assert.True(t, h.seq.Paused())
	assert.Equal(t, domain.StatePlaying, h.seq.State())

	require.NoError(t, h.seq.TogglePause())
	h.waitIndices(t, domain.TopicAudioTrackResume, 0)
	h.waitCount(t, domain.TopicAudioTrackProgress, 1)

	// track 1 is still downloading: wait for it
	h.finishCurrent(t)
	h.waitIndices(t, domain.TopicAudioTrackEnd, 0)
	h.waitIndices(t, domain.TopicAudioTrackWait, 0, 1)

	// nothing downloads any more: the rest is skipped
	h.downloads.setDownloading(false)
	h.waitIndices(t, domain.TopicAudioTrackSkipped, 1, 2)
	h.waitCount(t, domain.TopicAudioManagerEnd, 1)

	end := h.rec.last(domain.TopicAudioManagerEnd).(domain.SequencerEndEvent)
	assert.Equal(t, "Mix", end.Playlist)
	assert.False(t, end.Stopped)
	assert.Equal(t, domain.StateFinished, h.seq.State())
	assert.Equal(t, -1, h.seq.Index())
	assert.Eventually(t, func() bool { return !h.seq.Running() }, eventTimeout, time.Millisecond)
	assert.Equal(t, 0, h.engine.GetLoadedTracks())
	assert.Equal(t, []string{h.layout.TrackPath(p.Tracks[0].ID)}, h.engine.Loads())
	assert.True(t, h.rec.startsWereDownloaded())
}

func TestSequencer_SelectWhileWaiting(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	h := newHarness(t, testSequencerConfig())
	defer h.run(t)()

	p := newTestPlaylist(4)
	h.writeTrack(t, p.Tracks[2].ID)
	h.downloads.setDownloading(true)
	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackWait, 0)

	require.NoError(t, h.seq.Select(2))
	h.waitIndices(t, domain.TopicAudioTrackStart, 2)
	assert.Equal(t, 2, h.seq.Index())
	// still the first track of the session
	assert.True(t, h.seq.Paused())
	assert.Equal(t, 1, h.rec.count(domain.TopicAudioSelect))
	assert.Empty(t, h.rec.indices(domain.TopicAudioTrackSkipped))
	assert.True(t, h.rec.startsWereDownloaded())
}

func TestSequencer_NeverStartsUndownloadedTracks(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	cfg := testSequencerConfig()
	cfg.PauseFirstTrack = false
	h := newHarness(t, cfg)
	defer h.run(t)()

	p := newTestPlaylist(5)
	h.writeTrack(t, p.Tracks[1].ID)
	h.writeTrack(t, p.Tracks[3].ID)
	require.NoError(t, h.seq.Load(p))

	// the first track waits even with nothing downloading
	h.waitIndices(t, domain.TopicAudioTrackWait, 0)
	require.NoError(t, h.seq.Select(1))
	h.waitIndices(t, domain.TopicAudioTrackStart, 1)
	assert.False(t, h.seq.Paused())

	h.finishCurrent(t)
	h.waitIndices(t, domain.TopicAudioTrackStart, 1, 3)
	h.finishCurrent(t)
	h.waitCount(t, domain.TopicAudioManagerEnd, 1)

	assert.Equal(t, []int{2, 4}, h.rec.indices(domain.TopicAudioTrackSkipped))
	assert.Equal(t, []int{1, 3}, h.rec.indices(domain.TopicAudioTrackEnd))
	assert.True(t, h.rec.startsWereDownloaded())
}

func TestSequencer_SkipPreviousAndStop(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	cfg := testSequencerConfig()
	cfg.PauseFirstTrack = false
	h := newHarness(t, cfg)
	defer h.run(t)()

	p := newTestPlaylist(3)
	for _, track := range p.Tracks {
		h.writeTrack(t, track.ID)
	}
	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackStart, 0)

	h.seq.Skip()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1)
	assert.Equal(t, []int{0}, h.rec.indices(domain.TopicAudioTrackEnd))

	h.seq.Previous()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1, 0)

	// previous on the first track restarts it
	h.seq.Previous()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1, 0, 0)

	h.seq.Stop()
	h.waitCount(t, domain.TopicAudioManagerEnd, 1)
	end := h.rec.last(domain.TopicAudioManagerEnd).(domain.SequencerEndEvent)
	assert.True(t, end.Stopped)
	// a stop does not end the track
	assert.Equal(t, []int{0, 1, 0}, h.rec.indices(domain.TopicAudioTrackEnd))
	assert.Equal(t, 0, h.engine.GetLoadedTracks())
}

func TestSequencer_SkipUnpauses(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	h := newHarness(t, testSequencerConfig())
	defer h.run(t)()

	p := newTestPlaylist(2)
	for _, track := range p.Tracks {
		h.writeTrack(t, track.ID)
	}
	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackPause, 0)

	h.seq.Skip()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1)
	h.waitIndices(t, domain.TopicAudioTrackResume, 1)
	assert.False(t, h.seq.Paused())

	handle, ok := h.engine.Current()
	require.True(t, ok)
	status, err := h.engine.Status(handle)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, status)
}

func TestSequencer_ShuffleRestartsSweep(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	cfg := testSequencerConfig()
	cfg.PauseFirstTrack = false
	h := newHarness(t, cfg)
	defer h.run(t)()

	p := newTestPlaylist(6)
	ids := p.TrackIDs()
	for _, track := range p.Tracks {
		h.writeTrack(t, track.ID)
	}
	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackStart, 0)
	h.seq.Skip()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1)

	require.True(t, h.seq.Shuffle())
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1, 0)

	shuffled := h.rec.last(domain.TopicPlaylistShuffle).(domain.PlaylistEvent)
	assert.Equal(t, "Mix", shuffled.Playlist)
	assert.ElementsMatch(t, ids, p.TrackIDs())
	assert.Equal(t, []int{0, 1}, h.rec.indices(domain.TopicAudioTrackEnd))
	assert.True(t, h.seq.Running())
}

func TestSequencer_ShuffleRaisedOnLastTrackRestarts(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	cfg := testSequencerConfig()
	cfg.PauseFirstTrack = false
	h := newHarness(t, cfg)
	defer h.run(t)()

	// track 1 is never downloaded, so the walk skips it and runs off the end
	// right after the shuffle request lands
	p := newTestPlaylist(2)
	h.writeTrack(t, p.Tracks[0].ID)
	var once sync.Once
	h.downloads.onQuery = func() {
		once.Do(func() { assert.True(t, h.seq.Shuffle()) })
	}

	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackStart, 0)
	h.finishCurrent(t)

	h.waitCount(t, domain.TopicPlaylistShuffle, 1)
	h.waitCount(t, domain.TopicAudioTrackStart, 2)
	assert.Zero(t, h.rec.count(domain.TopicAudioManagerEnd))
	assert.True(t, h.seq.Running())
	assert.True(t, h.rec.startsWereDownloaded())
}

func TestSequencer_LoopReplaysTrack(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	cfg := testSequencerConfig()
	cfg.PauseFirstTrack = false
	h := newHarness(t, cfg)
	defer h.run(t)()

	p := newTestPlaylist(2)
	for _, track := range p.Tracks {
		h.writeTrack(t, track.ID)
	}
	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackStart, 0)

	assert.True(t, h.seq.ToggleLoop())
	handle, _ := h.engine.Current()
	require.NoError(t, h.engine.Finish(handle))

	require.Eventually(t, func() bool {
		status, err := h.engine.Status(handle)
		return err == nil && status == domain.StatusPlaying
	}, eventTimeout, time.Millisecond)
	assert.Empty(t, h.rec.indices(domain.TopicAudioTrackEnd))

	// leaving the track drops the loop flag
	h.seq.Skip()
	h.waitIndices(t, domain.TopicAudioTrackStart, 0, 1)
	assert.False(t, h.seq.Looping())
	h.waitCount(t, domain.TopicAudioLoop, 2)
	loop := h.rec.last(domain.TopicAudioLoop).(domain.LoopEvent)
	assert.False(t, loop.Enabled)
}

func TestSequencer_VolumeMuteAndSeek(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	h := newHarness(t, testSequencerConfig())
	defer h.run(t)()

	p := newTestPlaylist(1)
	h.writeTrack(t, p.Tracks[0].ID)
	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackStart, 0)
	handle, _ := h.engine.Current()

	vol, _ := h.engine.GetVolume(handle)
	assert.InDelta(t, 0.8, vol, 1e-9)

	require.NoError(t, h.seq.SetVolume(0.5))
	vol, _ = h.engine.GetVolume(handle)
	assert.InDelta(t, 0.5, vol, 1e-9)

	muted, err := h.seq.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)
	vol, _ = h.engine.GetVolume(handle)
	assert.Zero(t, vol)

	// the volume is kept while muted
	require.NoError(t, h.seq.SetVolume(0.3))
	vol, _ = h.engine.GetVolume(handle)
	assert.Zero(t, vol)

	muted, err = h.seq.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)
	vol, _ = h.engine.GetVolume(handle)
	assert.InDelta(t, 0.3, vol, 1e-9)

	assert.ErrorIs(t, h.seq.SetVolume(1.5), domain.ErrInvalidVolume)

	require.NoError(t, h.seq.Seek(time.Minute))
	pos, _ := h.engine.Position(handle)
	assert.Equal(t, time.Minute, pos)
	h.waitCount(t, domain.TopicAudioTrackProgress, 1)
	assert.ErrorIs(t, h.seq.Seek(time.Hour), domain.ErrInvalidPosition)

	h.waitCount(t, domain.TopicAudioVolume, 4)
	volume := h.rec.last(domain.TopicAudioVolume).(domain.VolumeEvent)
	assert.False(t, volume.Muted)
	assert.InDelta(t, 0.3, volume.Volume, 1e-9)
}

func TestSequencer_LoadFailureMovesOn(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	cfg := testSequencerConfig()
	cfg.PauseFirstTrack = false
	h := newHarness(t, cfg)
	defer h.run(t)()

	p := newTestPlaylist(2)
	for _, track := range p.Tracks {
		h.writeTrack(t, track.ID)
	}
	h.engine.SetFailLoadPath(h.layout.TrackPath(p.Tracks[0].ID))

	require.NoError(t, h.seq.Load(p))
	h.waitIndices(t, domain.TopicAudioTrackStart, 1)
	assert.Empty(t, h.rec.indices(domain.TopicAudioTrackEnd))
}

func TestSequencer_LoadValidation(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	h := newHarness(t, testSequencerConfig())
	defer h.run(t)()

	assert.ErrorIs(t, h.seq.Load(nil), domain.ErrPlaylistEmpty)
	assert.ErrorIs(t, h.seq.Load(newTestPlaylist(0)), domain.ErrPlaylistEmpty)

	p := newTestPlaylist(2)
	h.downloads.setDownloading(true)
	require.NoError(t, h.seq.Load(p))
	assert.ErrorIs(t, h.seq.Load(newTestPlaylist(1)), domain.ErrSequencerBusy)
	assert.Equal(t, "Mix", h.seq.Playlist())

	assert.ErrorIs(t, h.seq.Select(7), domain.ErrInvalidIndex)
	assert.ErrorIs(t, h.seq.Pause(), domain.ErrNoTrackLoaded)
}

func TestSequencer_IdleControls(t *testing.T) {
	h := newHarness(t, testSequencerConfig())

	assert.False(t, h.seq.Running())
	assert.False(t, h.seq.Shuffle())
	assert.ErrorIs(t, h.seq.Select(0), domain.ErrNoTrackLoaded)
	assert.ErrorIs(t, h.seq.TogglePause(), domain.ErrNoTrackLoaded)
	assert.ErrorIs(t, h.seq.Seek(time.Second), domain.ErrNoTrackLoaded)
	assert.Equal(t, domain.StateIdle, h.seq.State())
	assert.Equal(t, -1, h.seq.Index())
	assert.Equal(t, "", h.seq.Playlist())

	h.seq.Skip()
	h.seq.Stop()
	assert.False(t, h.reg.CooperativeFlag(SkipFlagName).IsSet())
	assert.False(t, h.reg.CooperativeFlag(StopFlagName).IsSet())
}

func TestSequencer_ReusesRegisteredFlags(t *testing.T) {
	h := newHarness(t, testSequencerConfig())

	again, err := NewSequencer(logger.NewTestLogger(), h.reg, h.engine, h.bus, h.presence, h.layout, h.downloads, testSequencerConfig())
	require.NoError(t, err)
	assert.Same(t, h.seq.skip, again.skip)
	assert.Same(t, h.seq.selected, again.selected)

	_, err = NewSequencer(logger.NewTestLogger(), h.reg, h.engine, h.bus, h.presence, h.layout, h.downloads, SequencerConfig{Volume: 2})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestSequencer_ProgramCloseStopsWaitingSession(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	h := newHarness(t, testSequencerConfig())
	stop := h.run(t)

	h.downloads.setDownloading(true)
	require.NoError(t, h.seq.Load(newTestPlaylist(2)))
	h.waitIndices(t, domain.TopicAudioTrackWait, 0)

	stop()
	assert.False(t, h.seq.Running())
	assert.Equal(t, domain.StateFinished, h.seq.State())
}
