package downloader

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
	"github.com/tejashwikalptaru/tubetune/internal/testutil"
)

func newTestClient(t *testing.T) (*Client, *harness, *fakeBus) {
	t.Helper()
	h := newHarness(t)
	bus := &fakeBus{}
	return NewClient(logger.NewTestLogger(), h.ch, bus, domain.DownloadParams{Format: "mp3"}), h, bus
}

func TestClient_DownloadRefusedWhileQueued(t *testing.T) {
	client, h, _ := newTestClient(t)
	p := newTestPlaylist(2)

	require.NoError(t, client.DownloadPlaylist(p, 0))
	assert.True(t, client.IsDownloading())
	assert.False(t, client.QueueEmpty())

	err := client.DownloadPlaylist(p, 1)
	assert.ErrorIs(t, err, domain.ErrDownloadInProgress)
	assert.Equal(t, 1, h.ch.Commands.Len())

	cmd, ok := h.ch.Commands.TryGet()
	require.True(t, ok)
	download := cmd.(domain.DownloadCommand)
	assert.Equal(t, "mp3", download.Params.Format)
	// the worker gets its own copy
	assert.NotSame(t, p, download.Playlist)
	assert.Equal(t, p.TrackIDs(), download.Playlist.TrackIDs())
}

func TestClient_StopAndSelectNeedADownload(t *testing.T) {
	client, h, _ := newTestClient(t)

	client.Stop()
	client.Select(2)
	assert.False(t, h.ch.Stop.IsSet())
	assert.Equal(t, -1, h.ch.Select.Peek())

	require.NoError(t, client.DownloadPlaylist(newTestPlaylist(3), 0))
	client.Select(2)
	assert.Equal(t, 2, h.ch.Select.Peek())
	assert.True(t, h.ch.SelectPending.IsSet())

	client.Stop()
	assert.True(t, h.ch.Stop.IsSet())
}

func TestClient_CancelNextNeedsAQueuedCommand(t *testing.T) {
	client, h, _ := newTestClient(t)

	client.CancelNext()
	assert.False(t, h.ch.CancelNext.IsSet())

	require.NoError(t, client.Initialize("https://example.com/list"))
	client.CancelNext()
	assert.True(t, h.ch.CancelNext.IsSet())
}

func TestClient_RestartFlushesQueuedDownload(t *testing.T) {
	client, h, _ := newTestClient(t)
	p := newTestPlaylist(3)

	require.NoError(t, client.DownloadPlaylist(p, 0))
	require.NoError(t, client.Restart(p, 1))

	assert.True(t, h.ch.CancelNext.IsSet())
	assert.Equal(t, 2, h.ch.Commands.Len())
}

func TestClient_DownloadsAreNumbered(t *testing.T) {
	client, h, _ := newTestClient(t)
	p := newTestPlaylist(1)

	require.NoError(t, client.DownloadPlaylist(p, 0))
	require.NoError(t, client.Restart(p, 0))

	var gens []uint64
	for !h.ch.Commands.Empty() {
		cmd, _ := h.ch.Commands.TryGet()
		gens = append(gens, cmd.(domain.DownloadCommand).Generation)
	}
	assert.Equal(t, []uint64{1, 2}, gens)
	assert.True(t, h.ch.StopRequested(1))
	assert.False(t, h.ch.StopRequested(2))
}

// otherPlaylist has no track in common with newTestPlaylist.
func otherPlaylist(n int) *domain.Playlist {
	p := newTestPlaylist(n)
	p.Name = "Other"
	tracks := make([]domain.Track, len(p.Tracks))
	for i, track := range p.Tracks {
		track.ID += 100
		track.SourceURL = fmt.Sprintf("https://example.com/other/%d", i)
		tracks[i] = track
	}
	p.SetTracks(tracks)
	return p
}

// finishUnacknowledged runs a Download to its end while the listener has only seen the
// acknowledgement, so the client still believes it is active.
func finishUnacknowledged(t *testing.T, client *Client, h *harness) {
	t.Helper()
	require.NoError(t, client.DownloadPlaylist(newTestPlaylist(2), 0))
	responses, _ := until[domain.PlaylistDownloadDone](t, h)
	require.IsType(t, domain.DataReceived{}, responses[0])
	client.track(responses[0])
	require.Equal(t, "Mix", client.Active())
}

func TestClient_RestartAfterUnacknowledgedFinish(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	client, h, _ := newTestClient(t)
	defer h.start(t)()
	finishUnacknowledged(t, client, h)

	require.NoError(t, client.Restart(otherPlaylist(2), 0))
	responses, done := until[domain.PlaylistDownloadDone](t, h)

	assert.Equal(t, []int{0, 1}, startIndices(responses))
	assert.Equal(t, "Other", done.PlaylistName)
	assert.True(t, done.Complete)
}

func TestClient_StopAfterUnacknowledgedFinish(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	client, h, _ := newTestClient(t)
	defer h.start(t)()
	finishUnacknowledged(t, client, h)

	// aimed at the Download that already ended
	client.Stop()
	require.NoError(t, client.DownloadPlaylist(otherPlaylist(3), 0))
	responses, done := until[domain.PlaylistDownloadDone](t, h)

	assert.Equal(t, []int{0, 1, 2}, startIndices(responses))
	assert.True(t, done.Complete)
}

func TestClient_CloseDropsQueueAndSendsSentinel(t *testing.T) {
	client, h, _ := newTestClient(t)

	require.NoError(t, client.Initialize("https://example.com/a"))
	require.NoError(t, client.DownloadPlaylist(newTestPlaylist(1), 0))
	client.Close()
	client.Close()

	assert.Equal(t, 1, h.ch.Commands.Len())
	cmd, _ := h.ch.Commands.TryGet()
	assert.Nil(t, cmd)
	assert.True(t, client.QueueEmpty())
	assert.ErrorIs(t, client.Initialize("https://example.com/b"), domain.ErrWorkerClosed)
	assert.ErrorIs(t, client.DownloadPlaylist(newTestPlaylist(1), 0), domain.ErrWorkerClosed)
}

func TestClient_ListenTracksResponses(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	client, h, bus := newTestClient(t)
	p := newTestPlaylist(1)
	require.NoError(t, client.DownloadPlaylist(p, 0))

	done := make(chan error, 1)
	go func() { done <- client.Listen(context.Background()) }()

	h.ch.Responses.Put(domain.DataReceived{})
	assert.Eventually(t, func() bool { return client.Active() == "Mix" }, time.Second, time.Millisecond)
	assert.True(t, client.QueueEmpty())
	assert.True(t, client.IsDownloading())

	h.ch.Responses.Put(domain.TrackDownloadStart{PlaylistName: "Mix", Track: p.Tracks[0], Index: 0})
	h.ch.Responses.Put(domain.TrackDownloadDone{PlaylistName: "Mix", Track: p.Tracks[0], Index: 0, Success: true})
	h.ch.Responses.Put(domain.PlaylistDownloadDone{PlaylistName: "Mix", QueueEmpty: true, Complete: true})
	h.ch.Responses.Put(domain.WorkerClosed{})

	require.NoError(t, <-done)
	assert.False(t, client.IsDownloading())
	assert.True(t, client.Closed())
	assert.Equal(t, []domain.Topic{
		domain.TopicPlaylistTrackDownloadStart,
		domain.TopicPlaylistTrackDownload,
		domain.TopicPlaylistDownloadFinish,
	}, bus.topics())

	finish := bus.events[2].(domain.PlaylistDownloadFinishEvent)
	assert.True(t, finish.Complete)
	assert.Equal(t, "Mix", finish.Playlist)
}

func TestClient_ListenSetsClosedOnCancel(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	client, h, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, client.Listen(ctx), context.Canceled)
	assert.True(t, h.ch.Closed.IsSet())
}

func TestClient_EndToEnd(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	client, h, bus := newTestClient(t)
	p := newTestPlaylist(3)
	h.source.failures[p.Tracks[1].SourceURL] = 1

	workerDone := make(chan error, 1)
	listenDone := make(chan error, 1)
	go func() {
		workerDone <- NewSupervisor(logger.NewTestLogger(), h.worker, h.ch, 0, 0).Run(context.Background())
	}()
	go func() { listenDone <- client.Listen(context.Background()) }()

	require.NoError(t, client.DownloadPlaylist(p, 0))
	assert.Eventually(t, func() bool { return bus.has(domain.TopicPlaylistDownloadFinish) }, 5*time.Second, time.Millisecond)
	assert.False(t, client.IsDownloading())

	for id, ok := range h.presence.DownloadedMapFor(p) {
		assert.True(t, ok, "track %d", id)
	}

	client.Close()
	require.NoError(t, <-workerDone)
	require.NoError(t, <-listenDone)
	assert.True(t, client.Closed())
}
