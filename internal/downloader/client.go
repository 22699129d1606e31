package downloader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

type commandKind int

const (
	kindInitialize commandKind = iota
	kindDownload
)

type pendingCommand struct {
	kind     commandKind
	playlist string
}

// Client is the scheduler-side handle on the download worker. It enqueues commands, raises
// the shared flags and, through Listen, turns worker responses into bus events.
//
// Thread-safety: Client is safe for concurrent use; Listen runs on its own thread while
// tasks and bus handlers issue commands.
type Client struct {
	logger *slog.Logger
	ch     *Channels
	bus    ports.EventBus

	mu     sync.Mutex
	params domain.DownloadParams

	// pending are the commands sent but not yet acknowledged, oldest first
	pending []pendingCommand

	// active is the playlist of the Download being executed, "" when idle.
	// It trails the worker, so stops are addressed by generation instead.
	active string
	closed bool

	// gen is the generation of the newest Download sent
	gen uint64
}

// NewClient creates a client over the shared channels.
func NewClient(logger *slog.Logger, ch *Channels, bus ports.EventBus, params domain.DownloadParams) *Client {
	return &Client{logger: logger, ch: ch, bus: bus, params: params}
}

// SetParams replaces the parameters sent with the next Download command.
func (c *Client) SetParams(params domain.DownloadParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
}

// Initialize asks the worker to extract the playlist behind url.
func (c *Client) Initialize(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrWorkerClosed
	}
	c.send(pendingCommand{kind: kindInitialize}, domain.InitializeCommand{Stub: domain.NewPlaylistStub(url)})
	return nil
}

// DownloadPlaylist asks the worker to download every missing track of a copy of playlist,
// starting at start. It is refused while a session is active and commands are still queued.
func (c *Client) DownloadPlaylist(playlist *domain.Playlist, start int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrWorkerClosed
	}
	if c.downloadingLocked() && len(c.pending) > 0 {
		c.logger.Warn("download request refused, a session is already queued",
			slog.String("playlist", playlist.Name), slog.String("active", c.active))
		return domain.ErrDownloadInProgress
	}
	c.sendDownload(playlist, start)
	return nil
}

// Restart replaces the running session: the in-flight Download is stopped, a queued command
// that did not start yet is flushed, and a new Download is queued. Used after a shuffle.
func (c *Client) Restart(playlist *domain.Playlist, start int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrWorkerClosed
	}
	if c.gen > 0 {
		// covers the in-flight Download and any queued one, and cannot reach the new one
		c.ch.RequestStop(c.gen)
	}
	if !c.ch.Commands.Empty() {
		c.ch.CancelNext.Set()
		// the worker took the command before seeing the flag: take the flag back, the
		// stop above already ends the command it is now executing
		if c.ch.Commands.Empty() {
			c.ch.CancelNext.Consume()
		}
	}
	c.sendDownload(playlist, start)
	return nil
}

// Stop aborts the in-flight Download. It is a no-op when nothing is downloading.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.downloadingLocked() {
		return
	}
	c.logger.Info("stopping download", slog.String("playlist", c.active), slog.Uint64("generation", c.gen))
	c.ch.RequestStop(c.gen)
}

// Select makes the running sweep continue at index i.
func (c *Client) Select(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || !c.downloadingLocked() {
		return
	}
	c.ch.Select.Set(i)
	c.ch.SelectPending.Set()
}

// CancelNext flushes the next queued command. It is a no-op when nothing is queued.
func (c *Client) CancelNext() {
	if c.ch.Commands.Empty() {
		return
	}
	c.ch.CancelNext.Set()
}

// Close drops every queued command, stops the in-flight one and sends the shutdown sentinel.
// Calling it again is a no-op.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	dropped := 0
	for {
		if _, ok := c.ch.Commands.TryGet(); !ok {
			break
		}
		dropped++
	}
	c.pending = c.pending[:max(0, len(c.pending)-dropped)]
	c.ch.RequestStop(c.gen)
	c.ch.Commands.Put(nil)
	c.logger.Info("download worker shutdown requested", slog.Int("dropped", dropped))
}

// IsDownloading reports whether a Download is executing or queued.
func (c *Client) IsDownloading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloadingLocked()
}

// QueueEmpty reports whether every sent command was acknowledged by the worker.
func (c *Client) QueueEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) == 0
}

// Active returns the name of the playlist being downloaded, "" when idle.
func (c *Client) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Closed reports whether the worker acknowledged the shutdown sentinel.
func (c *Client) Closed() bool {
	return c.ch.Closed.IsSet()
}

// IDFor allocates an ID through the worker's ID pipe.
func (c *Client) IDFor(ctx context.Context, name string, kind domain.IDKind) (domain.ID, error) {
	return c.ch.IDs.IDFor(ctx, name, kind)
}

// Listen forwards worker responses onto the bus until the worker closed or ctx is done.
// It sets the Closed signal on the way out in both cases.
func (c *Client) Listen(ctx context.Context) error {
	defer c.ch.Closed.Set()

	for {
		resp, err := c.ch.Responses.Get(ctx)
		if err != nil {
			return err
		}
		if _, ok := resp.(domain.WorkerClosed); ok {
			c.mu.Lock()
			c.closed = true
			c.active = ""
			c.pending = nil
			c.mu.Unlock()
			c.logger.Info("download worker closed")
			return nil
		}
		if event := c.track(resp); event != nil {
			_ = c.bus.Publish(event)
		}
	}
}

// track updates the bookkeeping for one response and returns the event to publish, if any.
func (c *Client) track(resp domain.Response) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r := resp.(type) {
	case domain.DataReceived:
		if cmd, ok := c.popLocked(); ok && cmd.kind == kindDownload {
			c.active = cmd.playlist
		}
		return nil
	case domain.Cancelled:
		c.popLocked()
		return domain.NewPlaylistDownloadCancelEvent(r.QueueEmpty)
	case domain.InitializeDone:
		return domain.NewInitializationFinishEvent(r.Playlist)
	case domain.TrackDownloadStart:
		return domain.NewTrackDownloadStartEvent(r.PlaylistName, r.Track, r.Index)
	case domain.TrackDownloadDone:
		return domain.NewTrackDownloadEvent(r.PlaylistName, r.Track, r.Index, r.Success)
	case domain.PlaylistDownloadDone:
		c.active = ""
		return domain.NewPlaylistDownloadFinishEvent(r)
	default:
		c.logger.Warn("unknown worker response", slog.Any("response", resp))
		return nil
	}
}

func (c *Client) popLocked() (pendingCommand, bool) {
	if len(c.pending) == 0 {
		c.logger.Warn("worker acknowledged a command that was never sent")
		return pendingCommand{}, false
	}
	cmd := c.pending[0]
	c.pending = c.pending[1:]
	return cmd, true
}

func (c *Client) downloadingLocked() bool {
	return c.active != "" || lo.ContainsBy(c.pending, func(p pendingCommand) bool { return p.kind == kindDownload })
}

func (c *Client) sendDownload(playlist *domain.Playlist, start int) {
	c.gen++
	c.send(pendingCommand{kind: kindDownload, playlist: playlist.Name}, domain.DownloadCommand{
		Playlist:   playlist.Clone(),
		Params:     c.params,
		StartIndex: start,
		Generation: c.gen,
	})
}

func (c *Client) send(p pendingCommand, cmd domain.Command) {
	c.pending = append(c.pending, p)
	c.ch.Commands.Put(cmd)
}
