package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// artworkSize is the edge length album art and thumbnails are resized to fit.
const artworkSize = 512

// Paths locates the files the worker writes.
type Paths interface {
	TrackPath(id domain.ID) string
	AlbumArtPath(id domain.ID) string
	ThumbnailPath(id domain.ID) string
	TempDir() string
}

// IDRequester allocates IDs on the worker's behalf.
type IDRequester interface {
	IDFor(ctx context.Context, name string, kind domain.IDKind) (domain.ID, error)
}

// Deps are the collaborators of the worker. Lookup may be nil to disable metadata lookups.
type Deps struct {
	Source     ports.MediaSource
	Transcoder ports.Transcoder
	Tagger     ports.Tagger
	Lookup     ports.MetadataLookup
	Images     ports.ImageFetcher
	Presence   ports.FilePresence
	Paths      Paths
	Fs         afero.Fs
}

// Worker executes download commands one at a time.
type Worker struct {
	logger *slog.Logger
	ch     *Channels
	ids    IDRequester
	deps   Deps

	// current is the command being executed, for the supervisor
	current atomic.Pointer[domain.Command]
}

// NewWorker creates a worker over the shared channels.
func NewWorker(logger *slog.Logger, ch *Channels, ids IDRequester, deps Deps) *Worker {
	return &Worker{logger: logger, ch: ch, ids: ids, deps: deps}
}

// Run executes commands until the shutdown sentinel arrives or ctx is done.
// A nil command is answered with WorkerClosed and ends the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("download worker started")
	for {
		cmd, err := w.ch.Commands.Get(ctx)
		if err != nil {
			return err
		}
		if cmd == nil {
			w.logger.Info("download worker closing")
			w.ch.Responses.Put(domain.WorkerClosed{})
			return nil
		}
		if w.ch.CancelNext.Consume() {
			w.logger.Info("queued command cancelled", slog.String("command", commandName(cmd)))
			w.ch.Responses.Put(domain.Cancelled{QueueEmpty: w.ch.Commands.Empty()})
			continue
		}

		w.current.Store(&cmd)
		w.ch.Responses.Put(domain.DataReceived{})
		w.handle(ctx, cmd)
		w.current.Store(nil)

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Interrupted returns the command that was executing when Run ended abnormally.
func (w *Worker) Interrupted() (domain.Command, bool) {
	cmd := w.current.Swap(nil)
	if cmd == nil {
		return nil, false
	}
	return *cmd, true
}

// handle runs one command; a panic degrades to the command's failure response.
func (w *Worker) handle(ctx context.Context, cmd domain.Command) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("command panicked", slog.String("command", commandName(cmd)), slog.Any("panic", r))
			w.ch.Responses.Put(failureResponse(cmd, w.ch.Commands.Empty()))
		}
	}()

	switch c := cmd.(type) {
	case domain.InitializeCommand:
		w.initialize(ctx, c)
	case domain.DownloadCommand:
		w.download(ctx, c)
	default:
		w.logger.Warn("unknown command", slog.String("command", fmt.Sprintf("%T", cmd)))
	}
}

// failureResponse is the answer a command gets when it could not run to completion.
func failureResponse(cmd domain.Command, queueEmpty bool) domain.Response {
	switch c := cmd.(type) {
	case domain.InitializeCommand:
		return domain.InitializeDone{Playlist: mo.None[*domain.Playlist]()}
	case domain.DownloadCommand:
		name := ""
		if c.Playlist != nil {
			name = c.Playlist.Name
		}
		return domain.PlaylistDownloadDone{PlaylistName: name, QueueEmpty: queueEmpty}
	default:
		return domain.Cancelled{QueueEmpty: queueEmpty}
	}
}

func commandName(cmd domain.Command) string {
	switch cmd.(type) {
	case domain.InitializeCommand:
		return "initialize"
	case domain.DownloadCommand:
		return "download"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}

// initialize extracts the playlist metadata and assigns IDs. Any failure answers None.
func (w *Worker) initialize(ctx context.Context, cmd domain.InitializeCommand) {
	p, err := w.buildPlaylist(ctx, cmd.Stub)
	if err != nil {
		w.logger.Error("playlist initialization failed", slog.String("url", cmd.Stub.SourceURL), slog.Any("error", err))
		w.ch.Responses.Put(domain.InitializeDone{Playlist: mo.None[*domain.Playlist]()})
		return
	}
	w.logger.Info("playlist initialized", slog.String("playlist", p.DisplayName), slog.Int("tracks", p.Length))
	w.ch.Responses.Put(domain.InitializeDone{Playlist: mo.Some(p)})
}

func (w *Worker) buildPlaylist(ctx context.Context, stub *domain.Playlist) (*domain.Playlist, error) {
	if stub == nil {
		return nil, domain.ErrExtractionFailed
	}
	remote, err := w.deps.Source.Extract(ctx, stub.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	if remote.Title == "" {
		return nil, fmt.Errorf("%w: playlist has no title", domain.ErrExtractionFailed)
	}

	p := stub.Clone()
	p.Name = domain.SanitizeName(remote.Title)
	p.DisplayName = remote.Title
	p.ThumbnailURL = remote.ThumbnailURL
	p.Downloaded = false
	if p.Albums == nil {
		p.Albums = make(map[string]domain.Album)
	}
	if p.ThumbnailID, err = w.ids.IDFor(ctx, p.Name, domain.KindThumbnail); err != nil {
		return nil, err
	}

	// identical titles get a numeric suffix so every track keeps its own ID
	seen := make(map[string]int)
	entries := lo.Filter(remote.Entries, func(e ports.RemoteEntry, _ int) bool { return e.URL != "" })
	tracks := make([]domain.Track, 0, len(entries))
	for i, entry := range entries {
		name := domain.SanitizeName(entry.Title)
		if n := seen[name]; n > 0 {
			seen[name]++
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		id, err := w.ids.IDFor(ctx, name, domain.KindTrack)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, domain.Track{
			ID:          id,
			SourceURL:   entry.URL,
			Name:        name,
			DisplayName: entry.Title,
			Index:       i,
		})
	}
	p.SetTracks(tracks)
	return p, p.Validate()
}

// download runs the sweep for one Download command. A stop applies to the command only when
// it was requested for the command's generation or a newer one.
func (w *Worker) download(ctx context.Context, cmd domain.DownloadCommand) {
	defer w.ch.Stop.Clear()

	p := cmd.Playlist
	if p == nil {
		w.ch.Responses.Put(domain.PlaylistDownloadDone{QueueEmpty: w.ch.Commands.Empty()})
		return
	}
	if p.Albums == nil {
		p.Albums = make(map[string]domain.Album)
	}
	log := w.logger.With(slog.String("playlist", p.Name), slog.Uint64("generation", cmd.Generation))
	log.Info("download started", slog.Int("start", cmd.StartIndex), slog.Int("tracks", len(p.Tracks)))

	complete, stopped := w.sweep(ctx, log, p, cmd.Params, cmd.StartIndex, cmd.Generation)

	thumbnail := w.deps.Presence.IsThumbnailDownloaded(p.ThumbnailID)
	if !stopped && !thumbnail && p.ThumbnailURL != "" {
		if err := w.deps.Images.FetchImage(ctx, p.ThumbnailURL, w.deps.Paths.ThumbnailPath(p.ThumbnailID), artworkSize); err != nil {
			log.Warn("thumbnail download failed", slog.Any("error", err))
		}
		thumbnail = w.deps.Presence.IsThumbnailDownloaded(p.ThumbnailID)
	}

	if stopped {
		log.Info("download stopped")
	} else {
		log.Info("download finished", slog.Bool("complete", complete))
	}
	w.ch.Responses.Put(domain.PlaylistDownloadDone{
		PlaylistName:        p.Name,
		Albums:              p.Albums,
		QueueEmpty:          w.ch.Commands.Empty(),
		ThumbnailDownloaded: thumbnail,
		Complete:            complete,
	})
}

// sweep walks the tracks from start, wrapping around to the ones before it, and runs further
// passes while tracks are missing. A selected index moves the walk without ending the pass,
// so every track is attempted once before a pass counts. It reports whether every track is
// present and whether a stop (or ctx) ended it.
func (w *Worker) sweep(ctx context.Context, log *slog.Logger, p *domain.Playlist, params domain.DownloadParams, start int, gen uint64) (complete, stopped bool) {
	n := len(p.Tracks)
	start = clampIndex(start, n)
	pass := 1

	for {
		downloaded := w.deps.Presence.DownloadedMapFor(p)
		tried := make(map[domain.ID]bool, n)

	walk:
		for {
			for k := 0; k < n; k++ {
				if w.ch.StopRequested(gen) || ctx.Err() != nil {
					return false, true
				}
				if j, ok := w.ch.Select.Take(); ok {
					w.ch.SelectPending.Clear()
					if j < n {
						log.Debug("sweep jumps to selected track", slog.Int("index", j), slog.Int("pass", pass))
						start = j
						delete(tried, p.Tracks[j].ID)
						continue walk
					}
				}

				i := (start + k) % n
				track := p.Tracks[i]
				if downloaded[track.ID] || tried[track.ID] {
					continue
				}
				tried[track.ID] = true
				w.ch.Responses.Put(domain.TrackDownloadStart{PlaylistName: p.Name, Track: track, Index: i})
				updated, err := w.fetchTrack(ctx, p, track, params)
				if err != nil {
					log.Warn("track download failed", slog.String("track", track.DisplayName), slog.Int("index", i), slog.Any("error", err))
				} else {
					p.Tracks[i] = updated
					downloaded[track.ID] = true
				}
				w.ch.Responses.Put(domain.TrackDownloadDone{PlaylistName: p.Name, Track: p.Tracks[i], Index: i, Success: err == nil})
			}
			break
		}

		missing := lo.CountBy(lo.Values(w.deps.Presence.DownloadedMapFor(p)), func(ok bool) bool { return !ok })
		if missing == 0 {
			return true, false
		}
		if params.MaxPasses > 0 && pass >= params.MaxPasses {
			log.Warn("giving up on missing tracks", slog.Int("missing", missing), slog.Int("passes", pass))
			return false, false
		}

		cooldown := retryCooldown(params, pass)
		log.Info("tracks missing after pass, restarting sweep",
			slog.Int("missing", missing), slog.Int("pass", pass), slog.Duration("cooldown", cooldown))
		pass++
		start = 0
		if cooldown > 0 && !w.coolDown(ctx, cooldown, gen) {
			return false, true
		}
	}
}

// coolDown waits out a retry cooldown, ending early on a select. It returns false when the
// Download of generation gen must end instead.
func (w *Worker) coolDown(ctx context.Context, d time.Duration, gen uint64) bool {
	deadline := time.Now().Add(d)
	for !w.ch.StopRequested(gen) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		i, err := concurrency.WaitAny(ctx, remaining, w.ch.Stop, w.ch.SelectPending)
		switch {
		case err != nil:
			return false
		case i == 0:
			// may be left over from an older generation; the watermark decides
			w.ch.Stop.Clear()
		default:
			return true
		}
	}
	return false
}

// fetchTrack runs the per-track pipeline; a panic fails only this track.
func (w *Worker) fetchTrack(ctx context.Context, p *domain.Playlist, track domain.Track, params domain.DownloadParams) (updated domain.Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("track pipeline panicked: %v", r)
		}
	}()
	return w.pipeline(ctx, p, track, params)
}

// retryCooldown is cooldown * exponent^(pass-1), capped at RetryCooldownMax.
func retryCooldown(params domain.DownloadParams, pass int) time.Duration {
	if params.RetryCooldown <= 0 {
		return 0
	}
	exp := params.RetryExponent
	if exp < 1 {
		exp = 1
	}
	d := time.Duration(float64(params.RetryCooldown) * math.Pow(exp, float64(pass-1)))
	if params.RetryCooldownMax > 0 && (d > params.RetryCooldownMax || d < 0) {
		d = params.RetryCooldownMax
	}
	return d
}

func clampIndex(i, n int) int {
	if i < 0 || i >= n {
		return 0
	}
	return i
}

var _ Loop = (*Worker)(nil)
