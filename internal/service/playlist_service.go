package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// Downloader is the scheduler-side handle on the download worker. *downloader.Client implements it.
type Downloader interface {
	Initialize(url string) error
	DownloadPlaylist(playlist *domain.Playlist, start int) error
	Restart(playlist *domain.Playlist, start int) error
	Stop()
	Select(i int)
	Close()
	IsDownloading() bool
	Active() string
}

// PlaylistService owns the playlist table and routes bus traffic: front-end actions go to
// the sequencer or the downloader, and downloader results are folded back into the owned
// playlists and persisted.
//
// Thread-safety: All operations are thread-safe via sync.Mutex. Bus handlers run on the
// scheduler one at a time.
type PlaylistService struct {
	// Dependencies (injected)
	logger     *slog.Logger
	reg        *concurrency.Registry
	bus        ports.EventBus
	repository ports.PlaylistRepository
	presence   ports.FilePresence
	sequencer  *Sequencer
	downloads  Downloader

	// State
	mu        sync.Mutex
	playlists map[string]*domain.Playlist
	current   string // playing now
	last      string // opened most recently, kept after the session ends
	subs      []domain.SubscriptionID
}

// NewPlaylistService creates a playlist service. Call Start to subscribe it.
func NewPlaylistService(
	logger *slog.Logger,
	reg *concurrency.Registry,
	bus ports.EventBus,
	repository ports.PlaylistRepository,
	presence ports.FilePresence,
	sequencer *Sequencer,
	downloads Downloader,
) *PlaylistService {
	return &PlaylistService{
		logger:     logger,
		reg:        reg,
		bus:        bus,
		repository: repository,
		presence:   presence,
		sequencer:  sequencer,
		downloads:  downloads,
		playlists:  make(map[string]*domain.Playlist),
	}
}

// Start subscribes the handlers and schedules the snapshot scan for when the scheduler runs.
func (s *PlaylistService) Start() error {
	handlers := map[domain.Topic]func(context.Context, domain.Event){
		domain.TopicActionLoadURL:                s.onLoadURL,
		domain.TopicPlaylistInitializationFinish: s.onInitialized,
		domain.TopicDownloadStartRequest:         s.onDownloadRequest,
		domain.TopicDownloadStop:                 func(context.Context, domain.Event) { s.downloads.Stop() },
		domain.TopicActionOpenPlaylist:           s.onOpen,
		domain.TopicActionPlay:                   s.onPlay,
		domain.TopicActionSkip:                   func(context.Context, domain.Event) { s.sequencer.Skip() },
		domain.TopicActionPrevious:               func(context.Context, domain.Event) { s.sequencer.Previous() },
		domain.TopicActionShuffle:                s.onShuffleAction,
		domain.TopicActionSelect:                 s.onSelect,
		domain.TopicActionLoop:                   func(context.Context, domain.Event) { s.sequencer.ToggleLoop() },
		domain.TopicActionVolume:                 s.onVolume,
		domain.TopicActionMute:                   s.onMute,
		domain.TopicActionSeek:                   s.onSeek,
		domain.TopicActionHome:                   func(context.Context, domain.Event) { s.sequencer.Stop() },
		domain.TopicActionQuit:                   s.onQuit,
		domain.TopicPlaylistTrackDownload:        s.onTrackDownloaded,
		domain.TopicPlaylistDownloadFinish:       s.onDownloadFinished,
		domain.TopicPlaylistShuffle:              s.onShuffled,
		domain.TopicAudioManagerEnd:              s.onSequencerEnd,
		domain.TopicProgramClose:                 s.onProgramClose,
	}

	// subscribe in catalogue order so the subscription list is deterministic
	var errs []error
	subs := make([]domain.SubscriptionID, 0, len(handlers))
	for _, topic := range domain.AllTopics() {
		handler, ok := handlers[topic]
		if !ok {
			continue
		}
		id, err := s.bus.Subscribe(topic, ports.SubscriberFunc(handler))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		subs = append(subs, id)
	}

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()

	s.reg.ScheduleOnStart(s.scan)
	return errors.Join(errs...)
}

// Shutdown removes the subscriptions.
func (s *PlaylistService) Shutdown() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, id := range subs {
		s.bus.Unsubscribe(id)
	}
}

// Add registers a playlist and persists its snapshot.
func (s *PlaylistService) Add(playlist *domain.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.playlists[playlist.Name]; exists {
		s.mu.Unlock()
		s.logger.Warn("playlist already exists", slog.String("playlist", playlist.Name))
		return domain.ErrPlaylistExists
	}
	s.playlists[playlist.Name] = playlist
	s.mu.Unlock()

	s.refreshDownloaded(playlist)
	s.save(playlist)
	s.publish(domain.NewPlaylistAddedEvent(playlist.Name))
	return nil
}

// Playlist returns an owned playlist by name.
func (s *PlaylistService) Playlist(name string) (*domain.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[name]
	if !ok {
		return nil, domain.ErrPlaylistNotFound
	}
	return p, nil
}

// Playlists returns the names of every known playlist, sorted.
func (s *PlaylistService) Playlists() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := lo.Keys(s.playlists)
	sort.Strings(names)
	return names
}

// Current returns the playlist opened for playback, "" when none.
func (s *PlaylistService) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Last returns the playlist opened most recently, "" when none.
func (s *PlaylistService) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Open starts playing a playlist and points the downloader at it.
func (s *PlaylistService) Open(name string) error {
	p, err := s.Playlist(name)
	if err != nil {
		s.logger.Warn("cannot open unknown playlist", slog.String("playlist", name))
		return err
	}
	if err := s.sequencer.Load(p); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = name
	s.last = name
	s.mu.Unlock()
	s.publish(domain.NewCurrentPlaylistEvent(name))

	if !s.refreshDownloaded(p) && s.downloads.Active() != name {
		s.download(p, 0)
	}
	return nil
}

// scan loads every stored snapshot. It runs once on the scheduler at startup.
func (s *PlaylistService) scan() {
	stored, err := s.repository.LoadAll()
	if err != nil {
		s.logger.Error("failed to scan playlists", slog.Any("error", err))
		return
	}

	added := 0
	for _, p := range stored {
		s.mu.Lock()
		_, exists := s.playlists[p.Name]
		if !exists {
			s.playlists[p.Name] = p
		}
		s.mu.Unlock()
		if exists {
			continue
		}
		s.refreshDownloaded(p)
		s.publish(domain.NewPlaylistAddedEvent(p.Name))
		added++
	}
	s.logger.Info("playlists loaded", slog.Int("count", added))
}

// download starts a session for p, replacing another playlist's session.
func (s *PlaylistService) download(p *domain.Playlist, start int) {
	var err error
	if active := s.downloads.Active(); active != "" && active != p.Name {
		err = s.downloads.Restart(p, start)
	} else {
		err = s.downloads.DownloadPlaylist(p, start)
	}
	if err != nil {
		s.logger.Warn("download not started", slog.String("playlist", p.Name), slog.Any("error", err))
	}
}

// refreshDownloaded derives the Downloaded flag from the files and returns it.
func (s *PlaylistService) refreshDownloaded(p *domain.Playlist) bool {
	present := s.presence.DownloadedMapFor(p)
	p.Downloaded = lo.EveryBy(p.Tracks, func(t domain.Track) bool { return present[t.ID] })
	p.ThumbnailDownloaded = s.presence.IsThumbnailDownloaded(p.ThumbnailID)
	return p.Downloaded
}

func (s *PlaylistService) onLoadURL(_ context.Context, e domain.Event) {
	action, ok := e.(domain.LoadURLAction)
	if !ok || action.URL == "" {
		return
	}
	s.logger.Info("initializing playlist", slog.String("url", action.URL))
	if err := s.downloads.Initialize(action.URL); err != nil {
		s.logger.Warn("playlist initialization not sent", slog.Any("error", err))
		return
	}
	s.publish(domain.NewInitializationStartEvent(action.URL))
}

func (s *PlaylistService) onInitialized(_ context.Context, e domain.Event) {
	finish, ok := e.(domain.InitializationFinishEvent)
	if !ok {
		return
	}
	p, ok := finish.Playlist.Get()
	if !ok {
		s.logger.Warn("playlist initialization failed")
		return
	}

	if err := s.Add(p); errors.Is(err, domain.ErrPlaylistExists) {
		// a known playlist keeps its order; only the tracks it lacked are downloaded
		p, _ = s.Playlist(p.Name)
	} else if err != nil {
		s.logger.Warn("initialized playlist rejected", slog.String("playlist", p.Name), slog.Any("error", err))
		return
	}
	s.logger.Info("beginning download", slog.String("playlist", p.DisplayName))
	s.download(p, 0)
}

func (s *PlaylistService) onDownloadRequest(_ context.Context, e domain.Event) {
	req, ok := e.(domain.DownloadStartRequestEvent)
	if !ok {
		return
	}
	p, err := s.Playlist(req.Playlist)
	if err != nil {
		s.logger.Warn("download requested for unknown playlist", slog.String("playlist", req.Playlist))
		return
	}
	s.download(p, req.StartIndex)
}

func (s *PlaylistService) onOpen(_ context.Context, e domain.Event) {
	if open, ok := e.(domain.PlaylistEvent); ok {
		if err := s.Open(open.Playlist); err != nil {
			s.logger.Warn("playlist not opened", slog.String("playlist", open.Playlist), slog.Any("error", err))
		}
	}
}

func (s *PlaylistService) onPlay(_ context.Context, _ domain.Event) {
	if s.sequencer.Running() {
		if err := s.sequencer.TogglePause(); err != nil {
			s.logger.Debug("play toggle ignored", slog.Any("error", err))
		}
		return
	}
	if last := s.Last(); last != "" {
		if err := s.Open(last); err != nil {
			s.logger.Warn("playlist not reopened", slog.String("playlist", last), slog.Any("error", err))
		}
	}
}

func (s *PlaylistService) onShuffleAction(_ context.Context, _ domain.Event) {
	if s.sequencer.Shuffle() {
		return
	}
	// nothing is playing: shuffle the last opened playlist directly
	p, err := s.Playlist(s.Last())
	if err != nil {
		return
	}
	p.Shuffle()
	s.publish(domain.NewPlaylistShuffleEvent(p.Name))
}

func (s *PlaylistService) onSelect(_ context.Context, e domain.Event) {
	sel, ok := e.(domain.IndexEvent)
	if !ok {
		return
	}
	if err := s.sequencer.Select(sel.Index); err != nil {
		s.logger.Warn("select ignored", slog.Int("index", sel.Index), slog.Any("error", err))
		return
	}
	if s.downloads.Active() == s.sequencer.Playlist() {
		s.downloads.Select(sel.Index)
	}
}

func (s *PlaylistService) onVolume(_ context.Context, e domain.Event) {
	if v, ok := e.(domain.VolumeEvent); ok {
		if err := s.sequencer.SetVolume(v.Volume); err != nil {
			s.logger.Warn("volume ignored", slog.Float64("volume", v.Volume), slog.Any("error", err))
		}
	}
}

func (s *PlaylistService) onMute(_ context.Context, _ domain.Event) {
	if _, err := s.sequencer.ToggleMute(); err != nil {
		s.logger.Warn("mute failed", slog.Any("error", err))
	}
}

func (s *PlaylistService) onSeek(_ context.Context, e domain.Event) {
	if seek, ok := e.(domain.SeekAction); ok {
		if err := s.sequencer.Seek(seek.Position); err != nil {
			s.logger.Debug("seek ignored", slog.Any("error", err))
		}
	}
}

func (s *PlaylistService) onQuit(_ context.Context, _ domain.Event) {
	s.publish(domain.NewSignalEvent(domain.TopicProgramClose))
}

func (s *PlaylistService) onTrackDownloaded(_ context.Context, e domain.Event) {
	done, ok := e.(domain.TrackDownloadEvent)
	if !ok || !done.Success {
		return
	}
	p, err := s.Playlist(done.Playlist)
	if err != nil {
		return
	}
	if !p.ReconcileTrack(done.Track) {
		s.logger.Warn("downloaded track not in playlist",
			slog.String("playlist", done.Playlist), slog.String("track", done.Track.Name))
		return
	}
	s.save(p)
	s.sequencer.NotifyDownload()
}

func (s *PlaylistService) onDownloadFinished(_ context.Context, e domain.Event) {
	finish, ok := e.(domain.PlaylistDownloadFinishEvent)
	if !ok {
		return
	}
	// the sequencer re-evaluates whether waiting is still worth it
	defer s.sequencer.NotifyDownload()

	p, err := s.Playlist(finish.Playlist)
	if err != nil {
		return
	}
	p.MergeAlbums(finish.Albums)
	s.refreshDownloaded(p)
	s.save(p)
	s.logger.Info("playlist download finished",
		slog.String("playlist", p.Name), slog.Bool("complete", finish.Complete))
}

func (s *PlaylistService) onShuffled(_ context.Context, e domain.Event) {
	shuffled, ok := e.(domain.PlaylistEvent)
	if !ok {
		return
	}
	p, err := s.Playlist(shuffled.Playlist)
	if err != nil {
		return
	}
	s.save(p)
	if p.Downloaded || s.downloads.Active() != p.Name {
		return
	}
	if err := s.downloads.Restart(p, 0); err != nil {
		s.logger.Warn("download not restarted after shuffle", slog.String("playlist", p.Name), slog.Any("error", err))
	}
}

func (s *PlaylistService) onSequencerEnd(_ context.Context, e domain.Event) {
	end, ok := e.(domain.SequencerEndEvent)
	if !ok {
		return
	}
	if s.downloads.Active() == end.Playlist {
		s.downloads.Stop()
	}

	s.mu.Lock()
	changed := s.current != ""
	s.current = ""
	s.mu.Unlock()
	if changed {
		s.publish(domain.NewCurrentPlaylistEvent(""))
	}
}

func (s *PlaylistService) onProgramClose(_ context.Context, _ domain.Event) {
	s.logger.Info("program close requested")
	s.sequencer.Stop()
	s.downloads.Close()
	s.reg.ProgramClose().Set()
}

func (s *PlaylistService) save(p *domain.Playlist) {
	if err := s.repository.Save(p); err != nil {
		s.logger.Warn("failed to save playlist snapshot", slog.String("playlist", p.Name), slog.Any("error", err))
	}
}

func (s *PlaylistService) publish(event domain.Event) {
	if err := s.bus.Publish(event); err != nil {
		s.logger.Debug("event not published", slog.String("topic", string(event.Topic())), slog.Any("error", err))
	}
}
