// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/audio/beepengine"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/console"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/discord"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/hotkey"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/metadata"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/source/ytdlp"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/storage"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/tagging"
	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/config"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/downloader"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
	"github.com/tejashwikalptaru/tubetune/internal/service"
	"golang.org/x/sync/errgroup"
)

const (
	// ConsoleThreadName is the registry name of the stdin reader.
	ConsoleThreadName = "Console Input"

	httpTimeout = 30 * time.Second
)

// Options select the collaborators of an Application. Zero values pick the production ones.
type Options struct {
	Config config.Config
	Logger *slog.Logger

	// Fs holds the library; defaults to the OS filesystem
	Fs afero.Fs

	// SampleRate of the audio output
	SampleRate int

	// MockAudio plays into the in-memory engine instead of the sound card
	MockAudio bool

	// Engine, Source and Transcoder replace the real adapters when set
	Engine     ports.AudioEngine
	Source     ports.MediaSource
	Transcoder ports.Transcoder

	// Input and Output are the console streams; default to stdin and stdout
	Input  io.Reader
	Output io.Writer

	// Hotkeys reads single key presses from Input instead of command lines
	Hotkeys bool

	// ActivitySink replaces the Discord status when set; presence.enabled still applies
	ActivitySink ports.ActivitySink
}

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Running the scheduler, the download worker and the console until shutdown
// - Releasing the audio output and the subscriptions afterwards
type Application struct {
	// Core dependencies
	logger *slog.Logger
	cfg    config.Config
	fs     afero.Fs
	layout storage.Layout
	input  io.Reader

	// Infrastructure
	registry *concurrency.Registry
	bus      *eventbus.TopicBus
	engine   ports.AudioEngine

	// Storage
	ids        *storage.IDTable
	presence   *storage.Presence
	repository *storage.SnapshotRepository

	// Downloader
	channels   *downloader.Channels
	client     *downloader.Client
	supervisor *downloader.Supervisor

	// Services
	sequencer *service.Sequencer
	playlists *service.PlaylistService
	activity  *service.ActivityService // nil unless presence is enabled

	// Front end
	view      ports.View
	presenter *console.Presenter
	console   *console.Console
	keys      *hotkey.Listener // nil unless running in key mode
}

// DefaultOptions returns options for the given configuration.
func DefaultOptions(cfg config.Config) Options {
	return Options{
		Config:     cfg,
		SampleRate: 44100,
	}
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(opts Options) (*Application, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger(logger.DefaultConfig())
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}

	cfg := opts.Config
	log := opts.Logger
	app := &Application{
		logger: log,
		cfg:    cfg,
		fs:     opts.Fs,
		layout: storage.NewLayout(cfg.Output.Folder, cfg.Download.Format),
		input:  opts.Input,
	}
	log.Info("initializing application", slog.String("version", GetVersionInfo().FullString()),
		slog.String("library", cfg.Output.Folder))

	// Step 1: Library folders and storage
	if err := app.layout.Ensure(app.fs); err != nil {
		return nil, fmt.Errorf("failed to prepare library folder: %w", err)
	}
	app.ids = storage.NewIDTable(app.fs, app.layout, log.With(slog.String("component", "ids")))
	app.presence = storage.NewPresence(app.fs, app.layout)
	app.repository = storage.NewSnapshotRepository(app.fs, app.layout, log.With(slog.String("component", "snapshots")))

	// Step 2: Registry and event bus
	app.registry = concurrency.NewRegistry(log.With(slog.String("component", "registry")))
	app.bus = eventbus.NewTopicBus(log.With(slog.String("component", "eventbus")), app.registry)
	eventbus.DeclareStandardTopics(app.bus)

	// Step 3: Audio engine
	engine, err := app.newEngine(opts)
	if err != nil {
		return nil, err
	}
	app.engine = engine

	// Step 4: Download worker, its supervisor and the caller-side client
	channels, err := downloader.NewChannels(app.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create downloader channels: %w", err)
	}
	app.channels = channels
	app.client = downloader.NewClient(log.With(slog.String("component", "download-client")),
		channels, app.bus, cfg.DownloadParams())
	worker := downloader.NewWorker(log.With(slog.String("component", "download-worker")),
		channels, app.client, app.workerDeps(opts))
	app.supervisor = downloader.NewSupervisor(log.With(slog.String("component", "download-supervisor")),
		worker, channels, 0, 0)

	// Step 5: Services
	app.sequencer, err = service.NewSequencer(
		log.With(slog.String("service", "sequencer")),
		app.registry,
		app.engine,
		app.bus,
		app.presence,
		app.layout,
		app.client,
		service.SequencerConfig{
			ProgressInterval: cfg.Playback.ProgressInterval,
			PauseFirstTrack:  cfg.Playback.PauseFirstTrack,
			Volume:           cfg.Playback.Volume,
		},
	)
	if err != nil {
		_ = app.engine.Shutdown()
		return nil, fmt.Errorf("failed to create sequencer: %w", err)
	}
	app.playlists = service.NewPlaylistService(
		log.With(slog.String("service", "playlist")),
		app.registry,
		app.bus,
		app.repository,
		app.presence,
		app.sequencer,
		app.client,
	)

	if cfg.Presence.Enabled {
		sink := opts.ActivitySink
		if sink == nil {
			sink, err = discord.NewStatusSink(log.With(slog.String("component", "discord")), cfg.Presence.Token)
			if err != nil {
				_ = app.engine.Shutdown()
				return nil, fmt.Errorf("failed to create presence: %w", err)
			}
		}
		app.activity = service.NewActivityService(log.With(slog.String("service", "activity")),
			app.registry, app.bus, sink, service.ActivityConfig{MinInterval: cfg.Presence.Interval})
	}

	// Step 6: Console front end
	app.view = console.NewTerminal(opts.Output)
	app.presenter = console.NewPresenter(log.With(slog.String("component", "presenter")), app.bus, app.view)
	app.console = console.NewConsole(log.With(slog.String("component", "console")), app.bus, app.view, app.playlists)
	if opts.Hotkeys {
		app.keys, err = hotkey.NewListener(log.With(slog.String("component", "hotkeys")), app.bus, cfg.Hotkeys.Bindings())
		if err != nil {
			_ = app.engine.Shutdown()
			return nil, err
		}
	}

	// Step 7: Subscriptions and the shutdown protocol
	starts := []error{app.playlists.Start(), app.presenter.Start()}
	if app.activity != nil {
		starts = append(starts, app.activity.Start())
	}
	if err := errors.Join(starts...); err != nil {
		app.release()
		return nil, fmt.Errorf("failed to subscribe services: %w", err)
	}
	app.registry.AwaitOnShutdown(service.SequencerTaskName)
	app.registry.AwaitSignalOnShutdown(downloader.ClosedSignalName)

	return app, nil
}

func (a *Application) newEngine(opts Options) (ports.AudioEngine, error) {
	engine := opts.Engine
	switch {
	case engine != nil:
	case opts.MockAudio:
		a.logger.Info("using the in-memory audio engine")
		engine = mock.NewEngine()
	default:
		engine = beepengine.NewEngine(a.logger.With(slog.String("engine", "beep")), a.fs, beepengine.SpeakerOutput())
	}
	if err := engine.Initialize(opts.SampleRate); err != nil {
		return nil, fmt.Errorf("failed to initialize audio engine: %w", err)
	}
	return engine, nil
}

func (a *Application) workerDeps(opts Options) downloader.Deps {
	cfg := a.cfg
	client := &http.Client{Timeout: httpTimeout}

	deps := downloader.Deps{
		Source:     opts.Source,
		Transcoder: opts.Transcoder,
		Tagger:     tagging.NewTagger(a.logger.With(slog.String("component", "tagger")), a.fs, cfg.Download.Format),
		Images:     metadata.NewImageFetcher(a.logger.With(slog.String("component", "images")), a.fs, client),
		Presence:   a.presence,
		Paths:      a.layout,
		Fs:         a.fs,
	}
	if deps.Source == nil {
		deps.Source = ytdlp.NewSource(a.logger.With(slog.String("tool", "yt-dlp")), cfg.Download.YtDlp, nil)
	}
	if deps.Transcoder == nil {
		deps.Transcoder = ytdlp.NewTranscoder(a.logger.With(slog.String("tool", "ffmpeg")),
			cfg.Download.FFmpeg, nil, beepengine.Probe(a.fs))
	}
	if cfg.Metadata.Enabled {
		deps.Lookup = metadata.NewMusicBrainz(a.logger.With(slog.String("component", "musicbrainz")), metadata.Options{
			UserAgent:  cfg.Metadata.UserAgent,
			CachePath:  filepath.Join(a.layout.CacheDir(), "metadata.json"),
			CacheTTL:   cfg.Metadata.CacheTTL,
			CacheFs:    storage.GacheFs{Fs: a.fs},
			HTTPClient: client,
		})
	}
	return deps
}

// Run drives the program until it shuts down, either through ACTION_QUIT or because ctx
// was cancelled. Cancelling ctx asks for the same orderly shutdown as quitting.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("TubeTune started")
	defer a.release()

	threads := []struct {
		name string
		fn   func(context.Context) error
	}{
		{downloader.IDThreadName, func(ctx context.Context) error {
			return a.channels.IDs.Serve(ctx, a.ids, a.logger.With(slog.String("component", "id-pipe")))
		}},
		{downloader.WorkerThreadName, a.supervisor.Run},
		{downloader.ListenerThreadName, a.client.Listen},
		{ConsoleThreadName, a.readInput},
	}
	if a.activity != nil {
		threads = append(threads, struct {
			name string
			fn   func(context.Context) error
		}{service.ActivityThreadName, a.activity.Run})
	}
	for _, th := range threads {
		if _, err := a.registry.CreateThread(th.name, th.fn); err != nil {
			a.registry.Close()
			return fmt.Errorf("failed to start %s: %w", th.name, err)
		}
	}

	stopped := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(stopped)
		// the scheduler gets its own context so shutdown can finish after ctx is cancelled
		return a.registry.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		select {
		case <-stopped:
		case <-gctx.Done():
			a.logger.Info("interrupted, closing")
			_ = a.bus.Publish(domain.NewSignalEvent(domain.TopicActionQuit))
		}
		return nil
	})

	err := g.Wait()
	a.registry.Close()
	a.logger.Info("application shutdown complete")
	return err
}

// readInput runs the line console, or the hotkey listener in key mode.
func (a *Application) readInput(ctx context.Context) error {
	if a.keys == nil {
		return a.console.Run(ctx, a.input)
	}
	a.view.ShowMessage(a.keys.Help())
	return a.keys.Run(ctx, a.input)
}

// release drops the subscriptions and closes the audio output.
func (a *Application) release() {
	a.presenter.Shutdown()
	a.playlists.Shutdown()
	if a.activity != nil {
		a.activity.Shutdown()
	}
	if err := a.engine.Shutdown(); err != nil && !errors.Is(err, domain.ErrNotInitialized) {
		a.logger.Warn("failed to shutdown audio engine", slog.Any("error", err))
	}
}

// Playlists returns the playlist service.
func (a *Application) Playlists() *service.PlaylistService {
	return a.playlists
}

// Sequencer returns the playback sequencer.
func (a *Application) Sequencer() *service.Sequencer {
	return a.sequencer
}

// Bus returns the event bus.
func (a *Application) Bus() ports.EventBus {
	return a.bus
}

// Layout returns the library layout.
func (a *Application) Layout() storage.Layout {
	return a.layout
}
