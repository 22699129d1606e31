package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// trackStates names the playback transitions shown by ShowTrack.
var trackStates = map[domain.Topic]string{
	domain.TopicAudioTrackStart:   "playing",
	domain.TopicAudioTrackWait:    "waiting",
	domain.TopicAudioTrackSkipped: "skipped",
	domain.TopicAudioTrackPause:   "paused",
	domain.TopicAudioTrackResume:  "resumed",
	domain.TopicAudioTrackEnd:     "ended",
}

// Presenter maps bus events to View calls.
//
// Thread-safety: handlers run as bus tasks; the view serializes its own output.
type Presenter struct {
	// Dependencies (injected)
	logger *slog.Logger
	bus    ports.EventBus
	view   ports.View

	mu   sync.Mutex
	subs []domain.SubscriptionID
}

// NewPresenter creates a presenter. Call Start to subscribe it.
func NewPresenter(logger *slog.Logger, bus ports.EventBus, view ports.View) *Presenter {
	return &Presenter{logger: logger, bus: bus, view: view}
}

// Start subscribes the presenter to every topic it renders.
func (p *Presenter) Start() error {
	handlers := map[domain.Topic]func(context.Context, domain.Event){
		domain.TopicPlaylistInitializationStart:  p.onInitializationStart,
		domain.TopicPlaylistInitializationFinish: p.onInitializationFinish,
		domain.TopicPlaylistCurrentChange:        p.onCurrentChange,
		domain.TopicPlaylistAdded:                p.onAdded,
		domain.TopicPlaylistTrackDownloadStart:   p.onTrackDownloadStart,
		domain.TopicPlaylistTrackDownload:        p.onTrackDownload,
		domain.TopicPlaylistDownloadFinish:       p.onDownloadFinish,
		domain.TopicPlaylistDownloadCancel:       p.onDownloadCancel,
		domain.TopicPlaylistShuffle:              p.onShuffle,
		domain.TopicAudioTrackProgress:           p.onProgress,
		domain.TopicAudioManagerEnd:              p.onSequencerEnd,
		domain.TopicAudioVolume:                  p.onVolume,
		domain.TopicAudioLoop:                    p.onLoop,
		domain.TopicProgramClose:                 p.onProgramClose,
	}
	for topic := range trackStates {
		handlers[topic] = p.onTrack
	}

	var errs []error
	subs := make([]domain.SubscriptionID, 0, len(handlers))
	for _, topic := range domain.AllTopics() {
		handler, ok := handlers[topic]
		if !ok {
			continue
		}
		id, err := p.bus.Subscribe(topic, ports.SubscriberFunc(handler))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		subs = append(subs, id)
	}

	p.mu.Lock()
	p.subs = subs
	p.mu.Unlock()
	return errors.Join(errs...)
}

// Shutdown removes the subscriptions.
func (p *Presenter) Shutdown() {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, id := range subs {
		p.bus.Unsubscribe(id)
	}
}

func (p *Presenter) onTrack(_ context.Context, e domain.Event) {
	te, ok := e.(domain.TrackEvent)
	if !ok {
		return
	}
	p.view.ShowTrack(trackStates[te.Topic()], te.Index, te.Track)
}

func (p *Presenter) onProgress(_ context.Context, e domain.Event) {
	if pe, ok := e.(domain.TrackProgressEvent); ok {
		p.view.ShowProgress(pe.Index, pe.Position, pe.Duration)
	}
}

func (p *Presenter) onInitializationStart(_ context.Context, e domain.Event) {
	if ie, ok := e.(domain.InitializationStartEvent); ok {
		p.view.ShowMessage("reading playlist " + ie.URL)
	}
}

func (p *Presenter) onInitializationFinish(_ context.Context, e domain.Event) {
	fe, ok := e.(domain.InitializationFinishEvent)
	if !ok {
		return
	}
	playlist, ok := fe.Playlist.Get()
	if !ok {
		p.view.ShowError("could not read the playlist")
		return
	}
	p.view.ShowMessage(fmt.Sprintf("found %q with %d tracks", playlist.DisplayName, playlist.Length))
}

func (p *Presenter) onCurrentChange(_ context.Context, e domain.Event) {
	pe, ok := e.(domain.PlaylistEvent)
	if !ok {
		return
	}
	if pe.Playlist == "" {
		p.view.ShowMessage("home")
		return
	}
	p.view.ShowMessage("now playing " + pe.Playlist)
}

func (p *Presenter) onAdded(_ context.Context, e domain.Event) {
	if pe, ok := e.(domain.PlaylistEvent); ok {
		p.view.ShowMessage("added " + pe.Playlist)
	}
}

func (p *Presenter) onShuffle(_ context.Context, e domain.Event) {
	if pe, ok := e.(domain.PlaylistEvent); ok {
		p.view.ShowMessage("shuffled " + pe.Playlist)
	}
}

func (p *Presenter) onTrackDownloadStart(_ context.Context, e domain.Event) {
	if de, ok := e.(domain.TrackDownloadStartEvent); ok {
		p.view.ShowDownload(de.Playlist, de.Index, de.Track, false, false)
	}
}

func (p *Presenter) onTrackDownload(_ context.Context, e domain.Event) {
	if de, ok := e.(domain.TrackDownloadEvent); ok {
		p.view.ShowDownload(de.Playlist, de.Index, de.Track, true, de.Success)
	}
}

func (p *Presenter) onDownloadFinish(_ context.Context, e domain.Event) {
	fe, ok := e.(domain.PlaylistDownloadFinishEvent)
	if !ok {
		return
	}
	if fe.Complete {
		p.view.ShowMessage(fmt.Sprintf("%s fully downloaded (%d albums)", fe.Playlist, len(fe.Albums)))
		return
	}
	p.view.ShowMessage(fe.Playlist + " download stopped")
}

func (p *Presenter) onDownloadCancel(_ context.Context, _ domain.Event) {
	p.view.ShowMessage("queued download cancelled")
}

func (p *Presenter) onSequencerEnd(_ context.Context, e domain.Event) {
	if se, ok := e.(domain.SequencerEndEvent); ok {
		p.view.ShowMessage("finished " + se.Playlist)
	}
}

func (p *Presenter) onVolume(_ context.Context, e domain.Event) {
	if ve, ok := e.(domain.VolumeEvent); ok {
		p.view.ShowVolume(ve.Volume, ve.Muted)
	}
}

func (p *Presenter) onLoop(_ context.Context, e domain.Event) {
	le, ok := e.(domain.LoopEvent)
	if !ok {
		return
	}
	if le.Enabled {
		p.view.ShowMessage("loop on")
		return
	}
	p.view.ShowMessage("loop off")
}

func (p *Presenter) onProgramClose(_ context.Context, _ domain.Event) {
	p.view.ShowMessage("closing")
}
