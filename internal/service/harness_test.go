package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/storage"
	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
)

const eventTimeout = 3 * time.Second

// recorder keeps every event published on the bus, together with whether the
// track of a TrackEvent was downloaded when the event was handled.
type recorder struct {
	presence *storage.Presence

	mu         sync.Mutex
	events     []domain.Event
	downloaded []bool
}

func (r *recorder) HandleEvent(_ context.Context, e domain.Event) {
	present := false
	if te, ok := e.(domain.TrackEvent); ok {
		present = r.presence.IsTrackDownloaded(te.Track.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.downloaded = append(r.downloaded, present)
}

// indices returns the indices of the TrackEvents on a topic, in publish order.
func (r *recorder) indices(topic domain.Topic) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, e := range r.events {
		if te, ok := e.(domain.TrackEvent); ok && te.Topic() == topic {
			out = append(out, te.Index)
		}
	}
	return out
}

func (r *recorder) count(topic domain.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Topic() == topic {
			n++
		}
	}
	return n
}

func (r *recorder) last(topic domain.Topic) domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Topic() == topic {
			return r.events[i]
		}
	}
	return nil
}

// startsWereDownloaded reports whether every AUDIO_TRACK_START named a downloaded track.
func (r *recorder) startsWereDownloaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.Topic() == domain.TopicAudioTrackStart && !r.downloaded[i] {
			return false
		}
	}
	return true
}

// fakeDownloads stands in for the download client.
type fakeDownloads struct {
	mu          sync.Mutex
	downloading bool
	active      string
	calls       []string
	closed      bool

	// onQuery runs, outside the lock, every time the sequencer asks IsDownloading.
	onQuery func()
}

func (f *fakeDownloads) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDownloads) Initialize(url string) error {
	f.record("initialize " + url)
	return nil
}

func (f *fakeDownloads) DownloadPlaylist(p *domain.Playlist, start int) error {
	f.record(fmt.Sprintf("download %s %d", p.Name, start))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloading = true
	f.active = p.Name
	return nil
}

func (f *fakeDownloads) Restart(p *domain.Playlist, start int) error {
	f.record(fmt.Sprintf("restart %s %d", p.Name, start))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloading = true
	f.active = p.Name
	return nil
}

func (f *fakeDownloads) Stop() {
	f.record("stop")
	f.setDownloading(false)
}

func (f *fakeDownloads) Select(i int) { f.record(fmt.Sprintf("select %d", i)) }

func (f *fakeDownloads) Close() {
	f.record("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeDownloads) IsDownloading() bool {
	f.mu.Lock()
	hook := f.onQuery
	downloading := f.downloading
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return downloading
}

func (f *fakeDownloads) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.downloading {
		return ""
	}
	return f.active
}

func (f *fakeDownloads) setDownloading(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloading = v
}

func (f *fakeDownloads) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// harness wires a running scheduler, a bus, the mock engine and in-memory storage.
type harness struct {
	reg       *concurrency.Registry
	bus       *eventbus.TopicBus
	engine    *mock.Engine
	fs        afero.Fs
	layout    storage.Layout
	presence  *storage.Presence
	repo      *storage.SnapshotRepository
	downloads *fakeDownloads
	rec       *recorder
	seq       *Sequencer

	done chan error
}

func testSequencerConfig() SequencerConfig {
	return SequencerConfig{
		ProgressInterval: 10 * time.Millisecond,
		DownloadPoll:     20 * time.Millisecond,
		PauseFirstTrack:  true,
		Volume:           0.8,
	}
}

func newHarness(t *testing.T, cfg SequencerConfig) *harness {
	t.Helper()
	log := logger.NewTestLogger()

	fs := afero.NewMemMapFs()
	layout := storage.NewLayout("/music", "mp3")
	require.NoError(t, layout.Ensure(fs))

	engine := mock.NewEngine()
	require.NoError(t, engine.Initialize(44100))

	reg := concurrency.NewRegistry(log)
	bus := eventbus.NewTopicBus(log, reg)
	eventbus.DeclareStandardTopics(bus)

	h := &harness{
		reg:       reg,
		bus:       bus,
		engine:    engine,
		fs:        fs,
		layout:    layout,
		presence:  storage.NewPresence(fs, layout),
		repo:      storage.NewSnapshotRepository(fs, layout, log),
		downloads: &fakeDownloads{},
		done:      make(chan error, 1),
	}
	h.rec = &recorder{presence: h.presence}
	for _, topic := range domain.AllTopics() {
		_, err := bus.Subscribe(topic, h.rec)
		require.NoError(t, err)
	}

	seq, err := NewSequencer(log, reg, engine, bus, h.presence, layout, h.downloads, cfg)
	require.NoError(t, err)
	h.seq = seq
	return h
}

// run starts the scheduler; the returned function closes the program and waits for it.
func (h *harness) run(t *testing.T) (stop func()) {
	t.Helper()
	go func() { h.done <- h.reg.Run(context.Background()) }()
	return func() {
		h.reg.ProgramClose().Set()
		select {
		case err := <-h.done:
			assert.NoError(t, err)
		case <-time.After(eventTimeout):
			t.Error("scheduler did not stop")
		}
		h.reg.Close()
	}
}

func (h *harness) writeTrack(t *testing.T, id domain.ID) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, h.layout.TrackPath(id), []byte("audio"), 0o644))
}

// waitIndices waits until the TrackEvents on topic carry exactly want.
func (h *harness) waitIndices(t *testing.T, topic domain.Topic, want ...int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, h.rec.indices(topic))
	}, eventTimeout, time.Millisecond, "%s indices: got %v, want %v", topic, h.rec.indices(topic), want)
}

func (h *harness) waitCount(t *testing.T, topic domain.Topic, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.count(topic) >= n },
		eventTimeout, time.Millisecond, "%s: got %d events, want %d", topic, h.rec.count(topic), n)
}

// finishCurrent plays the loaded track to its end.
func (h *harness) finishCurrent(t *testing.T) {
	t.Helper()
	handle, ok := h.engine.Current()
	require.True(t, ok, "no track loaded")
	require.NoError(t, h.engine.Finish(handle))
}

func newTestPlaylist(n int) *domain.Playlist {
	p := domain.NewPlaylistStub("https://example.com/playlist?list=mix")
	p.Name = "Mix"
	p.DisplayName = "Mix"
	p.ThumbnailID = 900
	tracks := make([]domain.Track, n)
	for i := range tracks {
		tracks[i] = domain.Track{
			ID:          domain.ID(i + 1),
			SourceURL:   fmt.Sprintf("https://example.com/v/%d", i),
			Name:        fmt.Sprintf("Track_%d", i),
			DisplayName: fmt.Sprintf("Track %d", i),
			Index:       i,
		}
	}
	p.SetTracks(tracks)
	return p
}
