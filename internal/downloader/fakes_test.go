package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/storage"
	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

var errNetwork = errors.New("connection reset")

// fakeSource serves a fixed remote playlist and writes fake media into the filesystem.
type fakeSource struct {
	fs     afero.Fs
	remote *ports.RemotePlaylist

	mu       sync.Mutex
	failures map[string]int // remaining failures per URL
	panics   map[string]bool
	fetched  []string
	onFetch  func(url string)
}

func (s *fakeSource) Extract(_ context.Context, url string) (*ports.RemotePlaylist, error) {
	if s.remote == nil {
		return nil, fmt.Errorf("no playlist at %s", url)
	}
	return s.remote, nil
}

func (s *fakeSource) FetchAudio(_ context.Context, url, dir string) (string, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, url)
	hook := s.onFetch
	fail := s.failures[url] > 0
	if fail {
		s.failures[url]--
	}
	boom := s.panics[url]
	s.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if boom {
		panic("decoder exploded")
	}
	if fail {
		return "", errNetwork
	}
	path := filepath.Join(dir, strings.NewReplacer("/", "_", ":", "_").Replace(url)+".webm")
	return path, afero.WriteFile(s.fs, path, []byte("media"), 0o644)
}

func (s *fakeSource) fetchCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.fetched {
		if u == url {
			n++
		}
	}
	return n
}

// copyTranscoder copies the source file and reports a fixed length.
type copyTranscoder struct {
	fs afero.Fs
}

func (c copyTranscoder) Transcode(_ context.Context, src, dst string, _ domain.DownloadParams) error {
	data, err := afero.ReadFile(c.fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, dst, data, 0o644)
}

func (c copyTranscoder) Length(string) (domain.Seconds, error) {
	return 120, nil
}

// fileImages writes a placeholder image.
type fileImages struct {
	fs afero.Fs
}

func (f fileImages) FetchImage(_ context.Context, _, dest string, _ int) error {
	return afero.WriteFile(f.fs, dest, []byte("jpeg"), 0o644)
}

// hashIDs allocates IDs without a pipe.
type hashIDs struct{}

func (hashIDs) IDFor(_ context.Context, name string, _ domain.IDKind) (domain.ID, error) {
	return storage.HashName(name), nil
}

// fakeBus records published events.
type fakeBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *fakeBus) DeclareTopic(domain.Topic) error   { return nil }
func (b *fakeBus) HasTopic(domain.Topic) bool        { return true }
func (b *fakeBus) Unsubscribe(domain.SubscriptionID) {}
func (b *fakeBus) Subscribe(domain.Topic, ports.Subscriber) (domain.SubscriptionID, error) {
	return "", nil
}

func (b *fakeBus) Publish(event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBus) topics() []domain.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Topic, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Topic())
	}
	return out
}

func (b *fakeBus) has(topic domain.Topic) bool {
	for _, t := range b.topics() {
		if t == topic {
			return true
		}
	}
	return false
}

// harness wires a worker over an in-memory filesystem.
type harness struct {
	fs       afero.Fs
	layout   storage.Layout
	presence *storage.Presence
	source   *fakeSource
	ch       *Channels
	worker   *Worker
	reg      *concurrency.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	layout := storage.NewLayout("/music", "mp3")
	require.NoError(t, layout.Ensure(fs))

	reg := concurrency.NewRegistry(logger.NewTestLogger())
	ch, err := NewChannels(reg)
	require.NoError(t, err)

	h := &harness{
		fs:       fs,
		layout:   layout,
		presence: storage.NewPresence(fs, layout),
		source:   &fakeSource{fs: fs, failures: map[string]int{}, panics: map[string]bool{}},
		ch:       ch,
		reg:      reg,
	}
	h.worker = NewWorker(logger.NewTestLogger(), ch, hashIDs{}, Deps{
		Source:     h.source,
		Transcoder: copyTranscoder{fs: fs},
		Images:     fileImages{fs: fs},
		Presence:   h.presence,
		Paths:      layout,
		Fs:         fs,
	})
	return h
}

// start runs the worker; the returned function stops it and waits for the loop to exit.
func (h *harness) start(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()
	return func() {
		cancel()
		<-done
	}
}

// next reads one response, failing the test after a timeout.
func (h *harness) next(t *testing.T) domain.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.ch.Responses.Get(ctx)
	require.NoError(t, err, "timed out waiting for a worker response")
	return resp
}

// until reads responses up to and including the first one of type T.
func until[T domain.Response](t *testing.T, h *harness) ([]domain.Response, T) {
	t.Helper()
	var seen []domain.Response
	for {
		resp := h.next(t)
		seen = append(seen, resp)
		if last, ok := resp.(T); ok {
			return seen, last
		}
	}
}

// startIndices lists the indices of every TrackDownloadStart in order.
func startIndices(responses []domain.Response) []int {
	var out []int
	for _, r := range responses {
		if s, ok := r.(domain.TrackDownloadStart); ok {
			out = append(out, s.Index)
		}
	}
	return out
}

func newTestPlaylist(n int) *domain.Playlist {
	p := domain.NewPlaylistStub("https://example.com/playlist?list=mix")
	p.Name = "Mix"
	p.DisplayName = "Mix"
	p.ThumbnailURL = "https://example.com/mix.jpg"
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
