// Package metadata links tracks to albums through MusicBrainz and the Cover Art Archive and
// fetches the artwork they point at.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/metafates/gache"
	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

const (
	// DefaultBaseURL is the MusicBrainz web service root.
	DefaultBaseURL = "https://musicbrainz.org/ws/2"

	// DefaultArtworkURL is the Cover Art Archive root.
	DefaultArtworkURL = "https://coverartarchive.org"

	searchLimit = 10

	// minScore drops MusicBrainz candidates the search engine itself ranks poorly
	minScore = 60
)

// cachedMatch remembers one lookup, including lookups without a match.
type cachedMatch struct {
	Found bool             `json:"found"`
	Match ports.AlbumMatch `json:"match"`
}

// Options configure a MusicBrainz client.
type Options struct {
	BaseURL    string
	ArtworkURL string
	UserAgent  string

	// CachePath is where lookups are persisted; CacheTTL bounds their lifetime
	CachePath string
	CacheTTL  time.Duration
	CacheFs   gache.FileSystem

	HTTPClient *http.Client
}

// MusicBrainz implements ports.MetadataLookup against the MusicBrainz recording search.
// Candidates are ranked by fuzzy distance between their title and the track title.
//
// Thread-safety: lookups may run concurrently; the cache is guarded by a mutex.
type MusicBrainz struct {
	logger *slog.Logger
	opts   Options
	client *http.Client

	mu    sync.Mutex
	cache *gache.Cache[map[string]cachedMatch]
}

// NewMusicBrainz creates a lookup client.
func NewMusicBrainz(logger *slog.Logger, opts Options) *MusicBrainz {
	opts.BaseURL = lo.CoalesceOrEmpty(opts.BaseURL, DefaultBaseURL)
	opts.ArtworkURL = lo.CoalesceOrEmpty(opts.ArtworkURL, DefaultArtworkURL)
	opts.UserAgent = lo.CoalesceOrEmpty(opts.UserAgent, "tubetune/dev (https://github.com/tejashwikalptaru/tubetune)")

	m := &MusicBrainz{
		logger: logger,
		opts:   opts,
		client: opts.HTTPClient,
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.CachePath != "" {
		m.cache = gache.New[map[string]cachedMatch](&gache.Options{
			Path:       opts.CachePath,
			Lifetime:   opts.CacheTTL,
			FileSystem: opts.CacheFs,
		})
	}
	return m
}

type recordingSearch struct {
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Score        int    `json:"score"`
	ArtistCredit []struct {
		Name string `json:"name"`
	} `json:"artist-credit"`
	Releases []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"releases"`
}

// LookupAlbum finds the album of a recording. It returns domain.ErrNoMetadata when nothing
// matches well enough.
func (m *MusicBrainz) LookupAlbum(ctx context.Context, artist, title string) (ports.AlbumMatch, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ports.AlbumMatch{}, domain.ErrNoMetadata
	}
	key := strings.ToLower(artist + "|" + title)
	if hit, ok := m.cached(key); ok {
		if !hit.Found {
			return ports.AlbumMatch{}, domain.ErrNoMetadata
		}
		return hit.Match, nil
	}

	recordings, err := m.search(ctx, artist, title)
	if err != nil {
		return ports.AlbumMatch{}, err
	}
	match, found := m.best(title, recordings)
	m.store(key, cachedMatch{Found: found, Match: match})
	if !found {
		m.logger.Debug("no album match", slog.String("artist", artist), slog.String("title", title))
		return ports.AlbumMatch{}, domain.ErrNoMetadata
	}
	m.logger.Debug("album matched", slog.String("title", title), slog.String("album", match.Title))
	return match, nil
}

func (m *MusicBrainz) search(ctx context.Context, artist, title string) ([]recording, error) {
	query := fmt.Sprintf("recording:%q", title)
	if artist != "" {
		query += fmt.Sprintf(" AND artist:%q", artist)
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", fmt.Sprint(searchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.BaseURL+"/recording?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", m.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("musicbrainz returned status %d", resp.StatusCode)
	}
	var result recordingSearch
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode musicbrainz response: %w", err)
	}
	return result.Recordings, nil
}

// best picks the closest well-scored recording that belongs to a release.
func (m *MusicBrainz) best(title string, recordings []recording) (ports.AlbumMatch, bool) {
	candidates := lo.Filter(recordings, func(r recording, _ int) bool {
		return r.Score >= minScore && len(r.Releases) > 0
	})
	if len(candidates) == 0 {
		return ports.AlbumMatch{}, false
	}

	titles := lo.Map(candidates, func(r recording, _ int) string { return r.Title })
	ranks := fuzzy.RankFindNormalizedFold(title, titles)
	var chosen recording
	if len(ranks) > 0 {
		best := lo.MinBy(ranks, func(a, b fuzzy.Rank) bool { return a.Distance < b.Distance })
		chosen = candidates[best.OriginalIndex]
	} else {
		// the search engine already ranked them; fall back to its first choice
		chosen = candidates[0]
	}

	release := chosen.Releases[0]
	match := ports.AlbumMatch{
		Title:      release.Title,
		ReleaseID:  release.ID,
		ArtworkURL: fmt.Sprintf("%s/release/%s/front-500", m.opts.ArtworkURL, release.ID),
	}
	if len(chosen.ArtistCredit) > 0 {
		match.Artist = chosen.ArtistCredit[0].Name
	}
	return match, true
}

func (m *MusicBrainz) cached(key string) (cachedMatch, bool) {
	if m.cache == nil {
		return cachedMatch{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, expired, err := m.cache.Get()
	if err != nil || expired || entries == nil {
		return cachedMatch{}, false
	}
	hit, ok := entries[key]
	return hit, ok
}

func (m *MusicBrainz) store(key string, value cachedMatch) {
	if m.cache == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, expired, err := m.cache.Get()
	if err != nil || expired || entries == nil {
		entries = make(map[string]cachedMatch)
	}
	entries[key] = value
	if err := m.cache.Set(entries); err != nil {
		m.logger.Warn("failed to persist metadata cache", slog.Any("error", err))
	}
}

var _ ports.MetadataLookup = (*MusicBrainz)(nil)
