// Package domain defines events for the event-driven architecture.
// Every event is published on a named topic of the event bus.
package domain

import (
	"time"

	"github.com/samber/mo"
)

// Event is the base interface for all events in the system.
type Event interface {
	// Topic returns the bus topic the event is published on
	Topic() Topic

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// Topic is the name of an event bus channel.
// The names are shared with the front end and must not change.
type Topic string

// Playlist topics.
const (
	TopicPlaylistInitializationStart Topic = "PLAYLIST_INITIALIZATION_START"
	// The misspelling is part of the wire contract.
	TopicPlaylistInitializationFinish Topic = "PLAYLIST_INITALIZATION_FINISH"
	TopicPlaylistCurrentChange        Topic = "PLAYLIST_CURRENT_CHANGE"
	TopicPlaylistAdded                Topic = "PLAYLIST_ADDED"
	TopicPlaylistTrackDownloadStart   Topic = "PLAYLIST_TRACK_DOWNLOAD_START"
	TopicPlaylistTrackDownload        Topic = "PLAYLIST_TRACK_DOWNLOAD"
	TopicPlaylistDownloadFinish       Topic = "PLAYLIST_DOWNLOAD_FINISH"
	TopicPlaylistDownloadCancel       Topic = "PLAYLIST_DOWNLOAD_CANCEL"
	TopicPlaylistShuffle              Topic = "PLAYLIST_SHUFFLE"
)

// Audio topics.
const (
	TopicAudioTrackStart    Topic = "AUDIO_TRACK_START"
	TopicAudioTrackPause    Topic = "AUDIO_TRACK_PAUSE"
	TopicAudioTrackResume   Topic = "AUDIO_TRACK_RESUME"
	TopicAudioTrackEnd      Topic = "AUDIO_TRACK_END"
	TopicAudioTrackProgress Topic = "AUDIO_TRACK_PROGRESS"
	TopicAudioTrackWait     Topic = "AUDIO_TRACK_WAIT"
	TopicAudioTrackSkipped  Topic = "AUDIO_TRACK_SKIPPED"
	TopicAudioManagerEnd    Topic = "AUDIO_MANAGER_END"
	TopicAudioSelect        Topic = "AUDIO_SELECT"
	TopicAudioVolume        Topic = "AUDIO_VOLUME"
	TopicAudioLoop          Topic = "AUDIO_LOOP"
)

// Download and lifecycle topics.
const (
	TopicDownloadStartRequest Topic = "DOWNLOAD_START_REQUEST"
	TopicDownloadStop         Topic = "DOWNLOAD_STOP"
	TopicProgramClose         Topic = "PROGRAM_CLOSE"
)

// Front-end action topics.
const (
	TopicActionLoadURL      Topic = "ACTION_LOAD_URL"
	TopicActionOpenPlaylist Topic = "ACTION_OPEN_PLAYLIST"
	TopicActionPlay         Topic = "ACTION_PLAY"
	TopicActionSkip         Topic = "ACTION_SKIP"
	TopicActionPrevious     Topic = "ACTION_PREVIOUS"
	TopicActionShuffle      Topic = "ACTION_SHUFFLE"
	TopicActionSelect       Topic = "ACTION_SELECT"
	TopicActionLoop         Topic = "ACTION_LOOP"
	TopicActionVolume       Topic = "ACTION_VOLUME"
	TopicActionMute         Topic = "ACTION_MUTE"
	TopicActionSeek         Topic = "ACTION_SEEK"
	TopicActionHome         Topic = "ACTION_HOME"
	TopicActionQuit         Topic = "ACTION_QUIT"
)

// AllTopics returns the full topic catalogue in declaration order.
func AllTopics() []Topic {
	return []Topic{
		TopicPlaylistInitializationStart, TopicPlaylistInitializationFinish, TopicPlaylistCurrentChange,
		TopicPlaylistAdded, TopicPlaylistTrackDownloadStart, TopicPlaylistTrackDownload,
		TopicPlaylistDownloadFinish, TopicPlaylistDownloadCancel, TopicPlaylistShuffle,
		TopicAudioTrackStart, TopicAudioTrackPause, TopicAudioTrackResume, TopicAudioTrackEnd,
		TopicAudioTrackProgress, TopicAudioTrackWait, TopicAudioTrackSkipped, TopicAudioManagerEnd,
		TopicAudioSelect, TopicAudioVolume, TopicAudioLoop,
		TopicDownloadStartRequest, TopicDownloadStop, TopicProgramClose,
		TopicActionLoadURL, TopicActionOpenPlaylist, TopicActionPlay, TopicActionSkip,
		TopicActionPrevious, TopicActionShuffle, TopicActionSelect, TopicActionLoop,
		TopicActionVolume, TopicActionMute, TopicActionSeek, TopicActionHome, TopicActionQuit,
	}
}

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// SignalEvent is an event without payload, such as ACTION_SKIP or PROGRAM_CLOSE.
type SignalEvent struct {
	baseEvent
	topic Topic
}

// Topic returns the event topic.
func (e SignalEvent) Topic() Topic {
	return e.topic
}

// NewSignalEvent creates a payload-less event on the given topic.
func NewSignalEvent(topic Topic) SignalEvent {
	return SignalEvent{baseEvent: newBaseEvent(), topic: topic}
}

// InitializationStartEvent is published when a playlist URL is handed to the downloader.
type InitializationStartEvent struct {
	baseEvent
	URL string
}

// Topic returns the event topic.
func (e InitializationStartEvent) Topic() Topic {
	return TopicPlaylistInitializationStart
}

// NewInitializationStartEvent creates a new InitializationStartEvent.
func NewInitializationStartEvent(url string) InitializationStartEvent {
	return InitializationStartEvent{baseEvent: newBaseEvent(), URL: url}
}

// InitializationFinishEvent carries the initialized playlist, or None when extraction failed.
type InitializationFinishEvent struct {
	baseEvent
	Playlist mo.Option[*Playlist]
}

// Topic returns the event topic.
func (e InitializationFinishEvent) Topic() Topic {
	return TopicPlaylistInitializationFinish
}

// NewInitializationFinishEvent creates a new InitializationFinishEvent.
func NewInitializationFinishEvent(playlist mo.Option[*Playlist]) InitializationFinishEvent {
	return InitializationFinishEvent{baseEvent: newBaseEvent(), Playlist: playlist}
}

// PlaylistEvent names a playlist. It is used for PLAYLIST_CURRENT_CHANGE (empty name means none),
// PLAYLIST_ADDED, PLAYLIST_SHUFFLE and ACTION_OPEN_PLAYLIST.
type PlaylistEvent struct {
	baseEvent
	topic    Topic
	Playlist string
}

// Topic returns the event topic.
func (e PlaylistEvent) Topic() Topic {
	return e.topic
}

// NewCurrentPlaylistEvent creates a PLAYLIST_CURRENT_CHANGE event.
func NewCurrentPlaylistEvent(name string) PlaylistEvent {
	return PlaylistEvent{baseEvent: newBaseEvent(), topic: TopicPlaylistCurrentChange, Playlist: name}
}

// NewPlaylistAddedEvent creates a PLAYLIST_ADDED event.
func NewPlaylistAddedEvent(name string) PlaylistEvent {
	return PlaylistEvent{baseEvent: newBaseEvent(), topic: TopicPlaylistAdded, Playlist: name}
}

// NewPlaylistShuffleEvent creates a PLAYLIST_SHUFFLE event.
func NewPlaylistShuffleEvent(name string) PlaylistEvent {
	return PlaylistEvent{baseEvent: newBaseEvent(), topic: TopicPlaylistShuffle, Playlist: name}
}

// NewOpenPlaylistAction creates an ACTION_OPEN_PLAYLIST event.
func NewOpenPlaylistAction(name string) PlaylistEvent {
	return PlaylistEvent{baseEvent: newBaseEvent(), topic: TopicActionOpenPlaylist, Playlist: name}
}

// TrackDownloadStartEvent is published when the worker starts downloading a track.
type TrackDownloadStartEvent struct {
	baseEvent
	Playlist string
	Track    Track
	Index    int
}

// Topic returns the event topic.
func (e TrackDownloadStartEvent) Topic() Topic {
	return TopicPlaylistTrackDownloadStart
}

// NewTrackDownloadStartEvent creates a new TrackDownloadStartEvent.
func NewTrackDownloadStartEvent(playlist string, track Track, index int) TrackDownloadStartEvent {
	return TrackDownloadStartEvent{baseEvent: newBaseEvent(), Playlist: playlist, Track: track, Index: index}
}

// TrackDownloadEvent is published when the worker finished (or failed) a track.
type TrackDownloadEvent struct {
	baseEvent
	Playlist string
	Track    Track
	Index    int
	Success  bool
}

// Topic returns the event topic.
func (e TrackDownloadEvent) Topic() Topic {
	return TopicPlaylistTrackDownload
}

// NewTrackDownloadEvent creates a new TrackDownloadEvent.
func NewTrackDownloadEvent(playlist string, track Track, index int, success bool) TrackDownloadEvent {
	return TrackDownloadEvent{baseEvent: newBaseEvent(), Playlist: playlist, Track: track, Index: index, Success: success}
}

// PlaylistDownloadFinishEvent is published after a Download command completed or was stopped.
type PlaylistDownloadFinishEvent struct {
	baseEvent
	Playlist            string
	Albums              map[string]Album
	QueueEmpty          bool
	ThumbnailDownloaded bool
	Complete            bool
}

// Topic returns the event topic.
func (e PlaylistDownloadFinishEvent) Topic() Topic {
	return TopicPlaylistDownloadFinish
}

// NewPlaylistDownloadFinishEvent creates a new PlaylistDownloadFinishEvent.
func NewPlaylistDownloadFinishEvent(done PlaylistDownloadDone) PlaylistDownloadFinishEvent {
	return PlaylistDownloadFinishEvent{
		baseEvent:           newBaseEvent(),
		Playlist:            done.PlaylistName,
		Albums:              done.Albums,
		QueueEmpty:          done.QueueEmpty,
		ThumbnailDownloaded: done.ThumbnailDownloaded,
		Complete:            done.Complete,
	}
}

// PlaylistDownloadCancelEvent is published when a queued command was flushed.
type PlaylistDownloadCancelEvent struct {
	baseEvent
	QueueEmpty bool
}

// Topic returns the event topic.
func (e PlaylistDownloadCancelEvent) Topic() Topic {
	return TopicPlaylistDownloadCancel
}

// NewPlaylistDownloadCancelEvent creates a new PlaylistDownloadCancelEvent.
func NewPlaylistDownloadCancelEvent(queueEmpty bool) PlaylistDownloadCancelEvent {
	return PlaylistDownloadCancelEvent{baseEvent: newBaseEvent(), QueueEmpty: queueEmpty}
}

// TrackEvent describes a playback transition of one track: start, wait, skip, pause, resume or end.
type TrackEvent struct {
	baseEvent
	topic    Topic
	Playlist string
	Track    Track
	Index    int
}

// Topic returns the event topic.
func (e TrackEvent) Topic() Topic {
	return e.topic
}

// NewTrackEvent creates a TrackEvent for one of the AUDIO_TRACK_* topics.
func NewTrackEvent(topic Topic, playlist string, track Track, index int) TrackEvent {
	return TrackEvent{baseEvent: newBaseEvent(), topic: topic, Playlist: playlist, Track: track, Index: index}
}

// TrackProgressEvent reports the playback position of the active track.
type TrackProgressEvent struct {
	baseEvent
	Index    int
	Position time.Duration
	Duration time.Duration
}

// Topic returns the event topic.
func (e TrackProgressEvent) Topic() Topic {
	return TopicAudioTrackProgress
}

// Percentage returns the progress in the range 0-100.
func (e TrackProgressEvent) Percentage() float64 {
	if e.Duration <= 0 {
		return 0
	}
	return float64(e.Position) / float64(e.Duration) * 100.0
}

// NewTrackProgressEvent creates a new TrackProgressEvent.
func NewTrackProgressEvent(index int, position, duration time.Duration) TrackProgressEvent {
	return TrackProgressEvent{baseEvent: newBaseEvent(), Index: index, Position: position, Duration: duration}
}

// SequencerEndEvent is published when the sequencer tore down its session.
type SequencerEndEvent struct {
	baseEvent
	Playlist string
	Stopped  bool
}

// Topic returns the event topic.
func (e SequencerEndEvent) Topic() Topic {
	return TopicAudioManagerEnd
}

// NewSequencerEndEvent creates a new SequencerEndEvent.
func NewSequencerEndEvent(playlist string, stopped bool) SequencerEndEvent {
	return SequencerEndEvent{baseEvent: newBaseEvent(), Playlist: playlist, Stopped: stopped}
}

// IndexEvent carries a track index. Used for AUDIO_SELECT and ACTION_SELECT.
type IndexEvent struct {
	baseEvent
	topic Topic
	Index int
}

// Topic returns the event topic.
func (e IndexEvent) Topic() Topic {
	return e.topic
}

// NewSelectEvent creates an AUDIO_SELECT event.
func NewSelectEvent(index int) IndexEvent {
	return IndexEvent{baseEvent: newBaseEvent(), topic: TopicAudioSelect, Index: index}
}

// NewSelectAction creates an ACTION_SELECT event.
func NewSelectAction(index int) IndexEvent {
	return IndexEvent{baseEvent: newBaseEvent(), topic: TopicActionSelect, Index: index}
}

// VolumeEvent carries volume state. Used for AUDIO_VOLUME and ACTION_VOLUME.
type VolumeEvent struct {
	baseEvent
	topic  Topic
	Volume float64
	Muted  bool
}

// Topic returns the event topic.
func (e VolumeEvent) Topic() Topic {
	return e.topic
}

// NewVolumeChangedEvent creates an AUDIO_VOLUME event.
func NewVolumeChangedEvent(volume float64, muted bool) VolumeEvent {
	return VolumeEvent{baseEvent: newBaseEvent(), topic: TopicAudioVolume, Volume: volume, Muted: muted}
}

// NewVolumeAction creates an ACTION_VOLUME event.
func NewVolumeAction(volume float64) VolumeEvent {
	return VolumeEvent{baseEvent: newBaseEvent(), topic: TopicActionVolume, Volume: volume}
}

// LoopEvent reports the loop flag.
type LoopEvent struct {
	baseEvent
	Enabled bool
}

// Topic returns the event topic.
func (e LoopEvent) Topic() Topic {
	return TopicAudioLoop
}

// NewLoopEvent creates a new LoopEvent.
func NewLoopEvent(enabled bool) LoopEvent {
	return LoopEvent{baseEvent: newBaseEvent(), Enabled: enabled}
}

// DownloadStartRequestEvent asks the orchestration layer to download a playlist from an index.
type DownloadStartRequestEvent struct {
	baseEvent
	Playlist   string
	StartIndex int
}

// Topic returns the event topic.
func (e DownloadStartRequestEvent) Topic() Topic {
	return TopicDownloadStartRequest
}

// NewDownloadStartRequestEvent creates a new DownloadStartRequestEvent.
func NewDownloadStartRequestEvent(playlist string, startIndex int) DownloadStartRequestEvent {
	return DownloadStartRequestEvent{baseEvent: newBaseEvent(), Playlist: playlist, StartIndex: startIndex}
}

// LoadURLAction asks for a playlist to be initialized from a URL.
type LoadURLAction struct {
	baseEvent
	URL string
}

// Topic returns the event topic.
func (e LoadURLAction) Topic() Topic {
	return TopicActionLoadURL
}

// NewLoadURLAction creates a new LoadURLAction.
func NewLoadURLAction(url string) LoadURLAction {
	return LoadURLAction{baseEvent: newBaseEvent(), URL: url}
}

// SeekAction asks for the active track to jump to a position.
type SeekAction struct {
	baseEvent
	Position time.Duration
}

// Topic returns the event topic.
func (e SeekAction) Topic() Topic {
	return TopicActionSeek
}

// NewSeekAction creates a new SeekAction.
func NewSeekAction(position time.Duration) SeekAction {
	return SeekAction{baseEvent: newBaseEvent(), Position: position}
}
