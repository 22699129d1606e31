package domain

import "github.com/samber/mo"

// Command is a message on the download worker's inbound queue.
// A nil Command is the shutdown sentinel.
type Command interface {
	isCommand()
}

// InitializeCommand asks the worker to extract a playlist's metadata from its source URL.
type InitializeCommand struct {
	Stub *Playlist
}

// DownloadCommand asks the worker to download every missing track of a playlist copy.
type DownloadCommand struct {
	Playlist   *Playlist
	Params     DownloadParams
	StartIndex int

	// Generation numbers the Downloads a client sent, starting at 1
	Generation uint64
}

func (InitializeCommand) isCommand() {}
func (DownloadCommand) isCommand()   {}

// Response is a message on the download worker's outbound queue.
type Response interface {
	isResponse()
}

// DataReceived acknowledges that the worker dequeued a command.
type DataReceived struct{}

// InitializeDone answers an InitializeCommand. None means extraction failed.
type InitializeDone struct {
	Playlist mo.Option[*Playlist]
}

// TrackDownloadStart is sent before a track is downloaded.
type TrackDownloadStart struct {
	PlaylistName string
	Track        Track
	Index        int
}

// TrackDownloadDone is sent after a track attempt. Track carries the fields the worker changed.
type TrackDownloadDone struct {
	PlaylistName string
	Track        Track
	Index        int
	Success      bool
}

// PlaylistDownloadDone ends a DownloadCommand.
type PlaylistDownloadDone struct {
	PlaylistName        string
	Albums              map[string]Album
	QueueEmpty          bool
	ThumbnailDownloaded bool

	// Complete is true when every track was present after the last pass
	Complete bool
}

// Cancelled answers a command that was flushed by the cancel-next flag.
type Cancelled struct {
	QueueEmpty bool
}

// WorkerClosed answers the shutdown sentinel; nothing follows it.
type WorkerClosed struct{}

func (DataReceived) isResponse()         {}
func (InitializeDone) isResponse()       {}
func (TrackDownloadStart) isResponse()   {}
func (TrackDownloadDone) isResponse()    {}
func (PlaylistDownloadDone) isResponse() {}
func (Cancelled) isResponse()            {}
func (WorkerClosed) isResponse()         {}
