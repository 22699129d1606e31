// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Registry and bus protocol errors. These are logged as warnings and treated as no-ops.
var (
	// ErrNameTaken is returned when a primitive is created under a name that is already registered.
	ErrNameTaken = errors.New("name already registered")

	// ErrNotRegistered is returned when a primitive lookup finds nothing.
	ErrNotRegistered = errors.New("name not registered")

	// ErrTopicExists is returned when a topic is declared twice.
	ErrTopicExists = errors.New("topic already declared")

	// ErrTopicNotDeclared is returned when publishing or subscribing to an unknown topic.
	ErrTopicNotDeclared = errors.New("topic not declared")

	// ErrAlreadySubscribed is returned when the same subscriber is added to a topic twice.
	ErrAlreadySubscribed = errors.New("subscriber already registered for topic")

	// ErrSchedulerStopped is returned when work is handed to a scheduler that has shut down.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// Download errors.
var (
	// ErrDownloadInProgress is returned when a download is requested while another session is queued.
	ErrDownloadInProgress = errors.New("download session already active")

	// ErrExtractionFailed is returned when playlist metadata cannot be extracted.
	ErrExtractionFailed = errors.New("playlist extraction failed")

	// ErrWorkerClosed is returned when a command is sent after the worker shut down.
	ErrWorkerClosed = errors.New("download worker closed")

	// ErrNoMetadata is returned when the metadata service has no match for a track.
	ErrNoMetadata = errors.New("no metadata match")
)

// Playlist and playback errors.
var (
	// ErrPlaylistNotFound is returned when a playlist name is unknown.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrPlaylistExists is returned when adding a playlist whose name is already taken.
	ErrPlaylistExists = errors.New("playlist already exists")

	// ErrPlaylistEmpty is returned when an operation requires a non-empty playlist.
	ErrPlaylistEmpty = errors.New("playlist is empty")

	// ErrSequencerBusy is returned when a playlist is loaded while another one is playing.
	ErrSequencerBusy = errors.New("sequencer already has a playlist loaded")

	// ErrInvalidIndex is returned when a track index is out of bounds.
	ErrInvalidIndex = errors.New("invalid track index")

	// ErrInvalidTrackHandle is returned when an invalid track handle is used.
	ErrInvalidTrackHandle = errors.New("invalid track handle")

	// ErrInvalidVolume is returned when the volume is out of valid range (0.0-1.0).
	ErrInvalidVolume = errors.New("invalid volume: must be between 0.0 and 1.0")

	// ErrInvalidPosition is returned when seeking to an invalid position.
	ErrInvalidPosition = errors.New("invalid playback position")

	// ErrNoTrackLoaded is returned when playback is attempted with no track loaded.
	ErrNoTrackLoaded = errors.New("no track loaded")

	// ErrNotInitialized is returned when an operation is attempted on an uninitialized component.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrAlreadyInitialized is returned when attempting to initialize an already initialized component.
	ErrAlreadyInitialized = errors.New("component already initialized")

	// ErrUnsupportedFormat is returned when an audio file format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrFileNotFound is returned when a file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// AudioEngineError represents an error from the audio engine.
type AudioEngineError struct {
	Op      string // Operation that failed (e.g., "load", "play", "stop")
	Path    string // File path (if applicable)
	Code    int    // Error code from the underlying library
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *AudioEngineError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("audio engine %s failed for '%s': %s (code: %d)", e.Op, e.Path, e.Message, e.Code)
	}
	return fmt.Sprintf("audio engine %s failed: %s (code: %d)", e.Op, e.Message, e.Code)
}

// Unwrap returns the underlying error.
func (e *AudioEngineError) Unwrap() error {
	return e.Err
}

// NewAudioEngineError creates a new AudioEngineError.
func NewAudioEngineError(op, path string, code int, message string, err error) *AudioEngineError {
	return &AudioEngineError{
		Op:      op,
		Path:    path,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// RepositoryError represents an error from a repository.
type RepositoryError struct {
	Op      string // Operation that failed (e.g., "save", "load", "delete")
	Type    string // Repository type (e.g., "playlist", "ids")
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Type:    repoType,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Value that failed validation
	Message string // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g., "Sequencer", "PlaylistService")
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ProcessError represents a failed invocation of an external tool (yt-dlp, ffmpeg).
type ProcessError struct {
	Tool   string   // Executable name
	Args   []string // Arguments passed
	Stderr string   // Trimmed standard error output
	Err    error    // Underlying error (usually *exec.ExitError)
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if e.Stderr != "" {
		msg += ": " + lastLine(e.Stderr)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// NewProcessError creates a new ProcessError.
func NewProcessError(tool string, args []string, stderr string, err error) *ProcessError {
	return &ProcessError{
		Tool:   tool,
		Args:   args,
		Stderr: strings.TrimSpace(stderr),
		Err:    err,
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
