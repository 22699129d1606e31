// Package discord shows the playing track as the "Listening to" status of a Discord bot.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// session is the part of *discordgo.Session the sink uses.
type session interface {
	Open() error
	Close() error
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// StatusSink publishes activities through a bot's gateway presence.
type StatusSink struct {
	logger *slog.Logger

	mu      sync.Mutex
	session session
	open    bool
}

// NewStatusSink creates a sink for the bot authenticated by token.
func NewStatusSink(logger *slog.Logger, token string) (*StatusSink, error) {
	if token == "" {
		return nil, domain.NewValidationError("presence.token", token, "must not be empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	// presence needs the gateway but none of its events
	s.Identify.Intents = discordgo.IntentsGuilds
	return newStatusSink(logger, s), nil
}

func newStatusSink(logger *slog.Logger, s session) *StatusSink {
	return &StatusSink{logger: logger, session: s}
}

// Connect opens the gateway connection.
func (s *StatusSink) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	s.open = true
	s.logger.Info("connected to Discord")
	return nil
}

// Update shows the activity. An idle activity is shown as a plain online status.
func (s *StatusSink) Update(_ context.Context, a domain.Activity) error {
	return s.send(StatusFor(a))
}

// Clear removes the activity.
func (s *StatusSink) Clear(_ context.Context) error {
	return s.send(discordgo.UpdateStatusData{Status: string(discordgo.StatusOnline)})
}

// Close closes the gateway connection.
func (s *StatusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	return s.session.Close()
}

func (s *StatusSink) send(usd discordgo.UpdateStatusData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return domain.ErrNotInitialized
	}
	return s.session.UpdateStatusComplex(usd)
}

// StatusFor renders an activity as a gateway presence update.
func StatusFor(a domain.Activity) discordgo.UpdateStatusData {
	usd := discordgo.UpdateStatusData{Status: string(discordgo.StatusOnline)}
	if a.Idle() {
		usd.Activities = []*discordgo.Activity{{Name: a.Details, Type: discordgo.ActivityTypeGame}}
		return usd
	}

	details := a.Details
	if a.Paused {
		details += " (paused)"
		usd.Status = string(discordgo.StatusIdle)
	}
	activity := &discordgo.Activity{
		Name:    a.Details,
		Type:    discordgo.ActivityTypeListening,
		Details: details,
		State:   a.State,
	}
	if !a.Start.IsZero() {
		activity.Timestamps.StartTimestamp = a.Start.UnixMilli()
	}
	if !a.End.IsZero() {
		activity.Timestamps.EndTimestamp = a.End.UnixMilli()
	}
	if a.Album != "" {
		activity.Assets.LargeText = a.Album
	}
	usd.Activities = []*discordgo.Activity{activity}
	return usd
}

var _ ports.ActivitySink = (*StatusSink)(nil)
