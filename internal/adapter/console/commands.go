package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// ErrUnknownCommand is returned for lines that name no command.
var ErrUnknownCommand = errors.New("unknown command")

// Usage lists the commands understood by Execute.
const Usage = `commands:
  load <url>      read a playlist from a URL
  open <name|n>   play a known playlist
  list            list known playlists
  play            pause or resume
  skip, prev      next or previous track
  shuffle         shuffle the playing playlist
  select <n>      jump to track n
  loop            toggle replaying the current track
  vol <0-100>     set the volume
  mute            toggle mute
  seek <sec>      jump to a position in the current track
  home            stop playing
  quit            close tubetune`

// signalCommands map one-word commands to their payload-less action topic.
var signalCommands = map[string]domain.Topic{
	"play":    domain.TopicActionPlay,
	"skip":    domain.TopicActionSkip,
	"next":    domain.TopicActionSkip,
	"prev":    domain.TopicActionPrevious,
	"shuffle": domain.TopicActionShuffle,
	"loop":    domain.TopicActionLoop,
	"mute":    domain.TopicActionMute,
	"home":    domain.TopicActionHome,
	"quit":    domain.TopicActionQuit,
	"exit":    domain.TopicActionQuit,
}

// Library is the read side of the playlist table. *service.PlaylistService implements it.
type Library interface {
	Playlists() []string
	Current() string
}

// Console turns typed lines into bus events.
type Console struct {
	// Dependencies (injected)
	logger  *slog.Logger
	bus     ports.EventBus
	view    ports.View
	library Library
}

// NewConsole creates a console publishing on bus.
func NewConsole(logger *slog.Logger, bus ports.EventBus, view ports.View, library Library) *Console {
	return &Console{logger: logger, bus: bus, view: view, library: library}
}

// Run reads commands from r until quit, end of input or ctx is done. Bad lines are reported
// on the view and reading continues. Reaching the end of input publishes ACTION_QUIT.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-scanErr:
				default:
				}
				c.logger.Debug("console input closed", slog.Any("error", err))
				_ = c.bus.Publish(domain.NewSignalEvent(domain.TopicActionQuit))
				return err
			}
			quit, err := c.Execute(line)
			if err != nil {
				c.view.ShowError(err.Error())
				continue
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs one command line. It reports whether the line asked to quit.
func (c *Console) Execute(line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "":
		return false, nil
	case "help", "?":
		c.view.ShowMessage(Usage)
		return false, nil
	case "list", "ls":
		c.view.ShowPlaylists(c.library.Playlists(), c.library.Current())
		return false, nil
	}

	event, err := c.Parse(name, arg)
	if err != nil {
		return false, err
	}
	if err := c.bus.Publish(event); err != nil {
		return false, err
	}
	return event.Topic() == domain.TopicActionQuit, nil
}

// Parse builds the event for a command and its argument.
func (c *Console) Parse(name, arg string) (domain.Event, error) {
	if topic, ok := signalCommands[name]; ok {
		return domain.NewSignalEvent(topic), nil
	}

	switch name {
	case "load":
		if arg == "" {
			return nil, domain.NewValidationError("url", arg, "load needs a playlist URL")
		}
		return domain.NewLoadURLAction(arg), nil
	case "open":
		playlist, err := c.resolvePlaylist(arg)
		if err != nil {
			return nil, err
		}
		return domain.NewOpenPlaylistAction(playlist), nil
	case "select":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, domain.NewValidationError("track", arg, "select needs a track number from 1")
		}
		return domain.NewSelectAction(n - 1), nil
	case "vol", "volume":
		v, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
		if err != nil || v < 0 || v > 100 {
			return nil, domain.NewValidationError("volume", arg, "vol needs a value from 0 to 100")
		}
		return domain.NewVolumeAction(float64(v) / 100), nil
	case "seek":
		secs, err := strconv.ParseFloat(arg, 64)
		if err != nil || secs < 0 {
			return nil, domain.NewValidationError("position", arg, "seek needs seconds from 0")
		}
		return domain.NewSeekAction(time.Duration(secs * float64(time.Second))), nil
	}
	return nil, fmt.Errorf("%w: %s (try help)", ErrUnknownCommand, name)
}

// resolvePlaylist accepts a list number, an exact name or the closest fuzzy match.
func (c *Console) resolvePlaylist(arg string) (string, error) {
	names := c.library.Playlists()
	if arg == "" {
		return "", domain.NewValidationError("playlist", arg, "open needs a playlist name or number")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(names) {
			return "", domain.NewValidationError("playlist", arg, "no playlist with that number")
		}
		return names[n-1], nil
	}
	if lo.Contains(names, arg) {
		return arg, nil
	}

	ranks := fuzzy.RankFindNormalizedFold(arg, names)
	if len(ranks) == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrPlaylistNotFound, arg)
	}
	best := lo.MinBy(ranks, func(a, b fuzzy.Rank) bool { return a.Distance < b.Distance })
	return best.Target, nil
}
