package hotkey

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// Actions are the names a binding may use and the topics they raise.
var Actions = map[string]domain.Topic{
	"play":     domain.TopicActionPlay,
	"skip":     domain.TopicActionSkip,
	"previous": domain.TopicActionPrevious,
	"shuffle":  domain.TopicActionShuffle,
	"loop":     domain.TopicActionLoop,
	"mute":     domain.TopicActionMute,
	"home":     domain.TopicActionHome,
	"quit":     domain.TopicActionQuit,
}

// raw mode turns the interrupt key into a plain byte
var interrupt = Key{Ctrl: true, Name: "c"}

type binding struct {
	key    Key
	action string
	topic  domain.Topic
}

// Listener publishes the action bound to every key read from a raw terminal.
type Listener struct {
	logger   *slog.Logger
	bus      ports.EventBus
	keys     map[Key]domain.Topic
	bindings []binding
}

// NewListener validates bindings (action name to combo) and builds a listener. An empty
// combo leaves its action unbound; ctrl+c quits unless bound to something else.
func NewListener(logger *slog.Logger, bus ports.EventBus, bindings map[string]string) (*Listener, error) {
	l := &Listener{logger: logger, bus: bus, keys: make(map[Key]domain.Topic)}

	actions := lo.Keys(bindings)
	sort.Strings(actions)
	for _, action := range actions {
		combo := bindings[action]
		if combo == "" {
			continue
		}
		field := "hotkeys." + action
		topic, ok := Actions[action]
		if !ok {
			return nil, domain.NewValidationError(field, action, "unknown action")
		}
		key, err := ParseCombo(combo)
		if err != nil {
			return nil, domain.NewValidationError(field, combo, err.Error())
		}
		if other, taken := lo.Find(l.bindings, func(b binding) bool { return b.key == key }); taken {
			return nil, domain.NewValidationError(field, combo, "already bound to "+other.action)
		}
		l.keys[key] = topic
		l.bindings = append(l.bindings, binding{key: key, action: action, topic: topic})
	}
	if _, ok := l.keys[interrupt]; !ok {
		l.keys[interrupt] = domain.TopicActionQuit
	}
	return l, nil
}

// Help lists the bindings, e.g. "alt+p play  alt+n skip".
func (l *Listener) Help() string {
	parts := lo.Map(l.bindings, func(b binding, _ int) string { return b.key.String() + " " + b.action })
	if len(parts) == 0 {
		return "hotkeys: none bound, ctrl+c quits"
	}
	return "hotkeys: " + strings.Join(parts, "  ")
}

// Run reads keys from r until a quit key, end of input or ctx is done. Reaching the end of
// input publishes ACTION_QUIT.
func (l *Listener) Run(ctx context.Context, r io.Reader) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, 64)
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-stop:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				err := <-readErr
				l.logger.Debug("hotkey input closed", slog.Any("error", err))
				l.publish(domain.TopicActionQuit)
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if l.Feed(chunk) {
				return nil
			}
		}
	}
}

// Feed handles every key in b and reports whether one of them asked to quit.
func (l *Listener) Feed(b []byte) (quit bool) {
	for len(b) > 0 {
		key, n := Decode(b)
		b = b[n:]
		topic, ok := l.keys[key]
		if !ok {
			if key.Name != "" {
				l.logger.Debug("unbound key", slog.String("key", key.String()))
			}
			continue
		}
		l.publish(topic)
		if topic == domain.TopicActionQuit {
			return true
		}
	}
	return false
}

func (l *Listener) publish(topic domain.Topic) {
	if err := l.bus.Publish(domain.NewSignalEvent(topic)); err != nil {
		l.logger.Warn("hotkey action not published", slog.String("topic", string(topic)), slog.Any("error", err))
	}
}
