// Package hotkey maps keys pressed on a raw terminal to player actions.
package hotkey

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Key is one key press with its modifiers. The zero Key is no key.
type Key struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Name  string
}

// String renders the key the way bindings spell it, modifiers first: "ctrl+alt+p".
func (k Key) String() string {
	var b strings.Builder
	if k.Ctrl {
		b.WriteString("ctrl+")
	}
	if k.Alt {
		b.WriteString("alt+")
	}
	if k.Shift {
		b.WriteString("shift+")
	}
	b.WriteString(k.Name)
	return b.String()
}

// named keys a binding may use besides single characters
var namedKeys = map[string]bool{
	"enter": true, "tab": true, "space": true, "backspace": true, "esc": true,
	"up": true, "down": true, "left": true, "right": true, "home": true, "end": true,
}

// cursor keys by the final byte of their CSI or SS3 sequence
var cursorKeys = map[byte]string{'A': "up", 'B': "down", 'C': "right", 'D': "left", 'H': "home", 'F': "end"}

// ParseCombo reads a binding such as "alt+p" or "ctrl+shift+right".
func ParseCombo(s string) (Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	var k Key
	for _, mod := range parts[:len(parts)-1] {
		switch mod {
		case "ctrl", "control":
			k.Ctrl = true
		case "alt", "meta":
			k.Alt = true
		case "shift":
			k.Shift = true
		default:
			return Key{}, fmt.Errorf("unknown modifier %q in %q", mod, s)
		}
	}

	name := parts[len(parts)-1]
	switch {
	case namedKeys[name]:
	case utf8.RuneCountInString(name) == 1:
		r, _ := utf8.DecodeRuneInString(name)
		if !unicode.IsPrint(r) || r == ' ' {
			return Key{}, fmt.Errorf("key %q is not printable", s)
		}
	default:
		return Key{}, fmt.Errorf("unknown key %q", s)
	}
	k.Name = name
	if k.Ctrl && (!isLetter(k.Name) || k.Shift) {
		return Key{}, fmt.Errorf("a terminal only reports ctrl with a plain letter: %q", s)
	}
	if k.Ctrl && strings.Contains("hijm", k.Name) {
		return Key{}, fmt.Errorf("a terminal sends %q as backspace, tab or enter", s)
	}
	return k, nil
}

// Decode reads the key at the front of b and returns it with the number of bytes it used.
// Bytes that name no key decode to the zero Key.
func Decode(b []byte) (Key, int) {
	if len(b) == 0 {
		return Key{}, 0
	}

	c := b[0]
	switch {
	case c == 0x1b:
		return decodeEscape(b)
	case c == '\r' || c == '\n':
		return Key{Name: "enter"}, 1
	case c == '\t':
		return Key{Name: "tab"}, 1
	case c == 0x7f || c == 0x08:
		return Key{Name: "backspace"}, 1
	case c == ' ':
		return Key{Name: "space"}, 1
	case c >= 0x01 && c <= 0x1a:
		return Key{Ctrl: true, Name: string(rune('a' + c - 1))}, 1
	case c < 0x20:
		return Key{}, 1
	}

	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError && size <= 1 {
		return Key{}, 1
	}
	if unicode.IsUpper(r) {
		return Key{Shift: true, Name: string(unicode.ToLower(r))}, size
	}
	return Key{Name: string(r)}, size
}

// decodeEscape handles ESC alone, ESC-prefixed (alt) keys and cursor key sequences.
func decodeEscape(b []byte) (Key, int) {
	if len(b) == 1 {
		return Key{Name: "esc"}, 1
	}
	if b[1] == '[' || b[1] == 'O' {
		// CSI/SS3: parameters then one final byte in 0x40..0x7e
		for i := 2; i < len(b); i++ {
			if b[i] >= 0x40 && b[i] <= 0x7e {
				return Key{Name: cursorKeys[b[i]]}, i + 1
			}
		}
		return Key{}, len(b)
	}
	if b[1] == 0x1b {
		return Key{Name: "esc"}, 1
	}
	k, n := Decode(b[1:])
	if k.Name == "" {
		return Key{Name: "esc"}, 1
	}
	k.Alt = true
	return k, n + 1
}

func isLetter(name string) bool {
	return len(name) == 1 && name[0] >= 'a' && name[0] <= 'z'
}
