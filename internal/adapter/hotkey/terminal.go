package hotkey

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNotTerminal is returned by MakeRaw for input that is not a terminal.
var ErrNotTerminal = errors.New("input is not a terminal")

// MakeRaw switches the terminal behind f to raw mode so single key presses can be read.
// The returned function restores the previous mode.
func MakeRaw(f *os.File) (restore func() error, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, state) }, nil
}

// NewlineWriter writes "\r\n" for every "\n"; a raw terminal no longer adds the carriage return.
type NewlineWriter struct {
	W io.Writer
}

func (w NewlineWriter) Write(p []byte) (int, error) {
	if _, err := w.W.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
