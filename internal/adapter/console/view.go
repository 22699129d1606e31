// Package console is the line-oriented terminal front end: a styled View for bus events
// and a command reader that turns typed lines into ACTION_* events.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

const barWidth = 24

// Terminal renders View calls as styled lines on a writer. Progress is redrawn in place
// on a single line until another line is printed.
//
// Thread-safety: All operations are thread-safe via sync.Mutex.
type Terminal struct {
	mu          sync.Mutex
	out         io.Writer
	progressing bool

	title   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	filled  lipgloss.Style
	empty   lipgloss.Style
	current lipgloss.Style
}

// NewTerminal creates a view writing to out. Colors follow what out supports.
func NewTerminal(out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out:     out,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("240")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		bad:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		filled:  r.NewStyle().Foreground(lipgloss.Color("212")),
		empty:   r.NewStyle().Foreground(lipgloss.Color("240")),
		current: r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	}
}

// ShowTrack prints a playback transition.
func (t *Terminal) ShowTrack(state string, index int, track domain.Track) {
	style := t.title
	switch state {
	case "waiting":
		style = t.warn
	case "skipped":
		style = t.dim
	}
	t.println(fmt.Sprintf("%s %s %s",
		style.Render(fmt.Sprintf("%-8s", state)),
		t.dim.Render(fmt.Sprintf("#%d", index+1)),
		trackLabel(track)))
}

// ShowProgress redraws the progress line.
func (t *Terminal) ShowProgress(index int, position, duration time.Duration) {
	ratio := 0.0
	if duration > 0 {
		ratio = min(float64(position)/float64(duration), 1)
	}
	filled := int(ratio * barWidth)
	line := fmt.Sprintf("%s %s%s %s/%s",
		t.dim.Render(fmt.Sprintf("#%d", index+1)),
		t.filled.Render(strings.Repeat("█", filled)),
		t.empty.Render(strings.Repeat("░", barWidth-filled)),
		clock(position), clock(duration))

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, "\r"+line)
	t.progressing = true
}

// ShowDownload prints a download transition.
func (t *Terminal) ShowDownload(playlist string, index int, track domain.Track, done, success bool) {
	status := t.dim.Render("downloading")
	switch {
	case done && success:
		status = t.ok.Render("downloaded ")
	case done:
		status = t.bad.Render("failed     ")
	}
	t.println(fmt.Sprintf("%s %s %s %s", status, t.dim.Render(playlist), t.dim.Render(fmt.Sprintf("#%d", index+1)), trackLabel(track)))
}

// ShowPlaylists lists the known playlists, numbered, with the current one highlighted.
func (t *Terminal) ShowPlaylists(names []string, current string) {
	if len(names) == 0 {
		t.println(t.dim.Render("no playlists yet, use: load <url>"))
		return
	}
	lines := make([]string, 0, len(names))
	for i, name := range names {
		label := fmt.Sprintf("%2d. %s", i+1, name)
		if name == current {
			label = t.current.Render(label + " ▶")
		}
		lines = append(lines, label)
	}
	t.println(strings.Join(lines, "\n"))
}

// ShowVolume prints the volume and mute state.
func (t *Terminal) ShowVolume(volume float64, muted bool) {
	label := fmt.Sprintf("volume %d%%", int(volume*100+0.5))
	if muted {
		label += " " + t.warn.Render("(muted)")
	}
	t.println(label)
}

// ShowMessage prints a status line.
func (t *Terminal) ShowMessage(msg string) {
	t.println(t.dim.Render(msg))
}

// ShowError prints an error line.
func (t *Terminal) ShowError(msg string) {
	t.println(t.bad.Render("error: ") + msg)
}

func (t *Terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progressing {
		fmt.Fprintln(t.out)
		t.progressing = false
	}
	fmt.Fprintln(t.out, line)
}

func trackLabel(track domain.Track) string {
	if track.DisplayName != "" {
		return track.DisplayName
	}
	return track.Name
}

// clock formats d as m:ss.
func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

var _ ports.View = (*Terminal)(nil)
