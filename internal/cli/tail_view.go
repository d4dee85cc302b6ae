package cli

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seamchat/seam/internal/timeline"
)

var errPushClosed = errors.New("push connection closed")

// timelineSource is the slice of the session the live view reads.
type timelineSource interface {
	DayGroups() []timeline.DayGroup
	PreviewReply(m timeline.Message) (timeline.ReplyPreview, bool)
	HasMore() bool
	LoadOlder()
}

type timelineChangedMsg struct{}

type transportClosedMsg struct{}

var (
	tailHeaderStyle = lipgloss.NewStyle().Bold(true)
	tailMutedStyle  = lipgloss.NewStyle().Faint(true)
	tailFailedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	tailWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// tailModel is the live-tail program: it waits on the session's change feed
// and re-renders the day-grouped timeline, newest at the bottom.
type tailModel struct {
	scopeID string
	source  timelineSource
	changes <-chan struct{}
	closed  <-chan struct{}
	warn    *atomic.Value

	width  int
	height int
	err    error
}

func newTailModel(scopeID string, source timelineSource, changes, closed <-chan struct{}, warn *atomic.Value) *tailModel {
	return &tailModel{
		scopeID: scopeID,
		source:  source,
		changes: changes,
		closed:  closed,
		warn:    warn,
		width:   80,
		height:  24,
	}
}

func (m *tailModel) Init() tea.Cmd {
	return m.waitCmd()
}

// waitCmd blocks on the next timeline change or transport shutdown, the same
// way a subscription channel is drained one message per command.
func (m *tailModel) waitCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return timelineChangedMsg{}
		case <-m.closed:
			return transportClosedMsg{}
		}
	}
}

func (m *tailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case timelineChangedMsg:
		return m, m.waitCmd()
	case transportClosedMsg:
		m.err = errPushClosed
		return m, tea.Quit
	case tea.KeyMsg:
		switch typed.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "o", "pgup":
			m.source.LoadOlder()
			return m, nil
		}
	}
	return m, nil
}

func (m *tailModel) View() string {
	header := tailHeaderStyle.Render(truncate(fmt.Sprintf("%s — live  (o: load older, q: quit)", m.scopeID), m.width))

	var lines []string
	if w := m.warning(); w != "" {
		lines = append(lines, tailWarnStyle.Render(truncate("warning: "+w, m.width)))
	}
	if m.source.HasMore() {
		lines = append(lines, tailMutedStyle.Render(truncate("(older messages available)", m.width)))
	}
	for _, g := range m.source.DayGroups() {
		lines = append(lines, tailMutedStyle.Render(truncate("--- "+g.Day.Format("Mon 02 Jan 2006")+" ---", m.width)))
		for _, msg := range g.Messages {
			lines = append(lines, m.messageLines(msg)...)
		}
	}

	// Header stays pinned; the feed is clamped from the bottom so the newest
	// messages remain visible.
	body := clampLines(lines, max(0, m.height-1))
	return strings.Join(append([]string{header}, body...), "\n")
}

func (m *tailModel) messageLines(msg timeline.Message) []string {
	var out []string
	if preview, ok := m.source.PreviewReply(msg); ok {
		out = append(out, tailMutedStyle.Render(truncate(
			fmt.Sprintf("        > %s: %s", orUnknown(preview.AuthorID), preview.Preview), m.width)))
	}

	line := fmt.Sprintf("[%s] %s%s %s%s",
		msg.SortKey.Format("15:04"),
		channelTag(msg.Channel),
		orUnknown(msg.AuthorID),
		body(msg),
		stateTag(msg.State),
	)
	style := lipgloss.NewStyle()
	switch msg.State {
	case timeline.StatePending:
		style = tailMutedStyle
	case timeline.StateFailed:
		style = tailFailedStyle
	}
	out = append(out, style.Render(truncate(line, m.width)))

	for _, b := range msg.Buttons {
		out = append(out, tailMutedStyle.Render(truncate("        ["+b.Label+"]", m.width)))
	}
	if len(msg.Reactions) > 0 {
		emojis := make([]string, 0, len(msg.Reactions))
		for _, r := range msg.Reactions {
			emojis = append(emojis, r.Emoji)
		}
		out = append(out, tailMutedStyle.Render(truncate("        "+strings.Join(emojis, " "), m.width)))
	}
	return out
}

func (m *tailModel) warning() string {
	if m.warn == nil {
		return ""
	}
	if s, ok := m.warn.Load().(string); ok {
		return s
	}
	return ""
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

func clampLines(lines []string, height int) []string {
	if height <= 0 || len(lines) == 0 {
		return nil
	}
	if len(lines) <= height {
		return lines
	}
	return lines[len(lines)-height:]
}
