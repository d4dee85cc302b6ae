package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/seamchat/seam/internal/timeline"
)

// previewer resolves reply previews against whatever window is loaded.
type previewer interface {
	PreviewReply(m timeline.Message) (timeline.ReplyPreview, bool)
}

// renderGroups writes the day-grouped timeline, oldest day first.
func renderGroups(w io.Writer, groups []timeline.DayGroup, p previewer) {
	for _, g := range groups {
		fmt.Fprintf(w, "--- %s ---\n", g.Day.Format("Mon 02 Jan 2006"))
		for _, m := range g.Messages {
			renderMessage(w, m, p)
		}
	}
}

func renderMessage(w io.Writer, m timeline.Message, p previewer) {
	if preview, ok := p.PreviewReply(m); ok {
		fmt.Fprintf(w, "        > %s: %s\n", orUnknown(preview.AuthorID), preview.Preview)
	}
	fmt.Fprintf(w, "[%s] %s%s %s%s\n",
		m.SortKey.Format("15:04"),
		channelTag(m.Channel),
		orUnknown(m.AuthorID),
		body(m),
		stateTag(m.State),
	)
	for _, b := range m.Buttons {
		fmt.Fprintf(w, "        [%s]\n", b.Label)
	}
	if len(m.Reactions) > 0 {
		var emojis []string
		for _, r := range m.Reactions {
			emojis = append(emojis, r.Emoji)
		}
		fmt.Fprintf(w, "        %s\n", strings.Join(emojis, " "))
	}
}

func channelTag(c timeline.Channel) string {
	if c == timeline.ChannelInternal {
		return "(internal) "
	}
	return ""
}

func stateTag(s timeline.DeliveryState) string {
	switch s {
	case timeline.StatePending:
		return " …"
	case timeline.StateFailed:
		return " ✗ failed"
	}
	return ""
}

func body(m timeline.Message) string {
	if m.Content != "" {
		return m.Content
	}
	if m.Attachment != nil {
		if m.Attachment.Name != "" {
			return "<" + m.Attachment.Name + ">"
		}
		return "<attachment>"
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
