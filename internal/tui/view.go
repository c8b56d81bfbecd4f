package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tOgg1/courier/internal/delivery"
	"github.com/tOgg1/courier/internal/inbox"
	"github.com/tOgg1/courier/internal/models"
)

const (
	minInboxWidth = 24
	maxInboxWidth = 40
	ellipsis      = "…"
)

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading…"
	}

	bodyHeight := max(m.height-2, 4)
	inboxWidth := clamp(m.width/3, minInboxWidth, maxInboxWidth)
	chatWidth := max(m.width-inboxWidth, minInboxWidth)

	left := m.paneStyle(m.focus == focusInbox || m.focus == focusSearch).
		Width(inboxWidth - 2).
		Height(bodyHeight - 2).
		Render(m.renderInbox(inboxWidth-4, bodyHeight-2))
	right := m.paneStyle(m.focus == focusChat || m.focus == focusCompose).
		Width(chatWidth - 2).
		Height(bodyHeight - 2).
		Render(m.renderChat(chatWidth-4, bodyHeight-2))

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.renderFooter(),
	)
}

func (m *Model) paneStyle(active bool) lipgloss.Style {
	if active {
		return m.styles.active
	}
	return m.styles.inactive
}

func (m *Model) renderHeader() string {
	header := m.styles.header.Render("courier") + m.styles.muted.Render(" · "+m.local)
	label := m.filter.Mode.String()
	if m.filter.Mode == inbox.FilterSearch {
		label += " \"" + m.filter.Query + "\""
	}
	return header + m.styles.muted.Render(" · "+label)
}

func (m *Model) renderFooter() string {
	if m.status != "" {
		if m.statusErr {
			return m.styles.err.Render(m.status)
		}
		return m.styles.footer.Render(m.status)
	}
	var help string
	switch m.focus {
	case focusSearch:
		help = "type to filter · enter done · esc clear"
	case focusCompose:
		help = "enter send · esc cancel"
	case focusChat:
		help = "i compose · ↑/↓ scroll · esc inbox · q quit"
	default:
		help = "↑/↓ move · enter open · f favorite · / search · 1 all · 2 favorites · q quit"
	}
	return m.styles.footer.Render(help)
}

// renderInbox draws two lines per entry: name with markers, then the
// preview. The list scrolls to keep the cursor visible.
func (m *Model) renderInbox(width, height int) string {
	var lines []string
	if m.focus == focusSearch || m.filter.Mode == inbox.FilterSearch {
		lines = append(lines, m.styles.header.Render("/"+m.search))
		height--
	}
	if len(m.entries) == 0 {
		lines = append(lines, m.styles.muted.Render("No conversations"))
		return strings.Join(lines, "\n")
	}

	visible := max(height/2, 1)
	start := max(m.cursor-visible+1, 0)
	end := min(start+visible, len(m.entries))
	for i := start; i < end; i++ {
		e := m.entries[i]
		name := fit(e.Profile.DisplayName(), width-4)
		marker := "  "
		if e.Unread {
			marker = m.styles.unread.Render("●") + " "
		}
		if e.Favorite {
			name += " " + m.styles.favorite.Render("★")
		}
		if i == m.cursor {
			name = m.styles.selected.Render(name)
		} else if e.Unread {
			name = m.styles.unread.Render(name)
		}
		lines = append(lines,
			marker+name,
			"  "+m.styles.muted.Render(fit(e.Preview, width-2)),
		)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderChat(width, height int) string {
	if m.counterpart == "" {
		return m.styles.muted.Render("Select a conversation")
	}

	title := m.styles.header.Render(fit(m.counterpartName(), width))
	lines := m.conversationLines(width)

	area := max(height-2, 1)
	maxScroll := max(len(lines)-area, 0)
	scroll := min(m.scroll, maxScroll)
	end := len(lines) - scroll
	start := max(end-area, 0)

	out := make([]string, 0, area+2)
	out = append(out, title)
	out = append(out, lines[start:end]...)
	for len(out) < area+1 {
		out = append(out, "")
	}
	out = append(out, m.renderCompose(width))
	return strings.Join(out, "\n")
}

func (m *Model) renderCompose(width int) string {
	prompt := "> "
	text := m.compose
	if m.focus == focusCompose {
		text += "▏"
	}
	if m.sending {
		return m.styles.muted.Render(prompt + fit(text, width-len(prompt)-10) + " sending…")
	}
	if m.focus != focusCompose && text == "" {
		return m.styles.muted.Render(prompt + "press i to write")
	}
	return prompt + tail(text, width-len(prompt))
}

func (m *Model) conversationLines(width int) []string {
	var lines []string
	for _, item := range m.view.Items {
		switch it := item.(type) {
		case models.DateHeader:
			lines = append(lines, lipgloss.PlaceHorizontal(width, lipgloss.Center, m.styles.date.Render(it.Label)))
		case models.MessageItem:
			lines = append(lines, m.messageLines(it.Message, width)...)
		}
	}
	return lines
}

func (m *Model) messageLines(msg models.Message, width int) []string {
	own := msg.SentBy(m.local)
	head := m.styles.other.Render(m.counterpartName())
	if own {
		head = m.styles.own.Render("you")
	}
	if m.showTimestamps {
		head += " " + m.styles.muted.Render(delivery.TimeLabel(msg, m.loc))
	}
	if m.showStatus && own {
		head += " " + m.styles.muted.Render("· "+delivery.StatusLabel(msg))
	}

	body := msg.Body
	if body == "" && msg.Ciphertext != "" {
		body = m.styles.err.Render("unable to decrypt")
	}
	lines := []string{head}
	for _, part := range strings.Split(body, "\n") {
		for _, wrapped := range strings.Split(wordwrap.String(part, max(width-2, 1)), "\n") {
			lines = append(lines, "  "+wrapped)
		}
	}
	return lines
}

func (m *Model) counterpartName() string {
	for _, e := range m.entries {
		if e.Profile.ID == m.counterpart {
			return e.Profile.DisplayName()
		}
	}
	return m.counterpart
}

// fit truncates s to width cells.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), ellipsis)
}

// tail keeps the last width cells of s so the cursor stays in view.
func tail(s string, width int) string {
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > width {
		r = r[1:]
	}
	return string(r)
}
