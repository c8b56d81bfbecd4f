// Package tui is the interactive terminal view: an inbox pane, the open
// conversation and a compose line.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/courier/internal/chat"
	"github.com/tOgg1/courier/internal/inbox"
	"github.com/tOgg1/courier/internal/models"
)

// ChatService opens conversations for the local identity.
type ChatService interface {
	Local() string
	Open(ctx context.Context, counterpart string) (*chat.Conversation, error)
}

// Inbox is the aggregated conversation list.
type Inbox interface {
	Start(ctx context.Context) error
	Updates() <-chan []inbox.Entry
	SetFilter(f inbox.Filter)
	ToggleFavorite(ctx context.Context, counterpart string) (bool, error)
	Close()
}

// Options configures the TUI.
type Options struct {
	Chat  ChatService
	Inbox Inbox

	// Counterpart, when set, is opened on start.
	Counterpart string

	Location       *time.Location
	ShowTimestamps bool
	ShowStatus     bool
	Filter         inbox.Filter
	Theme          *Theme
}

type focus int

const (
	focusInbox focus = iota
	focusChat
	focusCompose
	focusSearch
)

type inboxMsg struct {
	entries []inbox.Entry
}

type inboxClosedMsg struct{}

type conversationMsg struct {
	conv   *chat.Conversation
	update chat.Update
	closed bool
}

type sendResultMsg struct {
	conv *chat.Conversation
	text string
	err  error
}

type favoriteResultMsg struct {
	id       string
	favorite bool
	err      error
}

// Model is the bubbletea model.
type Model struct {
	ctx            context.Context
	chat           ChatService
	inbox          Inbox
	local          string
	loc            *time.Location
	showTimestamps bool
	showStatus     bool
	styles         styles

	width  int
	height int
	focus  focus

	entries []inbox.Entry
	cursor  int
	filter  inbox.Filter
	search  string

	pendingOpen string
	conv        *chat.Conversation
	counterpart string
	view        models.ConversationView
	scroll      int
	compose     string
	sending     bool

	status    string
	statusErr bool
}

// NewModel builds a model. The inbox is not started.
func NewModel(ctx context.Context, opts Options) (*Model, error) {
	if opts.Chat == nil || opts.Inbox == nil {
		return nil, errors.New("tui: chat service and inbox are required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	theme := DefaultTheme
	if opts.Theme != nil {
		theme = *opts.Theme
	}

	m := &Model{
		ctx:            ctx,
		chat:           opts.Chat,
		inbox:          opts.Inbox,
		local:          opts.Chat.Local(),
		loc:            loc,
		showTimestamps: opts.ShowTimestamps,
		showStatus:     opts.ShowStatus,
		styles:         newStyles(theme),
		filter:         opts.Filter,
		pendingOpen:    strings.TrimSpace(opts.Counterpart),
	}
	if m.filter.Mode == inbox.FilterSearch {
		m.search = m.filter.Query
	}
	m.inbox.SetFilter(m.filter)
	return m, nil
}

// Run starts the inbox and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	m, err := NewModel(ctx, opts)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := opts.Inbox.Start(ctx); err != nil {
		return fmt.Errorf("start inbox: %w", err)
	}

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Close releases the open conversation and the inbox.
func (m *Model) Close() {
	m.closeConversation()
	m.inbox.Close()
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitInbox(m.inbox.Updates())}
	if m.pendingOpen != "" {
		counterpart := m.pendingOpen
		m.pendingOpen = ""
		cmds = append(cmds, m.openConversation(counterpart))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case inboxMsg:
		m.entries = typed.entries
		m.cursor = clamp(m.cursor, 0, len(m.entries)-1)
		return m, waitInbox(m.inbox.Updates())
	case inboxClosedMsg:
		return m, nil
	case conversationMsg:
		return m, m.applyConversation(typed)
	case sendResultMsg:
		m.sending = false
		if typed.err != nil {
			m.setError(typed.err)
			return m, nil
		}
		if typed.conv == m.conv && m.compose == typed.text {
			m.compose = ""
		}
		m.clearStatus()
		return m, nil
	case favoriteResultMsg:
		if typed.err != nil {
			m.setError(typed.err)
			return m, nil
		}
		if typed.favorite {
			m.setStatus(typed.id + " added to favorites")
		} else {
			m.setStatus(typed.id + " removed from favorites")
		}
		return m, nil
	case tea.KeyMsg:
		if typed.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.focus {
		case focusSearch:
			return m, m.handleSearchKey(typed)
		case focusCompose:
			return m, m.handleComposeKey(typed)
		case focusChat:
			return m, m.handleChatKey(typed)
		default:
			return m, m.handleInboxKey(typed)
		}
	}
	return m, nil
}

func (m *Model) handleInboxKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, len(m.entries)-1)
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, len(m.entries)-1)
	case "enter", "l", "right":
		if entry, ok := m.selected(); ok {
			return m.openConversation(entry.Profile.ID)
		}
	case "tab":
		if m.conv != nil {
			m.setFocus(focusChat)
		}
	case "f":
		if entry, ok := m.selected(); ok {
			return m.toggleFavorite(entry.Profile.ID)
		}
	case "/":
		m.setFocus(focusSearch)
		m.applyFilter(inbox.Filter{Mode: inbox.FilterSearch, Query: m.search})
	case "1":
		m.search = ""
		m.applyFilter(inbox.Filter{Mode: inbox.FilterAll})
	case "2":
		m.search = ""
		m.applyFilter(inbox.Filter{Mode: inbox.FilterFavorites})
	}
	return nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.search = ""
		m.applyFilter(inbox.Filter{Mode: inbox.FilterAll})
		m.setFocus(focusInbox)
	case tea.KeyEnter:
		m.setFocus(focusInbox)
	case tea.KeyBackspace:
		m.search = dropLastRune(m.search)
		m.applyFilter(inbox.Filter{Mode: inbox.FilterSearch, Query: m.search})
	case tea.KeySpace:
		m.search += " "
		m.applyFilter(inbox.Filter{Mode: inbox.FilterSearch, Query: m.search})
	case tea.KeyRunes:
		m.search += string(msg.Runes)
		m.applyFilter(inbox.Filter{Mode: inbox.FilterSearch, Query: m.search})
	}
	return nil
}

func (m *Model) handleChatKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "esc", "tab", "h", "left":
		m.setFocus(focusInbox)
	case "i", "enter":
		m.setFocus(focusCompose)
	case "up", "k":
		m.scroll++
	case "down", "j":
		m.scroll = max(m.scroll-1, 0)
	case "G", "end":
		m.scroll = 0
	}
	return nil
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.setFocus(focusChat)
	case tea.KeyEnter:
		if m.sending || m.conv == nil || strings.TrimSpace(m.compose) == "" {
			return nil
		}
		m.sending = true
		m.clearStatus()
		return sendCmd(m.ctx, m.conv, m.compose)
	case tea.KeyBackspace:
		m.compose = dropLastRune(m.compose)
	case tea.KeySpace:
		m.compose += " "
	case tea.KeyRunes:
		m.compose += string(msg.Runes)
	}
	return nil
}

// setFocus moves focus and keeps the conversation's visibility in step:
// messages are only marked seen while the chat pane has focus.
func (m *Model) setFocus(f focus) {
	m.focus = f
	if m.conv != nil {
		m.conv.SetVisible(f == focusChat || f == focusCompose)
	}
}

func (m *Model) applyFilter(f inbox.Filter) {
	m.filter = f
	m.cursor = 0
	m.inbox.SetFilter(f)
}

func (m *Model) selected() (inbox.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return inbox.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m *Model) openConversation(counterpart string) tea.Cmd {
	if m.conv != nil && m.counterpart == counterpart {
		m.setFocus(focusChat)
		return nil
	}
	m.closeConversation()

	conv, err := m.chat.Open(m.ctx, counterpart)
	if err != nil {
		m.setError(err)
		return nil
	}
	m.conv = conv
	m.counterpart = counterpart
	m.view = conv.View()
	m.scroll = 0
	m.compose = ""
	m.clearStatus()
	m.setFocus(focusChat)
	return waitConversation(conv)
}

func (m *Model) closeConversation() {
	if m.conv == nil {
		return
	}
	m.conv.Close()
	m.conv = nil
	m.counterpart = ""
	m.view = models.ConversationView{}
	m.sending = false
}

func (m *Model) applyConversation(msg conversationMsg) tea.Cmd {
	if msg.conv != m.conv || msg.closed {
		return nil
	}
	if msg.update.Err != nil {
		m.setError(msg.update.Err)
		return nil
	}
	m.view = msg.update.View
	if msg.update.ScrollToEnd {
		m.scroll = 0
	}
	return waitConversation(msg.conv)
}

func (m *Model) toggleFavorite(id string) tea.Cmd {
	ctx := m.ctx
	in := m.inbox
	return func() tea.Msg {
		favorite, err := in.ToggleFavorite(ctx, id)
		return favoriteResultMsg{id: id, favorite: favorite, err: err}
	}
}

func (m *Model) setStatus(text string) {
	m.status = text
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}

func waitInbox(ch <-chan []inbox.Entry) tea.Cmd {
	return func() tea.Msg {
		entries, ok := <-ch
		if !ok {
			return inboxClosedMsg{}
		}
		return inboxMsg{entries: entries}
	}
}

func waitConversation(conv *chat.Conversation) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-conv.Updates()
		if !ok {
			return conversationMsg{conv: conv, closed: true}
		}
		return conversationMsg{conv: conv, update: update}
	}
}

func sendCmd(ctx context.Context, conv *chat.Conversation, text string) tea.Cmd {
	return func() tea.Msg {
		_, err := conv.Send(ctx, text)
		return sendResultMsg{conv: conv, text: text, err: err}
	}
}

func dropLastRune(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return string(r[:len(r)-1])
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
