package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/courier/internal/chat"
	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/delivery"
	"github.com/tOgg1/courier/internal/inbox"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
	"github.com/tOgg1/courier/internal/testutil"
)

type fakeInbox struct {
	mu      sync.Mutex
	filters []inbox.Filter
	toggled []string
	updates chan []inbox.Entry
	once    sync.Once
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{updates: make(chan []inbox.Entry, 1)}
}

func (f *fakeInbox) Start(context.Context) error { return nil }

func (f *fakeInbox) Updates() <-chan []inbox.Entry { return f.updates }

func (f *fakeInbox) Close() {
	f.once.Do(func() { close(f.updates) })
}

func (f *fakeInbox) SetFilter(filter inbox.Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
}

func (f *fakeInbox) lastFilter() inbox.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

func (f *fakeInbox) ToggleFavorite(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, id)
	return true, nil
}

type env struct {
	store   store.Store
	channel *crypto.Channel
	svc     *chat.Service
	inbox   *fakeInbox
	model   *Model
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.NewMemoryStore()
	channel := testutil.Channel(t)
	svc, err := chat.NewService(s, channel, delivery.NewTracker(s), chat.Config{Local: "alice", Location: time.UTC})
	require.NoError(t, err)

	fi := newFakeInbox()
	m, err := NewModel(context.Background(), Options{
		Chat:           svc,
		Inbox:          fi,
		Location:       time.UTC,
		ShowTimestamps: true,
		ShowStatus:     true,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(inboxMsg{entries: []inbox.Entry{
		{Profile: models.Profile{ID: "bob", Username: "Bob"}, Preview: "No messages yet"},
		{Profile: models.Profile{ID: "carol", Username: "Carol"}, Preview: "Carol: hi", Unread: true},
	}})
	return &env{store: s, channel: channel, svc: svc, inbox: fi, model: m}
}

func (e *env) seed(t *testing.T, from, to, body string) string {
	t.Helper()
	ciphertext, err := e.channel.Seal(context.Background(), body)
	require.NoError(t, err)
	msg := models.Message{SenderID: from, ReceiverID: to, Ciphertext: ciphertext, Timestamp: time.Now().UnixMilli()}
	id, err := e.store.Append(context.Background(), models.MessagesPath(models.DeriveConversationID(from, to)), msg.Fields())
	require.NoError(t, err)
	return id
}

func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("command did not complete")
		return nil
	}
}

func press(m *Model, keys ...tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = m.Update(k)
	}
	return cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

// pump feeds conversation updates back into the model until pred holds.
func pump(t *testing.T, m *Model, next tea.Cmd, pred func() bool) tea.Cmd {
	t.Helper()
	for i := 0; i < 10 && !pred(); i++ {
		_, next = m.Update(runCmd(t, next))
	}
	require.True(t, pred())
	return next
}

func TestInboxNavigation(t *testing.T) {
	e := newEnv(t)
	m := e.model

	view := m.View()
	require.Contains(t, view, "Bob")
	require.Contains(t, view, "Carol: hi")
	require.Contains(t, view, "●")
	require.Contains(t, view, "Select a conversation")

	press(m, key(tea.KeyDown))
	require.Equal(t, 1, m.cursor)
	press(m, key(tea.KeyDown))
	require.Equal(t, 1, m.cursor)
	press(m, runes("k"))
	require.Equal(t, 0, m.cursor)

	_, cmd := m.Update(inboxMsg{entries: nil})
	require.NotNil(t, cmd)
	require.Equal(t, 0, m.cursor)
	require.Contains(t, m.View(), "No conversations")
}

func TestSearchUpdatesInboxFilter(t *testing.T) {
	e := newEnv(t)
	m := e.model

	press(m, runes("/"))
	require.Equal(t, focusSearch, m.focus)

	press(m, runes("ca"), runes("r"))
	require.Equal(t, inbox.Filter{Mode: inbox.FilterSearch, Query: "car"}, e.inbox.lastFilter())

	press(m, key(tea.KeyBackspace))
	require.Equal(t, inbox.Filter{Mode: inbox.FilterSearch, Query: "ca"}, e.inbox.lastFilter())
	require.Contains(t, m.View(), "/ca")

	press(m, key(tea.KeyEsc))
	require.Equal(t, focusInbox, m.focus)
	require.Equal(t, inbox.Filter{Mode: inbox.FilterAll}, e.inbox.lastFilter())

	press(m, runes("2"))
	require.Equal(t, inbox.Filter{Mode: inbox.FilterFavorites}, e.inbox.lastFilter())
}

func TestToggleFavorite(t *testing.T) {
	e := newEnv(t)
	m := e.model

	cmd := press(m, runes("f"))
	msg := runCmd(t, cmd)
	m.Update(msg)

	require.Equal(t, []string{"bob"}, e.inbox.toggled)
	require.Contains(t, m.View(), "bob added to favorites")
}

func TestOpenConversationAndSend(t *testing.T) {
	e := newEnv(t)
	m := e.model

	next := press(m, key(tea.KeyEnter))
	require.NotNil(t, m.conv)
	require.Equal(t, focusChat, m.focus)
	_, next = m.Update(runCmd(t, next))

	press(m, runes("i"))
	require.Equal(t, focusCompose, m.focus)
	press(m, runes("hello"), key(tea.KeySpace), runes("bob"))
	require.Equal(t, "hello bob", m.compose)

	sent := press(m, key(tea.KeyEnter))
	require.True(t, m.sending)
	m.Update(runCmd(t, sent))
	require.False(t, m.sending)
	require.Empty(t, m.compose)

	pump(t, m, next, func() bool { return len(m.view.Messages()) == 1 })
	view := m.View()
	require.Contains(t, view, "hello bob")
	require.Contains(t, view, "you")
}

func TestEmptyComposeDoesNotSend(t *testing.T) {
	e := newEnv(t)
	m := e.model

	press(m, key(tea.KeyEnter))
	press(m, runes("i"), key(tea.KeySpace))
	require.Nil(t, press(m, key(tea.KeyEnter)))
	require.False(t, m.sending)
}

func TestSeenOnlyWhileChatFocused(t *testing.T) {
	e := newEnv(t)
	m := e.model
	conv := models.DeriveConversationID("alice", "bob")
	first := e.seed(t, "bob", "alice", "are you there?")

	next := press(m, key(tea.KeyEnter))
	next = pump(t, m, next, func() bool { return len(m.view.Messages()) == 1 })

	require.Eventually(t, func() bool {
		doc, err := e.store.Get(context.Background(), models.MessagesPath(conv), first)
		return err == nil && models.BoolField(doc.Fields, models.FieldSeen)
	}, 3*time.Second, 10*time.Millisecond)

	press(m, key(tea.KeyEsc))
	require.Equal(t, focusInbox, m.focus)

	second := e.seed(t, "bob", "alice", "hello?")
	pump(t, m, next, func() bool {
		for _, msg := range m.view.Messages() {
			if msg.ID == second {
				return true
			}
		}
		return false
	})

	doc, err := e.store.Get(context.Background(), models.MessagesPath(conv), second)
	require.NoError(t, err)
	require.False(t, models.BoolField(doc.Fields, models.FieldSeen))
}

func TestStaleConversationUpdatesIgnored(t *testing.T) {
	e := newEnv(t)
	m := e.model

	stale := press(m, key(tea.KeyEnter))
	press(m, key(tea.KeyEsc), key(tea.KeyDown), key(tea.KeyEnter))
	require.Equal(t, "carol", m.counterpart)

	_, cmd := m.Update(runCmd(t, stale))
	require.Nil(t, cmd)
	require.Equal(t, "carol", m.counterpart)
}

func TestRenderConversation(t *testing.T) {
	e := newEnv(t)
	m := e.model
	m.counterpart = "bob"

	day1 := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	long := strings.Repeat("lorem ipsum ", 20)
	m.view = models.BuildView(models.DeriveConversationID("alice", "bob"), []models.Message{
		{ID: "1", SenderID: "bob", ReceiverID: "alice", Body: long, Timestamp: day1.UnixMilli()},
		{ID: "2", SenderID: "alice", ReceiverID: "bob", Body: "see you", Timestamp: day2.UnixMilli(), Delivered: true, Seen: true},
		{ID: "3", SenderID: "bob", ReceiverID: "alice", Ciphertext: "garbage", Timestamp: day2.Add(time.Minute).UnixMilli()},
	}, time.UTC)

	view := m.View()
	require.Contains(t, view, "Mar 5, 2024")
	require.Contains(t, view, "Mar 6, 2024")
	require.Contains(t, view, "02:07 PM")
	require.Contains(t, view, "· Seen")
	require.Contains(t, view, "unable to decrypt")
	require.Contains(t, view, "press i to write")

	for _, line := range strings.Split(view, "\n") {
		require.LessOrEqual(t, strings.Count(line, "lorem"), 12)
	}
}

func TestNewModelRequiresServices(t *testing.T) {
	_, err := NewModel(context.Background(), Options{})
	require.Error(t, err)
}
