package chat

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/logging"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

// State is the lifecycle state of a Conversation.
type State int

const (
	StateIdle State = iota
	StateSubscribed
	StateUnsubscribed
)

func (s State) String() string {
	switch s {
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "idle"
	}
}

// Update is one view emission. Err is set, and View is the last good view,
// when the feed failed.
type Update struct {
	View models.ConversationView
	// ScrollToEnd asks the renderer to jump to the newest message.
	ScrollToEnd bool
	// Seen lists the ids a seen pass just marked.
	Seen []string
	Err  error
}

// Conversation is a live subscription to one conversation.
//
// Updates is latest-wins: a consumer that falls behind skips straight to
// the newest view.
type Conversation struct {
	service     *Service
	id          models.ConversationID
	counterpart string
	logger      zerolog.Logger

	mu       sync.Mutex
	state    State
	messages []models.Message
	view     models.ConversationView
	visible  bool
	closing  bool
	closed   bool

	updates chan Update
	runCtx  context.Context
	cancel  context.CancelFunc
	stop    func()
	wg      sync.WaitGroup
}

func newConversation(s *Service, counterpart string) *Conversation {
	id := models.DeriveConversationID(s.config.Local, counterpart)
	return &Conversation{
		service:     s,
		id:          id,
		counterpart: counterpart,
		logger:      logging.WithConversation(s.logger, id.String()),
		view:        models.ConversationView{ConversationID: id},
		updates:     make(chan Update, 1),
	}
}

// ID returns the conversation id.
func (c *Conversation) ID() models.ConversationID {
	return c.id
}

// Counterpart returns the other participant.
func (c *Conversation) Counterpart() string {
	return c.counterpart
}

// Updates returns the view update channel. It is closed by Close.
func (c *Conversation) Updates() <-chan Update {
	return c.updates
}

// State returns the lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns a copy of the current view.
func (c *Conversation) View() models.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyViewLocked()
}

// Send encrypts text and appends it to the conversation. The new message
// reaches the view through the subscription.
func (c *Conversation) Send(ctx context.Context, text string) (models.Message, error) {
	c.mu.Lock()
	closed := c.closing
	c.mu.Unlock()
	if closed {
		return models.Message{}, ErrClosed
	}
	return c.service.send(ctx, c.counterpart, text)
}

// SetVisible records whether the conversation is on screen. Becoming visible
// runs a seen pass in the background.
func (c *Conversation) SetVisible(visible bool) {
	c.mu.Lock()
	became := visible && !c.visible
	c.visible = visible
	run := became && c.state == StateSubscribed && !c.closing && c.hasUnseenLocked()
	if run {
		c.wg.Add(1)
	}
	ctx := c.ctxLocked()
	c.mu.Unlock()

	if run {
		go func() {
			defer c.wg.Done()
			c.markSeen(ctx)
		}()
	}
}

// Close cancels the subscription and waits for in-flight work. No update is
// delivered after Close returns.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	cancel, stop := c.cancel, c.stop
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		stop()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.closed = true
	c.state = StateUnsubscribed
	close(c.updates)
	c.mu.Unlock()

	c.logger.Debug().Msg("conversation closed")
}

func (c *Conversation) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	feed, stop := c.service.store.Subscribe(ctx, messagesQuery(c.id))

	c.mu.Lock()
	c.runCtx = ctx
	c.cancel = cancel
	c.stop = stop
	c.state = StateSubscribed
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, feed)
}

// ctxLocked returns the subscription context, which background seen passes
// share.
func (c *Conversation) ctxLocked() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

func (c *Conversation) run(ctx context.Context, feed <-chan store.Snapshot) {
	defer c.wg.Done()

	for snap := range feed {
		if snap.Err != nil {
			c.fail(snap.Err)
			return
		}
		if c.apply(ctx, snap.Documents) {
			c.markSeen(ctx)
		}
	}
}

// apply replaces the view from a full snapshot and reports whether a seen
// pass is due.
func (c *Conversation) apply(ctx context.Context, docs []store.Document) bool {
	messages := c.service.decode(ctx, c.id, docs)
	view := models.BuildView(c.id, messages, c.service.config.Location)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.messages = messages
	c.view = view
	c.publishLocked(Update{View: c.copyViewLocked(), ScrollToEnd: true})
	return c.visible && c.hasUnseenLocked()
}

func (c *Conversation) fail(err error) {
	streamErr := &StreamError{ConversationID: c.id, Err: err}
	c.logger.Error().Err(err).Msg("conversation stream failed")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.state = StateUnsubscribed
	c.publishLocked(Update{View: c.copyViewLocked(), Err: streamErr})
}

// markSeen runs a seen pass and patches the view in place without waiting
// for the store to echo the writes.
func (c *Conversation) markSeen(ctx context.Context) {
	updated, err := c.service.tracker.MarkSeen(ctx, c.id, c.service.config.Local)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("seen pass failed")
		}
	}
	if len(updated) == 0 {
		return
	}

	seen := make(map[string]bool, len(updated))
	for _, id := range updated {
		seen[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	for i := range c.messages {
		if seen[c.messages[i].ID] {
			c.messages[i].Seen = true
			c.messages[i].Delivered = true
		}
	}
	c.view = models.BuildView(c.id, c.messages, c.service.config.Location)
	c.publishLocked(Update{View: c.copyViewLocked(), Seen: updated})
}

func (c *Conversation) hasUnseenLocked() bool {
	local := c.service.config.Local
	for _, m := range c.messages {
		if m.ReceiverID == local && !m.Seen {
			return true
		}
	}
	return false
}

func (c *Conversation) copyViewLocked() models.ConversationView {
	return models.ConversationView{
		ConversationID: c.view.ConversationID,
		Items:          slices.Clone(c.view.Items),
	}
}

// publishLocked replaces any undelivered update with u.
func (c *Conversation) publishLocked(u Update) {
	if c.closed {
		return
	}
	select {
	case c.updates <- u:
	default:
		select {
		case <-c.updates:
		default:
		}
		c.updates <- u
	}
}
