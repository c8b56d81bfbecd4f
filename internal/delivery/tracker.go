// Package delivery advances messages through Sent, Delivered and Seen and
// persists each transition to the document store.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/logging"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

// StatusUpdateError reports a failed delivered/seen write.
type StatusUpdateError struct {
	ConversationID models.ConversationID
	MessageID      string
	Status         models.DeliveryStatus
	Err            error
}

func (e *StatusUpdateError) Error() string {
	return fmt.Sprintf("mark %s/%s as %s: %v", e.ConversationID, e.MessageID, e.Status, e.Err)
}

func (e *StatusUpdateError) Unwrap() error {
	return e.Err
}

// Tracker writes delivery state transitions. It is safe for concurrent use.
type Tracker struct {
	store  store.Store
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[models.ConversationID]*passLock
}

// passLock serializes seen passes for one conversation. refs counts the
// passes holding or waiting on it; the entry is dropped at zero.
type passLock struct {
	mu   sync.Mutex
	refs int
}

// NewTracker creates a tracker writing to s.
func NewTracker(s store.Store) *Tracker {
	return &Tracker{
		store:  s,
		logger: logging.Component("delivery"),
		locks:  make(map[models.ConversationID]*passLock),
	}
}

// MarkDelivered sets delivered=true on one message.
func (t *Tracker) MarkDelivered(ctx context.Context, conv models.ConversationID, messageID string) error {
	err := t.store.Update(ctx, models.MessagesPath(conv), messageID, store.Fields{
		models.FieldDelivered: true,
	})
	if err != nil {
		return &StatusUpdateError{ConversationID: conv, MessageID: messageID, Status: models.StatusDelivered, Err: err}
	}
	return nil
}

// MarkSeen marks every message addressed to reader that is not yet seen.
// Seen messages are also marked delivered. A failed write for one message
// is logged and the pass continues; the ids actually updated are returned.
// Passes for the same conversation never overlap. A record without a seen
// field counts as unseen.
func (t *Tracker) MarkSeen(ctx context.Context, conv models.ConversationID, reader string) ([]string, error) {
	lock := t.acquire(conv)
	defer t.release(conv, lock)

	path := models.MessagesPath(conv)
	docs, err := t.store.Query(ctx, store.Query{Collection: path}.
		Where(models.FieldReceiverID, reader))
	if err != nil {
		return nil, fmt.Errorf("query unseen messages in %s: %w", conv, err)
	}

	logger := logging.WithConversation(t.logger, conv.String())
	updated := make([]string, 0, len(docs))
	for _, doc := range docs {
		if models.BoolField(doc.Fields, models.FieldSeen) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		err := t.store.Update(ctx, path, doc.ID, store.Fields{
			models.FieldSeen:      true,
			models.FieldDelivered: true,
		})
		if err != nil {
			logger.Warn().
				Err(&StatusUpdateError{ConversationID: conv, MessageID: doc.ID, Status: models.StatusSeen, Err: err}).
				Msg("seen update failed")
			continue
		}
		updated = append(updated, doc.ID)
	}

	if len(updated) > 0 {
		logger.Debug().Int("count", len(updated)).Str("reader", reader).Msg("messages marked seen")
	}
	return updated, nil
}

func (t *Tracker) acquire(conv models.ConversationID) *passLock {
	t.mu.Lock()
	lock, ok := t.locks[conv]
	if !ok {
		lock = &passLock{}
		t.locks[conv] = lock
	}
	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (t *Tracker) release(conv models.ConversationID, lock *passLock) {
	lock.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(t.locks, conv)
	}
}

// StatusLabel is the sender-facing label for m: "Seen", "Delivered" or "Sent".
func StatusLabel(m models.Message) string {
	return m.Status().String()
}

// TimeLabel formats the message time in loc as "03:04 PM".
func TimeLabel(m models.Message, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return m.Time().In(loc).Format(models.TimeLayout)
}
