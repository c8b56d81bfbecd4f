package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

const (
	alice = "alice"
	bob   = "bob"
)

// flakyStore fails Update for the listed document ids.
type flakyStore struct {
	store.Store
	mu      sync.Mutex
	failIDs map[string]bool
}

func (f *flakyStore) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	f.mu.Lock()
	fail := f.failIDs[id]
	f.mu.Unlock()
	if fail {
		return errors.New("write rejected")
	}
	return f.Store.Update(ctx, collection, id, fields)
}

// pendingLocks reports how many conversations have a pass in flight.
func (t *Tracker) pendingLocks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func appendMessage(t *testing.T, s store.Store, conv models.ConversationID, from, to string, ts int64) string {
	t.Helper()
	msg := models.Message{SenderID: from, ReceiverID: to, Ciphertext: "x", Timestamp: ts}
	id, err := s.Append(context.Background(), models.MessagesPath(conv), msg.Fields())
	require.NoError(t, err)
	return id
}

func load(t *testing.T, s store.Store, conv models.ConversationID, id string) models.Message {
	t.Helper()
	doc, err := s.Get(context.Background(), models.MessagesPath(conv), id)
	require.NoError(t, err)
	msg, err := models.MessageFromFields(doc.ID, doc.Fields)
	require.NoError(t, err)
	return msg
}

func TestMarkDelivered(t *testing.T) {
	s := store.NewMemoryStore()
	tracker := NewTracker(s)
	conv := models.DeriveConversationID(alice, bob)
	id := appendMessage(t, s, conv, alice, bob, 1)

	require.Equal(t, models.StatusSent, load(t, s, conv, id).Status())
	require.NoError(t, tracker.MarkDelivered(context.Background(), conv, id))
	require.Equal(t, models.StatusDelivered, load(t, s, conv, id).Status())
}

func TestMarkDeliveredMissingMessage(t *testing.T) {
	tracker := NewTracker(store.NewMemoryStore())
	conv := models.DeriveConversationID(alice, bob)

	err := tracker.MarkDelivered(context.Background(), conv, "nope")
	var statusErr *StatusUpdateError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "nope", statusErr.MessageID)
	require.Equal(t, models.StatusDelivered, statusErr.Status)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkSeenOnlyReaderUnseenMessages(t *testing.T) {
	s := store.NewMemoryStore()
	tracker := NewTracker(s)
	conv := models.DeriveConversationID(alice, bob)

	toBob1 := appendMessage(t, s, conv, alice, bob, 1)
	toAlice := appendMessage(t, s, conv, bob, alice, 2)
	toBob2 := appendMessage(t, s, conv, alice, bob, 3)

	updated, err := tracker.MarkSeen(context.Background(), conv, bob)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{toBob1, toBob2}, updated)

	for _, id := range []string{toBob1, toBob2} {
		msg := load(t, s, conv, id)
		require.True(t, msg.Seen)
		require.True(t, msg.Delivered, "seen implies delivered")
		require.Equal(t, "Seen", StatusLabel(msg))
	}
	require.False(t, load(t, s, conv, toAlice).Seen)

	again, err := tracker.MarkSeen(context.Background(), conv, bob)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestMarkSeenRecordWithoutSeenField(t *testing.T) {
	s := store.NewMemoryStore()
	tracker := NewTracker(s)
	conv := models.DeriveConversationID(alice, bob)

	id, err := s.Append(context.Background(), models.MessagesPath(conv), store.Fields{
		models.FieldSenderID:   alice,
		models.FieldReceiverID: bob,
		models.FieldMessage:    "x",
		models.FieldTimestamp:  int64(1),
	})
	require.NoError(t, err)

	updated, err := tracker.MarkSeen(context.Background(), conv, bob)
	require.NoError(t, err)
	require.Equal(t, []string{id}, updated)

	msg := load(t, s, conv, id)
	require.True(t, msg.Seen)
	require.True(t, msg.Delivered)
}

func TestMarkSeenSkipsFailedWrites(t *testing.T) {
	mem := store.NewMemoryStore()
	conv := models.DeriveConversationID(alice, bob)
	ok1 := appendMessage(t, mem, conv, alice, bob, 1)
	bad := appendMessage(t, mem, conv, alice, bob, 2)
	ok2 := appendMessage(t, mem, conv, alice, bob, 3)

	tracker := NewTracker(&flakyStore{Store: mem, failIDs: map[string]bool{bad: true}})
	updated, err := tracker.MarkSeen(context.Background(), conv, bob)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{ok1, ok2}, updated)
	require.False(t, load(t, mem, conv, bad).Seen)
}

func TestMarkSeenConcurrentPassesDoNotDoubleUpdate(t *testing.T) {
	s := store.NewMemoryStore()
	tracker := NewTracker(s)
	conv := models.DeriveConversationID(alice, bob)
	for i := int64(1); i <= 10; i++ {
		appendMessage(t, s, conv, alice, bob, i)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updated, err := tracker.MarkSeen(context.Background(), conv, bob)
			assert.NoError(t, err)
			mu.Lock()
			total += len(updated)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 10, total)
	require.Zero(t, tracker.pendingLocks())
}

func TestMarkSeenReleasesConversationLocks(t *testing.T) {
	s := store.NewMemoryStore()
	tracker := NewTracker(s)
	for _, peer := range []string{"carol", "dave", "erin"} {
		conv := models.DeriveConversationID(alice, peer)
		appendMessage(t, s, conv, peer, alice, 1)
		_, err := tracker.MarkSeen(context.Background(), conv, alice)
		require.NoError(t, err)
	}
	require.Zero(t, tracker.pendingLocks())
}

func TestLabels(t *testing.T) {
	require.Equal(t, "Sent", StatusLabel(models.Message{}))
	require.Equal(t, "Delivered", StatusLabel(models.Message{Delivered: true}))
	require.Equal(t, "Seen", StatusLabel(models.Message{Seen: true}))

	ts := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC).UnixMilli()
	require.Equal(t, "02:07 PM", TimeLabel(models.Message{Timestamp: ts}, time.UTC))
}
