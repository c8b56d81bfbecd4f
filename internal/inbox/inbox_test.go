package inbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/delivery"
	"github.com/tOgg1/courier/internal/directory"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
	"github.com/tOgg1/courier/internal/testutil"
)

type fixture struct {
	store   store.Store
	dir     *directory.StoreDirectory
	channel *crypto.Channel
	clock   int64
}

func newFixture(t *testing.T, s store.Store, users ...string) *fixture {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	f := &fixture{store: s, dir: directory.New(s), channel: testutil.Channel(t), clock: 1_700_000_000_000}
	for _, u := range users {
		require.NoError(t, f.dir.Register(context.Background(), models.Profile{ID: u, Username: strings.ToUpper(u[:1]) + u[1:]}))
	}
	return f
}

func (f *fixture) send(t *testing.T, from, to, body string) string {
	t.Helper()
	ciphertext, err := f.channel.Seal(context.Background(), body)
	require.NoError(t, err)
	return f.sendRaw(t, from, to, ciphertext)
}

func (f *fixture) sendRaw(t *testing.T, from, to, ciphertext string) string {
	t.Helper()
	f.clock += 1000
	msg := models.Message{SenderID: from, ReceiverID: to, Ciphertext: ciphertext, Timestamp: f.clock}
	id, err := f.store.Append(context.Background(), models.MessagesPath(models.DeriveConversationID(from, to)), msg.Fields())
	require.NoError(t, err)
	return id
}

func (f *fixture) start(t *testing.T, local string) *Aggregator {
	t.Helper()
	agg, err := New(f.dir, f.store, f.channel, local)
	require.NoError(t, err)
	require.NoError(t, agg.Start(context.Background()))
	t.Cleanup(agg.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, agg.WaitSynced(ctx))
	return agg
}

func byID(entries []Entry) map[string]Entry {
	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		out[e.Profile.ID] = e
	}
	return out
}

func waitEntries(t *testing.T, a *Aggregator, pred func([]Entry) bool) []Entry {
	t.Helper()
	if entries := a.Entries(); pred(entries) {
		return entries
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case entries, ok := <-a.Updates():
			require.True(t, ok, "updates closed")
			if pred(entries) {
				return entries
			}
		case <-deadline:
			t.Fatalf("timed out; last entries: %+v", a.Entries())
			return nil
		}
	}
}

func TestPreviews(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob", "carol", "dave", "erin")
	f.send(t, "bob", "alice", "hey")
	f.send(t, "alice", "carol", "yo")
	f.sendRaw(t, "erin", "alice", "bm90IGNpcGhlcnRleHQ=")

	agg := f.start(t, "alice")
	entries := byID(agg.All())

	require.Len(t, entries, 4)
	require.NotContains(t, entries, "alice")

	require.Equal(t, "Bob: hey", entries["bob"].Preview)
	require.True(t, entries["bob"].Unread)

	require.Equal(t, "You: yo", entries["carol"].Preview)
	require.False(t, entries["carol"].Unread)

	require.Equal(t, PreviewNoMessages, entries["dave"].Preview)
	require.False(t, entries["dave"].Unread)

	require.Equal(t, "Erin: "+PreviewDecryptionError, entries["erin"].Preview)
}

func TestPreviewFollowsLatestMessage(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	f.send(t, "bob", "alice", "first")
	agg := f.start(t, "alice")

	f.send(t, "alice", "bob", "second")
	entries := waitEntries(t, agg, func(entries []Entry) bool {
		return len(entries) == 1 && entries[0].Preview == "You: second"
	})
	require.False(t, entries[0].Unread)
}

func TestUnreadClearsAfterSeenPass(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	f.send(t, "bob", "alice", "ping")
	agg := f.start(t, "alice")
	require.True(t, byID(agg.All())["bob"].Unread)

	_, err := delivery.NewTracker(f.store).MarkSeen(context.Background(), models.DeriveConversationID("alice", "bob"), "alice")
	require.NoError(t, err)

	waitEntries(t, agg, func(entries []Entry) bool {
		return len(entries) == 1 && !entries[0].Unread
	})
}

func TestFavoritesFilter(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob", "carol")
	agg := f.start(t, "alice")

	fav, err := agg.ToggleFavorite(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, fav)

	agg.SetFilter(Filter{Mode: FilterFavorites})
	entries := waitEntries(t, agg, func(entries []Entry) bool {
		return len(entries) == 1 && entries[0].Profile.ID == "bob"
	})
	require.True(t, entries[0].Favorite)

	fav, err = agg.ToggleFavorite(context.Background(), "bob")
	require.NoError(t, err)
	require.False(t, fav)
	waitEntries(t, agg, func(entries []Entry) bool { return len(entries) == 0 })

	agg.SetFilter(Filter{Mode: FilterAll})
	require.Len(t, agg.Entries(), 2)

	_, err = agg.ToggleFavorite(context.Background(), "alice")
	require.ErrorIs(t, err, models.ErrSelfIdentity)
}

func TestRemovedProfileIsDropped(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob", "carol")
	agg := f.start(t, "alice")
	require.Len(t, agg.All(), 2)

	require.NoError(t, f.store.Delete(context.Background(), models.UsersCollection, "carol"))
	entries := waitEntries(t, agg, func(entries []Entry) bool { return len(entries) == 1 })
	require.Equal(t, "bob", entries[0].Profile.ID)
}

func TestProfileRenameUpdatesPreview(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	f.send(t, "bob", "alice", "hi")
	agg := f.start(t, "alice")

	require.NoError(t, f.dir.Register(context.Background(), models.Profile{ID: "bob", Username: "Robert"}))
	waitEntries(t, agg, func(entries []Entry) bool {
		return len(entries) == 1 && entries[0].Preview == "Robert: hi"
	})
}

type failingMessagesStore struct {
	store.Store
}

func (f failingMessagesStore) Subscribe(ctx context.Context, q store.Query) (<-chan store.Snapshot, func()) {
	if strings.HasPrefix(q.Collection, models.ChatsCollection+"/") {
		ch := make(chan store.Snapshot, 1)
		ch <- store.Snapshot{Err: errors.New("permission denied")}
		close(ch)
		return ch, func() {}
	}
	return f.Store.Subscribe(ctx, q)
}

func TestSubscriptionErrorPreview(t *testing.T) {
	f := newFixture(t, failingMessagesStore{Store: store.NewMemoryStore()}, "alice", "bob")
	agg := f.start(t, "alice")

	entries := agg.All()
	require.Len(t, entries, 1)
	require.Equal(t, PreviewFetchError, entries[0].Preview)
	require.False(t, entries[0].Unread)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t, nil, "alice")
	agg, err := New(f.dir, f.store, f.channel, "alice")
	require.NoError(t, err)

	require.ErrorIs(t, agg.WaitSynced(context.Background()), ErrNotStarted)
	require.NoError(t, agg.Start(context.Background()))
	require.ErrorIs(t, agg.Start(context.Background()), ErrAlreadyStarted)

	agg.Close()
	agg.Close()
	for range agg.Updates() {
	}
	require.ErrorIs(t, agg.Start(context.Background()), ErrAlreadyStarted)

	_, err = New(f.dir, f.store, f.channel, "")
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	entries := []Entry{
		{Profile: models.Profile{ID: "u1", Username: "Alice"}, Favorite: true},
		{Profile: models.Profile{ID: "u2", Username: "Bob"}},
		{Profile: models.Profile{ID: "u3", Username: "alina"}},
	}

	require.Len(t, Apply(entries, Filter{}), 3)
	require.Len(t, Apply(entries, Filter{Mode: FilterSearch}), 3, "empty query matches all")

	got := Apply(entries, Filter{Mode: FilterSearch, Query: "Ali"})
	require.Len(t, got, 2)
	require.Equal(t, "Alice", got[0].Profile.Username)
	require.Equal(t, "alina", got[1].Profile.Username)

	favs := Apply(entries, Filter{Mode: FilterFavorites})
	require.Len(t, favs, 1)
	require.Equal(t, "u1", favs[0].Profile.ID)
	require.Equal(t, "favorites", FilterFavorites.String())
}
