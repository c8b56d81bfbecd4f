package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

func next(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok)
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for profiles")
		return Snapshot{}
	}
}

func TestRegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	dir := New(store.NewMemoryStore())

	require.NoError(t, dir.Register(ctx, models.Profile{ID: "alice", Username: "Alice", AvatarURL: "https://example.com/a.png"}))

	p, err := dir.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Username)
	require.Equal(t, "https://example.com/a.png", p.AvatarURL)

	_, err = dir.Lookup(ctx, "nobody")
	require.ErrorIs(t, err, ErrUnknownProfile)

	require.Error(t, dir.Register(ctx, models.Profile{ID: "a-b"}))
}

func TestSubscribeFollowsRegistrations(t *testing.T) {
	ctx := context.Background()
	dir := New(store.NewMemoryStore())
	require.NoError(t, dir.Register(ctx, models.Profile{ID: "alice", Username: "Alice"}))

	ch, stop := dir.Subscribe(ctx)
	defer stop()

	snap := next(t, ch)
	require.NoError(t, snap.Err)
	require.Len(t, snap.Profiles, 1)

	require.NoError(t, dir.Register(ctx, models.Profile{ID: "bob", Username: "Bob"}))
	snap = next(t, ch)
	require.Len(t, snap.Profiles, 2)
	require.Equal(t, "bob", snap.Profiles[1].ID)

	profiles, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	stop()
	_, ok := <-ch
	require.False(t, ok)
}
