package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFilter_Matches(t *testing.T) {
	base := &Change{Collection: "chats/a-b/messages", Kind: ChangeCreated, Origin: "proc-1"}

	tests := []struct {
		name   string
		filter Filter
		change *Change
		want   bool
	}{
		{name: "empty filter matches any change", filter: Filter{}, change: base, want: true},
		{name: "nil change returns false", filter: Filter{}, change: nil, want: false},
		{
			name:   "collection filter matches",
			filter: Filter{Collections: []string{"users", "chats/a-b/messages"}},
			change: base,
			want:   true,
		},
		{
			name:   "collection filter rejects",
			filter: Filter{Collections: []string{"users"}},
			change: base,
			want:   false,
		},
		{
			name:   "kind filter rejects",
			filter: Filter{Kinds: []ChangeKind{ChangeDeleted}},
			change: base,
			want:   false,
		},
		{
			name:   "origin filter matches",
			filter: Filter{Origin: "proc-1"},
			change: base,
			want:   true,
		},
		{
			name:   "exclude origin drops own changes",
			filter: Filter{ExcludeOrigin: "proc-1"},
			change: base,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.change); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_SubscribeErrors(t *testing.T) {
	p := NewInMemoryPublisher()
	handler := func(*Change) {}

	if err := p.Subscribe("", Filter{}, handler); err != ErrInvalidSubscriptionID {
		t.Errorf("expected ErrInvalidSubscriptionID, got %v", err)
	}
	if err := p.Subscribe("a", Filter{}, nil); err != ErrNilHandler {
		t.Errorf("expected ErrNilHandler, got %v", err)
	}
	if err := p.Subscribe("a", Filter{}, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Subscribe("a", Filter{}, handler); err != ErrSubscriptionExists {
		t.Errorf("expected ErrSubscriptionExists, got %v", err)
	}
	if err := p.Unsubscribe("missing"); err != ErrSubscriptionNotFound {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if p.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", p.SubscriberCount())
	}
	p.Close()
	if p.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after Close, got %d", p.SubscriberCount())
	}
}

func TestInMemoryPublisher_PublishStampsOriginAndTime(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewInMemoryPublisher(WithOrigin("proc-1"), WithNow(func() time.Time { return fixed }))

	var got *Change
	if err := p.Subscribe("s", Filter{}, func(c *Change) { got = c }); err != nil {
		t.Fatal(err)
	}

	p.Publish(context.Background(), &Change{Collection: "users", DocumentID: "u1", Kind: ChangeUpdated})
	if got == nil {
		t.Fatal("handler not invoked")
	}
	if got.Origin != "proc-1" {
		t.Errorf("origin = %q, want proc-1", got.Origin)
	}
	if !got.Time.Equal(fixed) {
		t.Errorf("time = %v, want %v", got.Time, fixed)
	}

	p.Publish(context.Background(), &Change{Collection: "users", Origin: "remote"})
	if got.Origin != "remote" {
		t.Errorf("explicit origin overwritten: %q", got.Origin)
	}
}

func TestInMemoryPublisher_HandlerMayUnsubscribe(t *testing.T) {
	p := NewInMemoryPublisher()
	var calls atomic.Int32
	if err := p.Subscribe("once", Filter{}, func(*Change) {
		calls.Add(1)
		_ = p.Unsubscribe("once")
	}); err != nil {
		t.Fatal(err)
	}

	p.Publish(context.Background(), &Change{Collection: "users"})
	p.Publish(context.Background(), &Change{Collection: "users"})
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestInMemoryPublisher_ConcurrentPublish(t *testing.T) {
	p := NewInMemoryPublisher()
	var count atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		if err := p.Subscribe(id, Filter{Collections: []string{"users"}}, func(*Change) { count.Add(1) }); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Publish(context.Background(), &Change{Collection: "users"})
			p.Publish(context.Background(), &Change{Collection: "other"})
		}()
	}
	wg.Wait()

	if count.Load() != 150 {
		t.Errorf("expected 150 deliveries, got %d", count.Load())
	}
}
