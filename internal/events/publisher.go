// Package events fans out document store change notifications.
package events

import (
	"context"
	"slices"
	"sync"
	"time"
)

// ChangeKind describes what happened to a document.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is emitted after a document in a collection is written.
type Change struct {
	Collection string     `json:"collection"`
	DocumentID string     `json:"document_id"`
	Kind       ChangeKind `json:"kind"`
	// Origin identifies the process that made the write.
	Origin string    `json:"origin,omitempty"`
	Time   time.Time `json:"time"`
}

// Handler is invoked when a change matches a subscription.
type Handler func(change *Change)

// Filter defines criteria for matching changes.
type Filter struct {
	// Collections filters by collection path (nil = all collections).
	Collections []string

	// Kinds filters by change kind (nil = all kinds).
	Kinds []ChangeKind

	// Origin keeps only changes from this origin (empty = any).
	Origin string

	// ExcludeOrigin drops changes from this origin.
	ExcludeOrigin string
}

// Matches returns true if the change matches the filter criteria.
func (f *Filter) Matches(change *Change) bool {
	if change == nil {
		return false
	}
	if len(f.Collections) > 0 && !slices.Contains(f.Collections, change.Collection) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, change.Kind) {
		return false
	}
	if f.Origin != "" && change.Origin != f.Origin {
		return false
	}
	if f.ExcludeOrigin != "" && change.Origin == f.ExcludeOrigin {
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Publisher defines change publishing and subscription.
type Publisher interface {
	// Publish sends a change to all matching subscribers.
	Publish(ctx context.Context, change *Change)

	// Subscribe registers a handler for changes matching the filter.
	Subscribe(id string, filter Filter, handler Handler) error

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher using in-process pub/sub.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	origin        string
	now           func() time.Time
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithOrigin stamps changes that carry no origin.
func WithOrigin(origin string) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.origin = origin
	}
}

// WithNow overrides the clock used to stamp changes.
func WithNow(now func() time.Time) PublisherOption {
	return func(p *InMemoryPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewInMemoryPublisher creates a new in-memory change publisher.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Origin returns the origin stamped on local changes.
func (p *InMemoryPublisher) Origin() string {
	return p.origin
}

// Publish sends a change to all matching subscribers synchronously.
func (p *InMemoryPublisher) Publish(ctx context.Context, change *Change) {
	if change == nil {
		return
	}
	if change.Origin == "" {
		change.Origin = p.origin
	}
	if change.Time.IsZero() {
		change.Time = p.now()
	}

	p.mu.RLock()
	var handlers []Handler
	for _, sub := range p.subscriptions {
		if sub.filter.Matches(change) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe or unsubscribe.
	for _, handler := range handlers {
		handler(change)
	}
}

// Subscribe registers a handler to receive changes matching the filter.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}
	p.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	return nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(p.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = make(map[string]*subscription)
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
