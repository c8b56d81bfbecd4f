// Package store provides the real-time document store the messaging core
// reads from and writes to.
//
// Documents live in collections addressed by slash-separated paths
// ("users", "chats/{conversationId}/messages"). Subscriptions deliver full,
// authoritative snapshots of a query's result set every time the collection
// changes; a slow consumer always receives the latest state rather than a
// backlog.
package store

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/events"
	"github.com/tOgg1/courier/internal/logging"
)

// Store errors.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("collection and document id are required")
)

// Fields holds a document's field values.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Document is one stored record.
type Document struct {
	ID         string
	Collection string
	Fields     Fields
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Filter is an equality constraint on a field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	// OrderBy names the sort field; empty keeps insertion order.
	OrderBy   string
	Direction Direction
	// Limit caps the result size (0 = unlimited).
	Limit int
}

// Where returns a copy of q with an added equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Snapshot is one delivery on a subscription. A snapshot with Err set is
// the last one; the channel is closed after it.
type Snapshot struct {
	Documents []Document
	Err       error
}

// Store is the document store contract.
type Store interface {
	// Subscribe delivers the query result now and after every change to
	// the collection. The returned func cancels the subscription and
	// closes the channel.
	Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func())

	// Append adds a document with a store-assigned id.
	Append(ctx context.Context, collection string, fields Fields) (string, error)

	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, fields Fields) error

	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Get reads one document.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query runs a one-shot query.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Delete removes a document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, collection, id string) error
}

type options struct {
	publisher *events.InMemoryPublisher
	newID     func() string
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a store.
type Option func(*options)

// WithPublisher routes change notifications through p.
func WithPublisher(p *events.InMemoryPublisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithNow overrides the clock used for bookkeeping timestamps.
func WithNow(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.Component(component),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.publisher == nil {
		o.publisher = events.NewInMemoryPublisher()
	}
	return o
}

func checkPath(collection, id string) error {
	if collection == "" || id == "" {
		return ErrInvalidPath
	}
	return nil
}
