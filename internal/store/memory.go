package store

import (
	"context"
	"sync"

	"github.com/tOgg1/courier/internal/events"
)

type memCollection struct {
	order []string
	docs  map[string]Fields
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	opts        options
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		opts:        buildOptions("store.memory", opts),
	}
}

// Publisher returns the change publisher the store notifies.
func (s *MemoryStore) Publisher() *events.InMemoryPublisher {
	return s.opts.publisher
}

// Subscribe implements Store.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func()) {
	return watch(ctx, s.opts.publisher, q, s.Query, s.opts.logger)
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, collection string, fields Fields) (string, error) {
	id := s.opts.newID()
	if err := checkPath(collection, id); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	c := s.collection(collection)
	c.order = append(c.order, id)
	c.docs[id] = fields.Clone()
	s.mu.Unlock()

	s.notify(ctx, collection, id, events.ChangeCreated)
	return id, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	if err := checkPath(collection, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	kind := events.ChangeUpdated
	s.mu.Lock()
	c := s.collection(collection)
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
		kind = events.ChangeCreated
	}
	c.docs[id] = fields.Clone()
	s.mu.Unlock()

	s.notify(ctx, collection, id, kind)
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := checkPath(collection, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	c, ok := s.collections[collection]
	if !ok || c.docs[id] == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged := c.docs[id].Clone()
	for k, v := range fields {
		merged[k] = v
	}
	c.docs[id] = merged
	s.mu.Unlock()

	s.notify(ctx, collection, id, events.ChangeUpdated)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := checkPath(collection, id); err != nil {
		return Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok || c.docs[id] == nil {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Collection: collection, Fields: c.docs[id].Clone()}, nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if q.Collection == "" {
		return nil, ErrInvalidPath
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	c, ok := s.collections[q.Collection]
	var docs []Document
	if ok {
		docs = make([]Document, 0, len(c.order))
		for _, id := range c.order {
			docs = append(docs, Document{ID: id, Collection: q.Collection, Fields: c.docs[id].Clone()})
		}
	}
	s.mu.RUnlock()

	return applyQuery(docs, q), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := checkPath(collection, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	c, ok := s.collections[collection]
	if !ok || c.docs[id] == nil {
		s.mu.Unlock()
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(ctx, collection, id, events.ChangeDeleted)
	return nil
}

// collection returns the named collection, creating it. Caller holds mu.
func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Fields)}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) notify(ctx context.Context, collection, id string, kind events.ChangeKind) {
	s.opts.publisher.Publish(ctx, &events.Change{Collection: collection, DocumentID: id, Kind: kind})
}
