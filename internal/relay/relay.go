// Package relay mirrors document store change notifications between
// processes that share a database, so subscriptions in one process see
// writes made by another.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/events"
	"github.com/tOgg1/courier/internal/logging"
)

// DefaultSubjectPrefix roots every relay subject.
const DefaultSubjectPrefix = "courier"

// Relay errors.
var (
	ErrNoOrigin       = errors.New("publisher has no origin")
	ErrAlreadyRunning = errors.New("relay already running")
	ErrNotRunning     = errors.New("relay not running")
)

// Stats counts relay traffic.
type Stats struct {
	Forwarded int64
	Received  int64
	Dropped   int64
}

// Relay forwards local changes to the bus and replays remote ones locally.
type Relay struct {
	bus       Bus
	publisher *events.InMemoryPublisher
	prefix    string
	origin    string
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	unsub   func() error

	forwarded atomic.Int64
	received  atomic.Int64
	dropped   atomic.Int64
}

// New creates a relay for publisher, whose origin identifies this process.
func New(bus Bus, publisher *events.InMemoryPublisher, prefix string) (*Relay, error) {
	if publisher.Origin() == "" {
		return nil, ErrNoOrigin
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Relay{
		bus:       bus,
		publisher: publisher,
		prefix:    prefix,
		origin:    publisher.Origin(),
		logger:    logging.Component("relay").With().Str("origin", publisher.Origin()).Logger(),
	}, nil
}

// Subject returns the bus subject for a collection path. Each path segment
// becomes one token; characters NATS reserves in tokens are replaced with
// '_'. Receivers read the collection from the payload, so the mapping need
// not be reversible.
func (r *Relay) Subject(collection string) string {
	segments := strings.Split(collection, "/")
	for i, segment := range segments {
		segments[i] = subjectToken(segment)
	}
	return r.prefix + "." + strings.Join(segments, ".")
}

func subjectToken(segment string) string {
	if segment == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if r == '.' || r == '*' || r == '>' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, segment)
}

// Start begins relaying until ctx ends or Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}

	unsub, err := r.bus.Subscribe(r.prefix+".>", func(data []byte) {
		r.receive(ctx, data)
	})
	if err != nil {
		return err
	}

	err = r.publisher.Subscribe(r.subscriptionID(), events.Filter{Origin: r.origin}, r.forward)
	if err != nil {
		_ = unsub()
		return err
	}

	r.unsub = unsub
	r.running = true
	r.logger.Debug().Str("prefix", r.prefix).Msg("relay started")

	go func() {
		<-ctx.Done()
		_ = r.Stop()
	}()
	return nil
}

// Stop detaches from the bus and the publisher.
func (r *Relay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRunning
	}
	r.running = false
	_ = r.publisher.Unsubscribe(r.subscriptionID())
	return r.unsub()
}

// Stats returns traffic counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Forwarded: r.forwarded.Load(),
		Received:  r.received.Load(),
		Dropped:   r.dropped.Load(),
	}
}

func (r *Relay) subscriptionID() string {
	return "relay-" + r.origin
}

func (r *Relay) forward(change *events.Change) {
	data, err := json.Marshal(change)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to encode change")
		return
	}
	if err := r.bus.Publish(r.Subject(change.Collection), data); err != nil {
		r.logger.Warn().Err(err).Str("collection", change.Collection).Msg("failed to forward change")
		return
	}
	r.forwarded.Add(1)
}

func (r *Relay) receive(ctx context.Context, data []byte) {
	var change events.Change
	if err := json.Unmarshal(data, &change); err != nil {
		r.dropped.Add(1)
		r.logger.Warn().Err(err).Msg("discarding malformed change")
		return
	}
	// Our own changes come back from the bus.
	if change.Origin == r.origin || change.Origin == "" {
		r.dropped.Add(1)
		return
	}
	r.received.Add(1)
	r.publisher.Publish(ctx, &change)
}
