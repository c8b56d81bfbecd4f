package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus is the message transport the relay rides on.
type Bus interface {
	Publish(subject string, data []byte) error
	// Subscribe registers handler for subject, which may use NATS wildcards.
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func() error, err error)
}

// NATSBus is a Bus over a core NATS connection.
type NATSBus struct {
	conn *nats.Conn
}

var _ Bus = (*NATSBus)(nil)

// Connect dials url and returns a bus that reconnects indefinitely.
func Connect(url, name string) (*NATSBus, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSBus{conn: nc}, nil
}

// NewNATSBus wraps an existing connection.
func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{conn: nc}
}

// Publish implements Bus.
func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Close flushes pending publishes and closes the connection.
func (b *NATSBus) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	if err := b.conn.Flush(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return err
	}
	b.conn.Close()
	return nil
}
