package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Persisted message record field names.
const (
	FieldSenderID   = "senderId"
	FieldReceiverID = "receiverId"
	FieldMessage    = "message"
	FieldTimestamp  = "timestamp"
	FieldDelivered  = "delivered"
	FieldSeen       = "seen"
)

// DeliveryStatus is the sender-visible state of a message.
type DeliveryStatus int

const (
	StatusSent DeliveryStatus = iota
	StatusDelivered
	StatusSeen
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSeen:
		return "Seen"
	case StatusDelivered:
		return "Delivered"
	default:
		return "Sent"
	}
}

// Message is one entry of a conversation. Body is the decrypted text and is
// never persisted.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Ciphertext string
	Body       string
	Timestamp  int64
	Delivered  bool
	Seen       bool
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Status derives the delivery status. Seen implies delivered.
func (m Message) Status() DeliveryStatus {
	switch {
	case m.Seen:
		return StatusSeen
	case m.Delivered:
		return StatusDelivered
	default:
		return StatusSent
	}
}

// SentBy reports whether identity authored the message.
func (m Message) SentBy(identity string) bool {
	return m.SenderID == identity
}

// Fields returns the persisted record for the message.
func (m Message) Fields() map[string]any {
	return map[string]any{
		FieldSenderID:   m.SenderID,
		FieldReceiverID: m.ReceiverID,
		FieldMessage:    m.Ciphertext,
		FieldTimestamp:  m.Timestamp,
		FieldDelivered:  m.Delivered,
		FieldSeen:       m.Seen,
	}
}

// Validate checks the fields required before a message is appended.
func (m Message) Validate() error {
	validation := &ValidationErrors{}
	validation.Add(FieldSenderID, ValidateIdentity(m.SenderID))
	validation.Add(FieldReceiverID, ValidateIdentity(m.ReceiverID))
	if strings.TrimSpace(m.Ciphertext) == "" {
		validation.AddMessage(FieldMessage, "ciphertext is required")
	}
	if m.Timestamp <= 0 {
		validation.AddMessage(FieldTimestamp, "timestamp must be positive")
	}
	return validation.Err()
}

// MessageFromFields decodes a persisted record. Missing booleans default to
// false; a missing timestamp is an error.
func MessageFromFields(id string, fields map[string]any) (Message, error) {
	ts, ok := Int64Field(fields, FieldTimestamp)
	if !ok {
		return Message{}, fmt.Errorf("message %q: missing %s", id, FieldTimestamp)
	}
	return Message{
		ID:         id,
		SenderID:   StringField(fields, FieldSenderID),
		ReceiverID: StringField(fields, FieldReceiverID),
		Ciphertext: StringField(fields, FieldMessage),
		Timestamp:  ts,
		Delivered:  BoolField(fields, FieldDelivered),
		Seen:       BoolField(fields, FieldSeen),
	}, nil
}

// StringField reads a string value, returning "" when absent or mistyped.
func StringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

// BoolField reads a bool value, returning false when absent or mistyped.
func BoolField(fields map[string]any, key string) bool {
	value, _ := fields[key].(bool)
	return value
}

// Int64Field reads an integer value stored natively or decoded from JSON.
func Int64Field(fields map[string]any, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
