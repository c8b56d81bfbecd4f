package models

import (
	"errors"
	"strings"
	"unicode"
)

// ConversationSeparator joins the two ordered identities of a conversation id.
const ConversationSeparator = "-"

// ConversationID identifies the message exchange between exactly two identities.
type ConversationID string

func (c ConversationID) String() string {
	return string(c)
}

var (
	ErrEmptyIdentity   = errors.New("identity is required")
	ErrInvalidIdentity = errors.New("identity contains a reserved character")
	ErrSelfIdentity    = errors.New("cannot open a conversation with yourself")
)

// DeriveConversationID returns the canonical id for the pair (a, b). The result
// does not depend on argument order.
func DeriveConversationID(a, b string) ConversationID {
	if b < a {
		a, b = b, a
	}
	return ConversationID(a + ConversationSeparator + b)
}

// reservedIdentityChars break conversation ids, store paths or relay
// subjects.
const reservedIdentityChars = ConversationSeparator + "/*>"

// ValidateIdentity rejects identities that would break conversation id
// derivation, store paths or relay subjects. Whitespace and control
// characters are rejected too.
func ValidateIdentity(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyIdentity
	}
	if strings.ContainsAny(id, reservedIdentityChars) {
		return ErrInvalidIdentity
	}
	if strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return ErrInvalidIdentity
	}
	return nil
}

// ValidatePair checks both identities and that they differ.
func ValidatePair(local, counterpart string) error {
	validation := &ValidationErrors{}
	validation.Add("local", ValidateIdentity(local))
	validation.Add("counterpart", ValidateIdentity(counterpart))
	if err := validation.Err(); err != nil {
		return err
	}
	if local == counterpart {
		return ErrSelfIdentity
	}
	return nil
}
