package chat

import (
	"errors"
	"fmt"

	"github.com/tOgg1/courier/internal/models"
)

// Send and lifecycle errors.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLarge = errors.New("message exceeds the document size limit")
	ErrClosed          = errors.New("conversation is closed")
)

// SendError reports a failed append. The caller still holds the input.
type SendError struct {
	ConversationID models.ConversationID
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// StreamError reports that a conversation feed failed. The conversation does
// not resubscribe.
type StreamError struct {
	ConversationID models.ConversationID
	Err            error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("conversation %s stream: %v", e.ConversationID, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
