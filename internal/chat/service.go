// Package chat reconciles one conversation's remote message stream into an
// ordered, date-bucketed view and sends encrypted messages into it.
package chat

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/delivery"
	"github.com/tOgg1/courier/internal/logging"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

// DefaultMaxDocumentBytes is the transport's per-document ceiling.
const DefaultMaxDocumentBytes = 1_000_000

// Config contains configuration for a Service.
type Config struct {
	// Local is the identity messages are sent as.
	Local string

	// Location renders date headers. Default: time.Local
	Location *time.Location

	// MaxDocumentBytes bounds the stored message size.
	// Default: 1,000,000
	MaxDocumentBytes int

	// Now is the send clock. Default: time.Now
	Now func() time.Time
}

// Service opens conversations for one local identity.
type Service struct {
	store   store.Store
	channel *crypto.Channel
	tracker *delivery.Tracker
	config  Config
	logger  zerolog.Logger
}

// NewService creates a Service. The local identity must be valid.
func NewService(s store.Store, channel *crypto.Channel, tracker *delivery.Tracker, cfg Config) (*Service, error) {
	if err := models.ValidateIdentity(cfg.Local); err != nil {
		return nil, fmt.Errorf("local identity: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:   s,
		channel: channel,
		tracker: tracker,
		config:  cfg,
		logger:  logging.WithIdentity(logging.Component("chat"), cfg.Local),
	}, nil
}

// Local returns the local identity.
func (s *Service) Local() string {
	return s.config.Local
}

// Open subscribes to the conversation with counterpart. The returned
// Conversation delivers views on Updates until Close is called.
func (s *Service) Open(ctx context.Context, counterpart string) (*Conversation, error) {
	if err := models.ValidatePair(s.config.Local, counterpart); err != nil {
		return nil, err
	}
	c := newConversation(s, counterpart)
	c.start(ctx)
	return c, nil
}

// Send encrypts and appends one message without holding a subscription.
func (s *Service) Send(ctx context.Context, counterpart, text string) (models.Message, error) {
	if err := models.ValidatePair(s.config.Local, counterpart); err != nil {
		return models.Message{}, err
	}
	return s.send(ctx, counterpart, text)
}

// History reads the conversation once and returns its view.
func (s *Service) History(ctx context.Context, counterpart string) (models.ConversationView, error) {
	if err := models.ValidatePair(s.config.Local, counterpart); err != nil {
		return models.ConversationView{}, err
	}
	id := models.DeriveConversationID(s.config.Local, counterpart)
	docs, err := s.store.Query(ctx, messagesQuery(id))
	if err != nil {
		return models.ConversationView{}, &StreamError{ConversationID: id, Err: err}
	}
	return models.BuildView(id, s.decode(ctx, id, docs), s.config.Location), nil
}

func (s *Service) send(ctx context.Context, counterpart, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if len(text) > s.config.MaxDocumentBytes {
		return models.Message{}, ErrMessageTooLarge
	}

	ciphertext, err := s.channel.Seal(ctx, text)
	if err != nil {
		return models.Message{}, err
	}
	if len(ciphertext) > s.config.MaxDocumentBytes {
		return models.Message{}, ErrMessageTooLarge
	}

	id := models.DeriveConversationID(s.config.Local, counterpart)
	msg := models.Message{
		SenderID:   s.config.Local,
		ReceiverID: counterpart,
		Ciphertext: ciphertext,
		Body:       text,
		Timestamp:  s.config.Now().UnixMilli(),
	}
	if err := msg.Validate(); err != nil {
		return models.Message{}, &SendError{ConversationID: id, Err: err}
	}

	msg.ID, err = s.store.Append(ctx, models.MessagesPath(id), msg.Fields())
	if err != nil {
		return models.Message{}, &SendError{ConversationID: id, Err: err}
	}

	logger := logging.WithConversation(s.logger, id.String())
	if err := s.tracker.MarkDelivered(ctx, id, msg.ID); err != nil {
		logger.Warn().Err(err).Msg("delivered update failed")
	} else {
		msg.Delivered = true
	}

	logger.Debug().Str("message_id", msg.ID).Msg("message sent")
	return msg, nil
}

// decode turns store documents into ordered messages with decrypted bodies.
// Undecodable records are skipped; undecryptable bodies are left empty.
func (s *Service) decode(ctx context.Context, id models.ConversationID, docs []store.Document) []models.Message {
	logger := logging.WithConversation(s.logger, id.String())
	messages := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := models.MessageFromFields(doc.ID, doc.Fields)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping malformed message")
			continue
		}
		body, err := s.channel.Open(ctx, msg.Ciphertext)
		if err != nil {
			logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message body could not be decrypted")
		}
		msg.Body = body
		messages = append(messages, msg)
	}
	sortMessages(messages)
	return messages
}

// sortMessages orders by timestamp; equal timestamps fall back to id.
func sortMessages(messages []models.Message) {
	slices.SortStableFunc(messages, func(a, b models.Message) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func messagesQuery(id models.ConversationID) store.Query {
	return store.Query{
		Collection: models.MessagesPath(id),
		OrderBy:    models.FieldTimestamp,
		Direction:  store.Ascending,
	}
}
