// Package chat implements admin-authored outbound messages with an explicit
// delivery state machine: a message row is persisted as pending before the
// delivery attempt and always ends confirmed or failed, never removed.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"telemed-admin/internal/botengine"
	"telemed-admin/internal/repo"
)

// MessageStore is the slice of the store the chat service needs.
type MessageStore interface {
	GetSession(ctx context.Context, id string) (*repo.Session, error)
	GetUser(ctx context.Context, id string) (*repo.User, error)
	InsertMessage(ctx context.Context, msg repo.Message) (*repo.Message, error)
	UpdateMessageDelivery(ctx context.Context, id, status string) error
}

// Deliverer hands outbound messages to the bot engine.
type Deliverer interface {
	SendMessage(ctx context.Context, msg botengine.OutboundMessage) error
}

// Service coordinates persistence and delivery of outbound messages.
type Service struct {
	store     MessageStore
	deliverer Deliverer
	logger    *slog.Logger
}

// New creates a chat service.
func New(store MessageStore, deliverer Deliverer, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		deliverer: deliverer,
		logger:    logger.With("component", "chat"),
	}
}

// Send persists an outbound message in pending state, attempts delivery, and
// records the terminal outcome. The message is returned in its final state;
// a delivery failure is reported alongside the failed row.
func (s *Service) Send(ctx context.Context, sessionID, content string) (*repo.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is empty")
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.InsertMessage(ctx, repo.Message{
		SessionID:      sessionID,
		Direction:      repo.DirectionOutbound,
		Content:        content,
		DeliveryStatus: repo.DeliveryPending,
	})
	if err != nil {
		return nil, err
	}

	if err := s.deliverer.SendMessage(ctx, botengine.OutboundMessage{
		SessionID: sessionID,
		UserPhone: user.PhoneNumber,
		Content:   content,
	}); err != nil {
		s.logger.Warn("message delivery failed", "message_id", msg.ID, "error", err)
		if updateErr := s.store.UpdateMessageDelivery(ctx, msg.ID, repo.DeliveryFailed); updateErr != nil {
			s.logger.Error("failed marking message failed", "message_id", msg.ID, "error", updateErr)
		}
		msg.DeliveryStatus = repo.DeliveryFailed
		return msg, fmt.Errorf("deliver message: %w", err)
	}

	if err := s.store.UpdateMessageDelivery(ctx, msg.ID, repo.DeliveryConfirmed); err != nil {
		return msg, err
	}
	msg.DeliveryStatus = repo.DeliveryConfirmed
	return msg, nil
}
