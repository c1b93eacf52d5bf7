package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/live"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/store"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/metrics"
)

// MessageService handles message operations and live subscriptions.
type MessageService struct {
	store  *store.Store
	feed   *live.Feed
	logger *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(st *store.Store, feed *live.Feed, log *logger.Logger) *MessageService {
	return &MessageService{
		store:  st,
		feed:   feed,
		logger: log,
	}
}

// Create appends a message and notifies live subscribers.
func (s *MessageService) Create(ctx context.Context, userID, conversationID string, req *model.CreateMessageRequest) (*model.Message, error) {
	msg, err := s.store.CreateMessage(ctx, userID, conversationID, req.Role, req.Content)
	if err != nil {
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()

	// The message is durable at this point; a lost signal only delays
	// subscribers until the next change.
	if err := s.feed.Notify(ctx, conversationID); err != nil {
		s.logger.Warn("failed to publish change",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	return msg, nil
}

// List returns a conversation's messages in creation order.
func (s *MessageService) List(ctx context.Context, userID, conversationID string) (*model.ListMessagesResponse, error) {
	if _, err := s.store.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return &model.ListMessagesResponse{Messages: msgs}, nil
}

// Subscribe streams full snapshots of a conversation the user owns until ctx
// ends.
func (s *MessageService) Subscribe(ctx context.Context, userID, conversationID string) (<-chan []model.Message, error) {
	if _, err := s.store.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, conversationID)
}
