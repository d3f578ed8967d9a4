package chat

import (
	"context"

	"chat-backbone/internal/models"
	"chat-backbone/internal/repositories"
)

// Service bundles the conversation-facing read operations the UI layer
// consumes next to Resolver and Sender.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
}

// NewService constructs a Service.
func NewService(conversations repositories.ConversationRepository, messages repositories.MessageRepository) *Service {
	return &Service{conversations: conversations, messages: messages}
}

// History returns a conversation's messages newest-first. A limit of 0
// returns the full history.
func (s *Service) History(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID, limit)
}

// ListConversations returns the user's conversation summaries ordered
// by last activity. Previews of messages the user authored are prefixed
// so the list reads like the original thread.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	summaries, err := s.conversations.ListWithLastMessage(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if summaries[i].LastMessage == "" {
			summaries[i].LastMessage = "No messages yet"
			continue
		}
		if summaries[i].LastSenderID == userID {
			summaries[i].LastMessage = "You: " + summaries[i].LastMessage
		}
	}
	return summaries, nil
}
