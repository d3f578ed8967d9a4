package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"chat-backbone/internal/models"
	"chat-backbone/internal/observability"
	"chat-backbone/internal/rabbitmq"
	"chat-backbone/internal/repositories"
)

const (
	sendAttempts  = 3
	sendRetryWait = time.Second

	notificationTitle = "New message"
	previewLimit      = 30
)

// Sender persists messages with bounded retry and fires the post-send
// side effects: a best-effort notification for the recipient, a manual
// broadcast of the stored row, and a last-activity bump on the
// conversation. None of the side effects affect the returned result.
type Sender struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	publisher     rabbitmq.Publisher

	attempts  int
	retryWait time.Duration
}

// NewSender constructs a Sender with the default retry policy.
func NewSender(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
	publisher rabbitmq.Publisher,
) *Sender {
	return &Sender{
		conversations: conversations,
		messages:      messages,
		notifications: notifications,
		publisher:     publisher,
		attempts:      sendAttempts,
		retryWait:     sendRetryWait,
	}
}

// Send stores a message, retrying the insert up to two more times with
// a fixed wait between attempts. The first success short-circuits.
func (s *Sender) Send(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	if conversationID == "" || senderID == "" || content == "" {
		return models.Message{}, ErrInvalidMessage
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			log.Printf("retrying message insert (%d/%d) conversation=%s", attempt, s.attempts, conversationID)
			select {
			case <-ctx.Done():
				return models.Message{}, ctx.Err()
			case <-time.After(s.retryWait):
			}
		}

		msg, err := s.messages.Insert(ctx, conversationID, senderID, content)
		if err == nil {
			observability.IncSendAttempt("ok")
			s.afterSend(ctx, msg)
			return msg, nil
		}
		lastErr = err
		observability.IncSendAttempt("error")
		log.Printf("message insert failed (attempt %d/%d): %v", attempt, s.attempts, err)
	}

	return models.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, lastErr)
}

// afterSend runs the best-effort side effects. Failures are logged and
// swallowed; the message is already stored.
func (s *Sender) afterSend(ctx context.Context, msg models.Message) {
	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		log.Printf("recipient lookup failed for conversation %s: %v", msg.ConversationID, err)
	} else {
		recipient := conv.Peer(msg.SenderID)
		body := "You have a new message: " + preview(msg.Content)
		if _, err := s.notifications.Insert(ctx, recipient, notificationTitle, body); err != nil {
			log.Printf("notification record failed for user %s: %v", recipient, err)
		}
	}

	if err := s.publisher.Publish(ctx, "conversation."+msg.ConversationID, msg); err != nil {
		log.Printf("message broadcast failed for %s: %v", msg.ID, err)
	}

	if err := s.conversations.Touch(ctx, msg.ConversationID); err != nil {
		log.Printf("conversation touch failed for %s: %v", msg.ConversationID, err)
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "..."
}
