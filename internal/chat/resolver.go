package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"chat-backbone/internal/models"
	"chat-backbone/internal/repositories"
)

// Resolver finds or creates the canonical conversation between two
// users.
type Resolver struct {
	conversations repositories.ConversationRepository
}

// NewResolver constructs a Resolver.
func NewResolver(conversations repositories.ConversationRepository) *Resolver {
	return &Resolver{conversations: conversations}
}

// Resolve returns the one conversation between userA and userB,
// creating it on first contact. Concurrent resolves for the same pair
// converge on a single id because the storage layer enforces
// uniqueness on the unordered pair and create re-reads on conflict.
func (r *Resolver) Resolve(ctx context.Context, userA, userB string) (models.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return models.Conversation{}, ErrInvalidParticipant
	}

	conv, err := r.conversations.FindBetween(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, fmt.Errorf("%w: %v", ErrConversationLookup, err)
	}

	conv, err = r.conversations.Create(ctx, userA, userB)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("%w: %v", ErrConversationCreate, err)
	}

	// Participant links are best-effort; the conversation is usable
	// without them.
	if err := r.conversations.EnsureParticipants(ctx, conv.ID, userA, userB); err != nil {
		log.Printf("participant links for conversation %s: %v", conv.ID, err)
	}

	return conv, nil
}
