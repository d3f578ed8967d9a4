package models

import "time"

// Conversation is the single canonical record grouping all messages
// exchanged between two users. The schema enforces uniqueness on the
// unordered participant pair.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	User1ID   string    `db:"user1_id" json:"user1_id"`
	User2ID   string    `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Peer returns the participant other than userID.
func (c Conversation) Peer(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// ConversationSummary is the list-screen view of a conversation: the
// other participant's identity plus a preview of the latest message.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	PeerID         string    `json:"peer_id"`
	PeerUsername   string    `json:"peer_username"`
	PeerAvatarURL  *string   `json:"peer_avatar_url,omitempty"`
	LastMessage    string    `json:"last_message"`
	LastSenderID   string    `json:"last_sender_id,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
