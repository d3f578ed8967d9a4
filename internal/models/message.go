package models

import "time"

// Message is an immutable chat message. The id is assigned by the store
// on insert; ordering is by created_at, ties broken by id.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// EventInsert is the only event kind the realtime layer currently emits.
const EventInsert = "INSERT"

// MessageEvent is the normalized event delivered to realtime consumers,
// regardless of which transport carried it.
type MessageEvent struct {
	Kind    string  `json:"kind"`
	Message Message `json:"message"`
}
