package chat

import "errors"

var (
	// ErrInvalidParticipant is returned when resolve is called with a
	// missing participant id or both ids naming the same user.
	ErrInvalidParticipant = errors.New("invalid participant ids")

	// ErrConversationLookup wraps storage errors while searching for an
	// existing conversation. Callers may retry the whole resolve.
	ErrConversationLookup = errors.New("conversation lookup failed")

	// ErrConversationCreate wraps storage errors while inserting a new
	// conversation.
	ErrConversationCreate = errors.New("conversation create failed")

	// ErrInvalidMessage is returned when send is called without a
	// conversation, sender or non-empty content.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrSendFailed is returned once every insert attempt has been
	// exhausted. The last underlying cause is attached.
	ErrSendFailed = errors.New("message send failed")
)
