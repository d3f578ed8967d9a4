package realtime

import (
	"context"

	"chat-backbone/internal/models"
)

// Status values reported by a transport while establishing or holding
// a subscription.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
)

// Handle is one live channel binding. Close releases it and is safe to
// call more than once.
type Handle interface {
	Close() error
}

// Transport is a single delivery path for a conversation's message
// events. Subscribe returns once the path is established or fails; the
// status callback reports later health changes. Implementations must
// stop invoking callbacks after the returned handle is closed.
type Transport interface {
	Name() string
	Subscribe(ctx context.Context, conversationID string, onEvent func(models.MessageEvent), onStatus func(Status)) (Handle, error)
}
